package chat

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrMessageIDRequired = errors.New("chat: message id is required")
	ErrSenderRequired    = errors.New("chat: sender id is required")
	ErrReceiverRequired  = errors.New("chat: receiver id is required")
	ErrBodyRequired      = errors.New("chat: message body is required")
	ErrMessageNotFound   = errors.New("chat: message not found")
	ErrNotSender         = errors.New("chat: only the sender may delete a message")
	ErrInvalidDeleteMode = errors.New("chat: delete mode must be \"self\" or \"everyone\"")
)

type MessageID string

// DeleteMode selects who a deletion applies to.
type DeleteMode string

const (
	// DeleteForSelf hides the message from the caller only; the row persists
	// and the other participant keeps seeing it.
	DeleteForSelf DeleteMode = "self"
	// DeleteForEveryone removes the message permanently.
	DeleteForEveryone DeleteMode = "everyone"
)

func ParseDeleteMode(raw string) (DeleteMode, error) {
	switch DeleteMode(strings.ToLower(strings.TrimSpace(raw))) {
	case DeleteForSelf:
		return DeleteForSelf, nil
	case DeleteForEveryone:
		return DeleteForEveryone, nil
	default:
		return "", ErrInvalidDeleteMode
	}
}

// Message is a single point-to-point message inside a conversation. ListingID
// is denormalized from the conversation for query convenience.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       string
	ReceiverID     string
	Body           string
	ListingID      string
	Read           bool
	HiddenFor      []string
	CreatedAt      time.Time
}

type CreateMessageParams struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       string
	ReceiverID     string
	Body           string
	ListingID      string
	Now            time.Time
}

func NewMessage(params CreateMessageParams) (*Message, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrMessageIDRequired
	}
	if strings.TrimSpace(string(params.ConversationID)) == "" {
		return nil, ErrConversationIDRequired
	}
	sender := strings.TrimSpace(params.SenderID)
	if sender == "" {
		return nil, ErrSenderRequired
	}
	receiver := strings.TrimSpace(params.ReceiverID)
	if receiver == "" {
		return nil, ErrReceiverRequired
	}
	if strings.TrimSpace(params.Body) == "" {
		return nil, ErrBodyRequired
	}
	listingID := strings.TrimSpace(params.ListingID)
	if listingID == "" {
		return nil, ErrListingRequired
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &Message{
		ID:             MessageID(id),
		ConversationID: params.ConversationID,
		SenderID:       sender,
		ReceiverID:     receiver,
		Body:           params.Body,
		ListingID:      listingID,
		CreatedAt:      now.UTC(),
	}, nil
}

// VisibleTo reports whether userID may still see the message.
func (m *Message) VisibleTo(userID string) bool {
	for _, hidden := range m.HiddenFor {
		if hidden == userID {
			return false
		}
	}
	return true
}

// HideFor records a delete-for-self for userID. Idempotent.
func (m *Message) HideFor(userID string) {
	if !m.VisibleTo(userID) {
		return
	}
	m.HiddenFor = append(m.HiddenFor, userID)
}
