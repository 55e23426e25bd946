package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"homefind/internal/app/notify"
	appoutbox "homefind/internal/app/outbox"
	domainchat "homefind/internal/domain/chat"
)

var (
	ErrServiceNotConfigured = errors.New("chat: service missing unit of work factory")
	// ErrSelfMessage rejects threads where buyer and seller would be the same
	// account; a conversation is a pair of two distinct participants.
	ErrSelfMessage = errors.New("chat: cannot send a message to yourself")
)

// Service implements the conversation operations: sending, listing, marking
// read and deleting. All writes run inside a unit of work so the denormalized
// conversation summary and the message rows never diverge.
type Service struct {
	Units   domainchat.Factory
	Outbox  appoutbox.Outbox
	Encoder appoutbox.EventEncoder
	Hub     *notify.Hub
	IDs     func() string
	Clock   func() time.Time
	Logger  *slog.Logger
}

type CreateMessageParams struct {
	CallerID     string
	ReceiverID   string
	Body         string
	ListingID    string
	ListingTitle string
}

// CreateMessage appends a message to the caller/receiver thread for a listing,
// creating the conversation on first contact. The receiver's unread counter,
// the conversation summary and the message row commit atomically.
func (s *Service) CreateMessage(ctx context.Context, params CreateMessageParams) (*domainchat.Message, error) {
	if s.Units == nil {
		return nil, ErrServiceNotConfigured
	}
	callerID := strings.TrimSpace(params.CallerID)
	receiverID := strings.TrimSpace(params.ReceiverID)
	if callerID == "" {
		return nil, domainchat.ErrSenderRequired
	}
	if receiverID == "" {
		return nil, domainchat.ErrReceiverRequired
	}
	if callerID == receiverID {
		return nil, ErrSelfMessage
	}
	if strings.TrimSpace(params.Body) == "" {
		return nil, domainchat.ErrBodyRequired
	}
	listingID := strings.TrimSpace(params.ListingID)
	if listingID == "" {
		return nil, domainchat.ErrListingRequired
	}
	if strings.TrimSpace(params.ListingTitle) == "" {
		return nil, domainchat.ErrListingTitleRequired
	}

	now := s.now()
	unit, err := s.Units.Begin(ctx, domainchat.TxOptions{})
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(ctx)
		}
	}()
	txCtx := unit.Context(ctx)

	pairKey := domainchat.PairKey(callerID, receiverID)
	conversation, err := unit.Conversations().ByPair(txCtx, pairKey, listingID)
	switch {
	case err == nil:
		if err := unit.Conversations().RecordMessage(txCtx, conversation.ID, receiverID, params.Body, now); err != nil {
			return nil, err
		}
	case errors.Is(err, domainchat.ErrConversationNotFound):
		conversation, err = domainchat.NewConversation(domainchat.CreateConversationParams{
			ID:           domainchat.ConversationID(s.newID()),
			Participants: []string{callerID, receiverID},
			ListingID:    listingID,
			ListingTitle: params.ListingTitle,
			Now:          now,
		})
		if err != nil {
			return nil, err
		}
		conversation.RecordMessage(receiverID, params.Body, now)
		if err := unit.Conversations().Insert(txCtx, conversation); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	message, err := domainchat.NewMessage(domainchat.CreateMessageParams{
		ID:             domainchat.MessageID(s.newID()),
		ConversationID: conversation.ID,
		SenderID:       callerID,
		ReceiverID:     receiverID,
		Body:           params.Body,
		ListingID:      listingID,
		Now:            now,
	})
	if err != nil {
		return nil, err
	}
	if err := unit.Messages().Insert(txCtx, message); err != nil {
		return nil, err
	}
	if err := appoutbox.RecordEvents(txCtx, s.Outbox, s.Encoder, domainchat.NewMessageCreated(message)); err != nil {
		return nil, err
	}
	if err := unit.Commit(ctx); err != nil {
		return nil, err
	}
	committed = true

	s.Hub.Publish(notify.Event{ConversationID: conversation.ID, Kind: notify.KindMessageCreated})
	if s.Logger != nil {
		s.Logger.Info("message created",
			"conversation_id", conversation.ID,
			"message_id", message.ID,
			"sender_id", callerID,
			"listing_id", listingID,
		)
	}
	return message, nil
}

// GetMessages returns the full history of a conversation, oldest first,
// excluding messages the caller deleted for themselves.
func (s *Service) GetMessages(ctx context.Context, callerID string, conversationID domainchat.ConversationID) ([]domainchat.Message, error) {
	if s.Units == nil {
		return nil, ErrServiceNotConfigured
	}
	unit, err := s.Units.Begin(ctx, domainchat.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer unit.Rollback(ctx)
	txCtx := unit.Context(ctx)

	conversation, err := unit.Conversations().ByID(txCtx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(callerID) {
		return nil, domainchat.ErrNotParticipant
	}
	return unit.Messages().ListByConversation(txCtx, conversationID, callerID)
}

// GetConversations lists the caller's threads, most recently active first.
func (s *Service) GetConversations(ctx context.Context, callerID string) ([]domainchat.Conversation, error) {
	if s.Units == nil {
		return nil, ErrServiceNotConfigured
	}
	unit, err := s.Units.Begin(ctx, domainchat.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer unit.Rollback(ctx)
	return unit.Conversations().ListByParticipant(unit.Context(ctx), callerID)
}

// MarkAsRead flips every unread message addressed to the caller and zeroes the
// caller's unread counter. Idempotent.
func (s *Service) MarkAsRead(ctx context.Context, callerID string, conversationID domainchat.ConversationID) error {
	if s.Units == nil {
		return ErrServiceNotConfigured
	}
	now := s.now()
	unit, err := s.Units.Begin(ctx, domainchat.TxOptions{})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(ctx)
		}
	}()
	txCtx := unit.Context(ctx)

	conversation, err := unit.Conversations().ByID(txCtx, conversationID)
	if err != nil {
		return err
	}
	if !conversation.HasParticipant(callerID) {
		return domainchat.ErrNotParticipant
	}
	flipped, err := unit.Messages().MarkRead(txCtx, conversationID, callerID)
	if err != nil {
		return err
	}
	if err := unit.Conversations().ResetUnread(txCtx, conversationID, callerID, now); err != nil {
		return err
	}
	if err := appoutbox.RecordEvents(txCtx, s.Outbox, s.Encoder, domainchat.NewConversationRead(conversationID, callerID, now)); err != nil {
		return err
	}
	if err := unit.Commit(ctx); err != nil {
		return err
	}
	committed = true

	s.Hub.Publish(notify.Event{ConversationID: conversationID, Kind: notify.KindConversationRead})
	if s.Logger != nil {
		s.Logger.Info("conversation read", "conversation_id", conversationID, "reader_id", callerID, "flipped", flipped)
	}
	return nil
}

// DeleteMessage removes a message the caller sent. "self" hides it from the
// caller only; "everyone" removes the row and repairs the conversation's
// lastMessage when the deleted row was the one on display.
func (s *Service) DeleteMessage(ctx context.Context, callerID string, messageID domainchat.MessageID, mode domainchat.DeleteMode) (domainchat.DeleteMode, error) {
	if s.Units == nil {
		return "", ErrServiceNotConfigured
	}
	if mode != domainchat.DeleteForSelf && mode != domainchat.DeleteForEveryone {
		return "", domainchat.ErrInvalidDeleteMode
	}
	now := s.now()
	unit, err := s.Units.Begin(ctx, domainchat.TxOptions{})
	if err != nil {
		return "", err
	}
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(ctx)
		}
	}()
	txCtx := unit.Context(ctx)

	message, err := unit.Messages().ByID(txCtx, messageID)
	if err != nil {
		return "", err
	}
	if message.SenderID != callerID {
		return "", domainchat.ErrNotSender
	}

	switch mode {
	case domainchat.DeleteForSelf:
		if err := unit.Messages().Hide(txCtx, messageID, callerID); err != nil {
			return "", err
		}
	case domainchat.DeleteForEveryone:
		if err := unit.Messages().Delete(txCtx, messageID); err != nil {
			return "", err
		}
		if err := s.repairLastMessage(txCtx, unit, message, now); err != nil {
			return "", err
		}
	}
	if err := appoutbox.RecordEvents(txCtx, s.Outbox, s.Encoder, domainchat.NewMessageDeleted(message, mode, now)); err != nil {
		return "", err
	}
	if err := unit.Commit(ctx); err != nil {
		return "", err
	}
	committed = true

	s.Hub.Publish(notify.Event{ConversationID: message.ConversationID, Kind: notify.KindMessageDeleted})
	if s.Logger != nil {
		s.Logger.Info("message deleted", "message_id", messageID, "conversation_id", message.ConversationID, "mode", mode)
	}
	return mode, nil
}

// repairLastMessage recomputes the denormalized lastMessage after a permanent
// delete. Matches by text: only a delete of the currently displayed text
// triggers a recompute.
func (s *Service) repairLastMessage(ctx context.Context, unit domainchat.UnitOfWork, deleted *domainchat.Message, now time.Time) error {
	conversation, err := unit.Conversations().ByID(ctx, deleted.ConversationID)
	if err != nil {
		if errors.Is(err, domainchat.ErrConversationNotFound) {
			return nil
		}
		return err
	}
	if conversation.LastMessage != deleted.Body {
		return nil
	}
	latest, err := unit.Messages().Latest(ctx, deleted.ConversationID)
	if err != nil {
		if errors.Is(err, domainchat.ErrMessageNotFound) {
			return unit.Conversations().SetLastMessage(ctx, deleted.ConversationID, "", now)
		}
		return err
	}
	return unit.Conversations().SetLastMessage(ctx, deleted.ConversationID, latest.Body, now)
}

// DeleteConversation removes a thread and all of its messages in one unit of
// work; no orphaned rows survive a partial failure.
func (s *Service) DeleteConversation(ctx context.Context, callerID string, conversationID domainchat.ConversationID) error {
	if s.Units == nil {
		return ErrServiceNotConfigured
	}
	now := s.now()
	unit, err := s.Units.Begin(ctx, domainchat.TxOptions{})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(ctx)
		}
	}()
	txCtx := unit.Context(ctx)

	conversation, err := unit.Conversations().ByID(txCtx, conversationID)
	if err != nil {
		return err
	}
	if !conversation.HasParticipant(callerID) {
		return domainchat.ErrNotParticipant
	}
	removed, err := unit.Messages().DeleteByConversation(txCtx, conversationID)
	if err != nil {
		return err
	}
	if err := unit.Conversations().Delete(txCtx, conversationID); err != nil {
		return err
	}
	if err := appoutbox.RecordEvents(txCtx, s.Outbox, s.Encoder, domainchat.NewConversationDeleted(conversationID, callerID, removed, now)); err != nil {
		return err
	}
	if err := unit.Commit(ctx); err != nil {
		return err
	}
	committed = true

	s.Hub.Publish(notify.Event{ConversationID: conversationID, Kind: notify.KindConversationDeleted})
	if s.Logger != nil {
		s.Logger.Info("conversation deleted", "conversation_id", conversationID, "deleted_by", callerID, "messages", removed)
	}
	return nil
}

func (s *Service) newID() string {
	if s.IDs != nil {
		return s.IDs()
	}
	return uuid.NewString()
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}
