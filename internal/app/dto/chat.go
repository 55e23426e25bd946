package dto

import (
	"time"

	domainchat "homefind/internal/domain/chat"
)

// Conversation is the wire shape of a thread summary. Field names follow the
// client contract (camelCase); unreadCount is rendered from the calling
// participant's own counter.
type Conversation struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	ListingID    string    `json:"listingId"`
	ListingTitle string    `json:"listingTitle"`
	LastMessage  string    `json:"lastMessage"`
	UnreadCount  int       `json:"unreadCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Message is the wire shape of a single message.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Message        string    `json:"message"`
	ListingID      string    `json:"listingId"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}

// MapConversation renders a conversation from viewerID's perspective.
func MapConversation(conversation *domainchat.Conversation, viewerID string) Conversation {
	if conversation == nil {
		return Conversation{}
	}
	return Conversation{
		ID:           string(conversation.ID),
		Participants: append([]string(nil), conversation.Participants...),
		ListingID:    conversation.ListingID,
		ListingTitle: conversation.ListingTitle,
		LastMessage:  conversation.LastMessage,
		UnreadCount:  conversation.UnreadFor(viewerID),
		CreatedAt:    conversation.CreatedAt,
		UpdatedAt:    conversation.UpdatedAt,
	}
}

func MapMessage(message *domainchat.Message) Message {
	if message == nil {
		return Message{}
	}
	return Message{
		ID:             string(message.ID),
		ConversationID: string(message.ConversationID),
		SenderID:       message.SenderID,
		ReceiverID:     message.ReceiverID,
		Message:        message.Body,
		ListingID:      message.ListingID,
		Read:           message.Read,
		CreatedAt:      message.CreatedAt,
	}
}
