package chat

import (
	"time"

	"homefind/internal/domain/shared/events"
)

const (
	EventMessageCreated      = "chat.message.created"
	EventConversationRead    = "chat.conversation.read"
	EventMessageDeleted      = "chat.message.deleted"
	EventConversationDeleted = "chat.conversation.deleted"
)

type MessageCreated struct {
	events.BaseEvent
	MessageID  MessageID `json:"message_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	ListingID  string    `json:"listing_id"`
}

func NewMessageCreated(msg *Message) MessageCreated {
	return MessageCreated{
		BaseEvent: events.BaseEvent{
			Name:      EventMessageCreated,
			Aggregate: string(msg.ConversationID),
			Time:      msg.CreatedAt,
		},
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		ListingID:  msg.ListingID,
	}
}

type ConversationRead struct {
	events.BaseEvent
	ReaderID string `json:"reader_id"`
}

func NewConversationRead(id ConversationID, readerID string, at time.Time) ConversationRead {
	return ConversationRead{
		BaseEvent: events.BaseEvent{Name: EventConversationRead, Aggregate: string(id), Time: at},
		ReaderID:  readerID,
	}
}

type MessageDeleted struct {
	events.BaseEvent
	MessageID MessageID  `json:"message_id"`
	Mode      DeleteMode `json:"mode"`
}

func NewMessageDeleted(msg *Message, mode DeleteMode, at time.Time) MessageDeleted {
	return MessageDeleted{
		BaseEvent: events.BaseEvent{Name: EventMessageDeleted, Aggregate: string(msg.ConversationID), Time: at},
		MessageID: msg.ID,
		Mode:      mode,
	}
}

type ConversationDeleted struct {
	events.BaseEvent
	DeletedBy string `json:"deleted_by"`
	Messages  int64  `json:"messages"`
}

func NewConversationDeleted(id ConversationID, deletedBy string, messages int64, at time.Time) ConversationDeleted {
	return ConversationDeleted{
		BaseEvent: events.BaseEvent{Name: EventConversationDeleted, Aggregate: string(id), Time: at},
		DeletedBy: deletedBy,
		Messages:  messages,
	}
}
