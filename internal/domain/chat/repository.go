package chat

import (
	"context"
	"time"
)

// ConversationRepository persists conversation summaries. Implementations must
// return ErrConversationNotFound for unknown ids and make RecordMessage and
// ResetUnread atomic at the store level (no read-modify-write counters).
type ConversationRepository interface {
	ByID(ctx context.Context, id ConversationID) (*Conversation, error)
	// ByPair locates the unique thread for an unordered participant pair and
	// listing. See PairKey.
	ByPair(ctx context.Context, pairKey, listingID string) (*Conversation, error)
	// ListByParticipant returns userID's conversations, most recently updated first.
	ListByParticipant(ctx context.Context, userID string) ([]Conversation, error)
	Insert(ctx context.Context, conversation *Conversation) error
	// RecordMessage updates lastMessage/updatedAt and increments the
	// receiver's unread counter in a single store operation.
	RecordMessage(ctx context.Context, id ConversationID, receiverID, body string, at time.Time) error
	// ResetUnread zeroes userID's counter.
	ResetUnread(ctx context.Context, id ConversationID, userID string, at time.Time) error
	SetLastMessage(ctx context.Context, id ConversationID, body string, at time.Time) error
	Delete(ctx context.Context, id ConversationID) error
}

// MessageRepository persists individual messages. Implementations must return
// ErrMessageNotFound for unknown ids.
type MessageRepository interface {
	ByID(ctx context.Context, id MessageID) (*Message, error)
	// ListByConversation returns messages visible to viewerID, oldest first.
	ListByConversation(ctx context.Context, id ConversationID, viewerID string) ([]Message, error)
	// Latest returns the newest message of a conversation, or
	// ErrMessageNotFound when none remain.
	Latest(ctx context.Context, id ConversationID) (*Message, error)
	Insert(ctx context.Context, message *Message) error
	// MarkRead flips read on every unread message addressed to receiverID and
	// reports how many were flipped.
	MarkRead(ctx context.Context, id ConversationID, receiverID string) (int64, error)
	// Hide records a delete-for-self for userID.
	Hide(ctx context.Context, id MessageID, userID string) error
	Delete(ctx context.Context, id MessageID) error
	// DeleteByConversation removes all messages of a conversation and reports
	// how many were removed.
	DeleteByConversation(ctx context.Context, id ConversationID) (int64, error)
}

// UnitOfWork groups repository calls into one transaction boundary so the
// conversation upsert and message insert (and the cascade delete) commit or
// fail together.
type UnitOfWork interface {
	Conversations() ConversationRepository
	Messages() MessageRepository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Context binds the transaction to ctx for stores that carry session
	// state in context (Mongo). Others return ctx unchanged.
	Context(ctx context.Context) context.Context
}

// TxOptions configure a transaction boundary.
type TxOptions struct {
	ReadOnly bool
}

// Factory starts unit of work instances.
type Factory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}
