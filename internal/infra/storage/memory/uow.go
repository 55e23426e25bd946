package memory

import (
	"context"
	"errors"

	domainchat "homefind/internal/domain/chat"
)

// ErrFactoryMisconfigured indicates missing repositories.
var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// Factory wires the in-memory repositories into a unit-of-work boundary.
type Factory struct {
	ConversationRepo *ConversationRepository
	MessageRepo      *MessageRepository
}

// Begin stages a transaction against deep copies of the stores. Writes land on
// the copies and become visible only when Commit swaps them in, so a failure
// mid-operation leaves the live state untouched. Units read their own staged
// writes; there is no isolation across concurrent units beyond the swap.
func (f Factory) Begin(ctx context.Context, opts domainchat.TxOptions) (domainchat.UnitOfWork, error) {
	if f.ConversationRepo == nil || f.MessageRepo == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{
		liveConversations: f.ConversationRepo,
		liveMessages:      f.MessageRepo,
		conversations:     f.ConversationRepo.cloneStore(),
		messages:          f.MessageRepo.cloneStore(),
	}, nil
}

// Unit is a domainchat.UnitOfWork backed by staged in-memory stores.
type Unit struct {
	liveConversations *ConversationRepository
	liveMessages      *MessageRepository

	conversations *ConversationRepository
	messages      *MessageRepository
}

func (u *Unit) Conversations() domainchat.ConversationRepository {
	return u.conversations
}

func (u *Unit) Messages() domainchat.MessageRepository {
	return u.messages
}

func (u *Unit) Commit(ctx context.Context) error {
	u.liveConversations.adopt(u.conversations)
	u.liveMessages.adopt(u.messages)
	return nil
}

// Rollback discards the staged copies.
func (u *Unit) Rollback(ctx context.Context) error {
	return nil
}

func (u *Unit) Context(ctx context.Context) context.Context {
	return ctx
}

var _ domainchat.Factory = Factory{}
