package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "homefind/internal/domain/chat"
)

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

// Factory wires Mongo transactions into the generic UnitOfWork interface.
type Factory struct {
	DB *mongo.Database

	ConversationRepo domainchat.ConversationRepository
	MessageRepo      domainchat.MessageRepository
}

// Begin starts a MongoDB session/transaction.
func (f Factory) Begin(ctx context.Context, opts domainchat.TxOptions) (domainchat.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().SetReadConcern(f.DB.ReadConcern()).SetWriteConcern(f.DB.WriteConcern())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &Unit{
		session:       session,
		conversations: f.ConversationRepo,
		messages:      f.MessageRepo,
	}, nil
}

type Unit struct {
	session mongo.Session

	conversations domainchat.ConversationRepository
	messages      domainchat.MessageRepository
}

func (u *Unit) Conversations() domainchat.ConversationRepository {
	return u.conversations
}

func (u *Unit) Messages() domainchat.MessageRepository {
	return u.messages
}

func (u *Unit) Commit(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return u.session.CommitTransaction(ctx)
}

func (u *Unit) Rollback(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return u.session.AbortTransaction(ctx)
}

// Context ensures the Mongo session is available downstream so repository
// calls join the transaction.
func (u *Unit) Context(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}

var _ domainchat.Factory = Factory{}
