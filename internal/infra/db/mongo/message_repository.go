package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "homefind/internal/domain/chat"
)

type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	col := db.Collection("chat_messages")
	idx := mongo.IndexModel{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}}
	_, _ = col.Indexes().CreateOne(context.Background(), idx)
	return &MessageRepository{col: col}
}

func (r *MessageRepository) ByID(ctx context.Context, id domainchat.MessageID) (*domainchat.Message, error) {
	var doc messageDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domainchat.ErrMessageNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *MessageRepository) ListByConversation(ctx context.Context, id domainchat.ConversationID, viewerID string) ([]domainchat.Message, error) {
	filter := bson.M{
		"conversation_id": string(id),
		"hidden_for":      bson.M{"$ne": viewerID},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	result := make([]domainchat.Message, 0)
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, *doc.toAggregate())
	}
	return result, cursor.Err()
}

func (r *MessageRepository) Latest(ctx context.Context, id domainchat.ConversationID) (*domainchat.Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var doc messageDocument
	if err := r.col.FindOne(ctx, bson.M{"conversation_id": string(id)}, opts).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domainchat.ErrMessageNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *MessageRepository) Insert(ctx context.Context, message *domainchat.Message) error {
	_, err := r.col.InsertOne(ctx, newMessageDocument(message))
	return err
}

func (r *MessageRepository) MarkRead(ctx context.Context, id domainchat.ConversationID, receiverID string) (int64, error) {
	filter := bson.M{"conversation_id": string(id), "receiver_id": receiverID, "read": false}
	res, err := r.col.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepository) Hide(ctx context.Context, id domainchat.MessageID, userID string) error {
	update := bson.M{"$addToSet": bson.M{"hidden_for": userID}}
	res, err := r.col.UpdateByID(ctx, string(id), update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) Delete(ctx context.Context, id domainchat.MessageID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domainchat.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) DeleteByConversation(ctx context.Context, id domainchat.ConversationID) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"conversation_id": string(id)})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

type messageDocument struct {
	ID             string   `bson:"_id"`
	ConversationID string   `bson:"conversation_id"`
	SenderID       string   `bson:"sender_id"`
	ReceiverID     string   `bson:"receiver_id"`
	Body           string   `bson:"body"`
	ListingID      string   `bson:"listing_id"`
	Read           bool     `bson:"read"`
	HiddenFor      []string `bson:"hidden_for"`
	CreatedAt      int64    `bson:"created_at"`
}

func newMessageDocument(m *domainchat.Message) messageDocument {
	hidden := m.HiddenFor
	if hidden == nil {
		hidden = []string{}
	}
	return messageDocument{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Body:           m.Body,
		ListingID:      m.ListingID,
		Read:           m.Read,
		HiddenFor:      hidden,
		CreatedAt:      m.CreatedAt.UnixMilli(),
	}
}

func (d messageDocument) toAggregate() *domainchat.Message {
	return &domainchat.Message{
		ID:             domainchat.MessageID(d.ID),
		ConversationID: domainchat.ConversationID(d.ConversationID),
		SenderID:       d.SenderID,
		ReceiverID:     d.ReceiverID,
		Body:           d.Body,
		ListingID:      d.ListingID,
		Read:           d.Read,
		HiddenFor:      d.HiddenFor,
		CreatedAt:      timestampToTime(d.CreatedAt),
	}
}

var _ domainchat.MessageRepository = (*MessageRepository)(nil)
