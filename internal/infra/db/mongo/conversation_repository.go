package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "homefind/internal/domain/chat"
)

type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	col := db.Collection("chat_conversations")
	// One thread per participant pair and listing.
	pairIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "pair_key", Value: 1}, {Key: "listing_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	listIdx := mongo.IndexModel{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}}}
	_, _ = col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{pairIdx, listIdx})
	return &ConversationRepository{col: col}
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ConversationRepository) ByPair(ctx context.Context, pairKey, listingID string) (*domainchat.Conversation, error) {
	var doc conversationDocument
	filter := bson.M{"pair_key": pairKey, "listing_id": listingID}
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]domainchat.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := r.col.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	result := make([]domainchat.Conversation, 0)
	for cursor.Next(ctx) {
		var doc conversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, *doc.toAggregate())
	}
	return result, cursor.Err()
}

func (r *ConversationRepository) Insert(ctx context.Context, conversation *domainchat.Conversation) error {
	_, err := r.col.InsertOne(ctx, newConversationDocument(conversation))
	if mongo.IsDuplicateKeyError(err) {
		return domainchat.ErrParticipantsInvalid
	}
	return err
}

// RecordMessage bumps the summary and the receiver's unread counter in one
// field-level update, so concurrent senders never clobber each other.
func (r *ConversationRepository) RecordMessage(ctx context.Context, id domainchat.ConversationID, receiverID, body string, at time.Time) error {
	update := bson.M{
		"$set": bson.M{"last_message": body, "updated_at": at.UTC().UnixMilli()},
		"$inc": bson.M{"unread." + receiverID: 1},
	}
	res, err := r.col.UpdateByID(ctx, string(id), update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) ResetUnread(ctx context.Context, id domainchat.ConversationID, userID string, at time.Time) error {
	// Matching only a positive counter keeps repeat reads write-free, so
	// updated_at moves only when the count actually changes.
	filter := bson.M{"_id": string(id), "unread." + userID: bson.M{"$gt": 0}}
	update := bson.M{"$set": bson.M{"unread." + userID: 0, "updated_at": at.UTC().UnixMilli()}}
	_, err := r.col.UpdateOne(ctx, filter, update)
	return err
}

func (r *ConversationRepository) SetLastMessage(ctx context.Context, id domainchat.ConversationID, body string, at time.Time) error {
	update := bson.M{"$set": bson.M{"last_message": body, "updated_at": at.UTC().UnixMilli()}}
	res, err := r.col.UpdateByID(ctx, string(id), update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) Delete(ctx context.Context, id domainchat.ConversationID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

type conversationDocument struct {
	ID           string         `bson:"_id"`
	Participants []string       `bson:"participants"`
	PairKey      string         `bson:"pair_key"`
	ListingID    string         `bson:"listing_id"`
	ListingTitle string         `bson:"listing_title"`
	LastMessage  string         `bson:"last_message"`
	Unread       map[string]int `bson:"unread"`
	CreatedAt    int64          `bson:"created_at"`
	UpdatedAt    int64          `bson:"updated_at"`
}

func newConversationDocument(c *domainchat.Conversation) conversationDocument {
	unread := c.Unread
	if unread == nil {
		unread = map[string]int{}
	}
	return conversationDocument{
		ID:           string(c.ID),
		Participants: c.Participants,
		PairKey:      c.PairKey(),
		ListingID:    c.ListingID,
		ListingTitle: c.ListingTitle,
		LastMessage:  c.LastMessage,
		Unread:       unread,
		CreatedAt:    c.CreatedAt.UnixMilli(),
		UpdatedAt:    c.UpdatedAt.UnixMilli(),
	}
}

func (d conversationDocument) toAggregate() *domainchat.Conversation {
	unread := d.Unread
	if unread == nil {
		unread = map[string]int{}
	}
	return &domainchat.Conversation{
		ID:           domainchat.ConversationID(d.ID),
		Participants: d.Participants,
		ListingID:    d.ListingID,
		ListingTitle: d.ListingTitle,
		LastMessage:  d.LastMessage,
		Unread:       unread,
		CreatedAt:    timestampToTime(d.CreatedAt),
		UpdatedAt:    timestampToTime(d.UpdatedAt),
	}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ domainchat.ConversationRepository = (*ConversationRepository)(nil)
