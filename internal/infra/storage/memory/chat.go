package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainchat "homefind/internal/domain/chat"
)

// ConversationRepository is an in-memory conversation store used as a dev
// fallback and as a test double. Counter updates happen under the lock, so
// they are atomic like the Mongo field increments they stand in for.
type ConversationRepository struct {
	mu     sync.RWMutex
	items  map[domainchat.ConversationID]*domainchat.Conversation
	byPair map[pairListingKey]domainchat.ConversationID
}

type pairListingKey struct {
	pair    string
	listing string
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		items:  make(map[domainchat.ConversationID]*domainchat.Conversation),
		byPair: make(map[pairListingKey]domainchat.ConversationID),
	}
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conversation, ok := r.items[id]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(conversation), nil
}

func (r *ConversationRepository) ByPair(ctx context.Context, pairKey, listingID string) (*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPair[pairListingKey{pair: pairKey, listing: listingID}]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(r.items[id]), nil
}

func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domainchat.Conversation, 0)
	for _, conversation := range r.items {
		if conversation.HasParticipant(userID) {
			result = append(result, *cloneConversation(conversation))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (r *ConversationRepository) Insert(ctx context.Context, conversation *domainchat.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairListingKey{pair: conversation.PairKey(), listing: conversation.ListingID}
	if _, exists := r.byPair[key]; exists {
		return domainchat.ErrParticipantsInvalid
	}
	r.items[conversation.ID] = cloneConversation(conversation)
	r.byPair[key] = conversation.ID
	return nil
}

func (r *ConversationRepository) RecordMessage(ctx context.Context, id domainchat.ConversationID, receiverID, body string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation, ok := r.items[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	conversation.RecordMessage(receiverID, body, at)
	return nil
}

func (r *ConversationRepository) ResetUnread(ctx context.Context, id domainchat.ConversationID, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation, ok := r.items[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	conversation.ResetUnread(userID, at)
	return nil
}

func (r *ConversationRepository) SetLastMessage(ctx context.Context, id domainchat.ConversationID, body string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation, ok := r.items[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	conversation.LastMessage = body
	conversation.UpdatedAt = at.UTC()
	return nil
}

func (r *ConversationRepository) Delete(ctx context.Context, id domainchat.ConversationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation, ok := r.items[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	delete(r.byPair, pairListingKey{pair: conversation.PairKey(), listing: conversation.ListingID})
	delete(r.items, id)
	return nil
}

// cloneStore returns a deep copy used to stage transactional writes.
func (r *ConversationRepository) cloneStore() *ConversationRepository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := NewConversationRepository()
	for id, conversation := range r.items {
		out.items[id] = cloneConversation(conversation)
	}
	for key, id := range r.byPair {
		out.byPair[key] = id
	}
	return out
}

// adopt swaps in staged state wholesale.
func (r *ConversationRepository) adopt(staged *ConversationRepository) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = staged.items
	r.byPair = staged.byPair
}

func cloneConversation(c *domainchat.Conversation) *domainchat.Conversation {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Participants = append([]string(nil), c.Participants...)
	clone.Unread = make(map[string]int, len(c.Unread))
	for k, v := range c.Unread {
		clone.Unread[k] = v
	}
	return &clone
}

// MessageRepository is the in-memory message store.
type MessageRepository struct {
	mu    sync.RWMutex
	items map[domainchat.MessageID]*domainchat.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{items: make(map[domainchat.MessageID]*domainchat.Message)}
}

func (r *MessageRepository) ByID(ctx context.Context, id domainchat.MessageID) (*domainchat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	message, ok := r.items[id]
	if !ok {
		return nil, domainchat.ErrMessageNotFound
	}
	return cloneMessage(message), nil
}

func (r *MessageRepository) ListByConversation(ctx context.Context, id domainchat.ConversationID, viewerID string) ([]domainchat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domainchat.Message, 0)
	for _, message := range r.items {
		if message.ConversationID != id {
			continue
		}
		if !message.VisibleTo(viewerID) {
			continue
		}
		result = append(result, *cloneMessage(message))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MessageRepository) Latest(ctx context.Context, id domainchat.ConversationID) (*domainchat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domainchat.Message
	for _, message := range r.items {
		if message.ConversationID != id {
			continue
		}
		if latest == nil || message.CreatedAt.After(latest.CreatedAt) {
			latest = message
		}
	}
	if latest == nil {
		return nil, domainchat.ErrMessageNotFound
	}
	return cloneMessage(latest), nil
}

func (r *MessageRepository) Insert(ctx context.Context, message *domainchat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[message.ID] = cloneMessage(message)
	return nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id domainchat.ConversationID, receiverID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var flipped int64
	for _, message := range r.items {
		if message.ConversationID != id || message.ReceiverID != receiverID || message.Read {
			continue
		}
		message.Read = true
		flipped++
	}
	return flipped, nil
}

func (r *MessageRepository) Hide(ctx context.Context, id domainchat.MessageID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	message, ok := r.items[id]
	if !ok {
		return domainchat.ErrMessageNotFound
	}
	message.HideFor(userID)
	return nil
}

func (r *MessageRepository) Delete(ctx context.Context, id domainchat.MessageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return domainchat.ErrMessageNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *MessageRepository) DeleteByConversation(ctx context.Context, id domainchat.ConversationID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for messageID, message := range r.items {
		if message.ConversationID == id {
			delete(r.items, messageID)
			removed++
		}
	}
	return removed, nil
}

// cloneStore returns a deep copy used to stage transactional writes.
func (r *MessageRepository) cloneStore() *MessageRepository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := NewMessageRepository()
	for id, message := range r.items {
		out.items[id] = cloneMessage(message)
	}
	return out
}

// adopt swaps in staged state wholesale.
func (r *MessageRepository) adopt(staged *MessageRepository) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = staged.items
}

func cloneMessage(m *domainchat.Message) *domainchat.Message {
	if m == nil {
		return nil
	}
	clone := *m
	clone.HiddenFor = append([]string(nil), m.HiddenFor...)
	return &clone
}

var (
	_ domainchat.ConversationRepository = (*ConversationRepository)(nil)
	_ domainchat.MessageRepository      = (*MessageRepository)(nil)
)
