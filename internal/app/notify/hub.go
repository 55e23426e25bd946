package notify

import (
	"sync"

	"homefind/internal/domain/chat"
)

// Event is a change hint for a conversation. Clients still poll the HTTP API
// for actual data; the hub only tells subscribers that something changed.
type Event struct {
	ConversationID chat.ConversationID
	Kind           string
}

const (
	KindMessageCreated      = "message.created"
	KindConversationRead    = "conversation.read"
	KindMessageDeleted      = "message.deleted"
	KindConversationDeleted = "conversation.deleted"
)

// Hub fans conversation change hints out to in-process subscribers. Publishing
// never blocks; slow subscribers miss hints instead of stalling request
// handling.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chat.ConversationID]map[int]chan Event
	nextID int
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chat.ConversationID]map[int]chan Event)}
}

// Subscribe registers interest in one conversation. The returned cancel
// function must be called to release the subscription.
func (h *Hub) Subscribe(id chat.ConversationID, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.nextID++
	token := h.nextID
	if h.subs[id] == nil {
		h.subs[id] = make(map[int]chan Event)
	}
	h.subs[id][token] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if listeners, ok := h.subs[id]; ok {
			if sub, ok := listeners[token]; ok {
				delete(listeners, token)
				close(sub)
			}
			if len(listeners) == 0 {
				delete(h.subs, id)
			}
		}
	}
	return ch, cancel
}

// Publish delivers an event to current subscribers of its conversation.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs[event.ConversationID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close drops all subscriptions and closes their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, listeners := range h.subs {
		for token, ch := range listeners {
			delete(listeners, token)
			close(ch)
		}
		delete(h.subs, id)
	}
}
