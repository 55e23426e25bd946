package chat

import (
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	ErrConversationIDRequired = errors.New("chat: conversation id is required")
	ErrParticipantsInvalid    = errors.New("chat: a conversation needs exactly two participants")
	ErrListingRequired        = errors.New("chat: listing id is required")
	ErrListingTitleRequired   = errors.New("chat: listing title is required")
	ErrConversationNotFound   = errors.New("chat: conversation not found")
	ErrNotParticipant         = errors.New("chat: caller is not a conversation participant")
)

type ConversationID string

// Conversation is a buyer/seller thread about a single listing. Unread counts
// are tracked per participant so one side reading never clears the other's.
type Conversation struct {
	ID           ConversationID
	Participants []string
	ListingID    string
	ListingTitle string
	LastMessage  string
	Unread       map[string]int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateConversationParams struct {
	ID           ConversationID
	Participants []string
	ListingID    string
	ListingTitle string
	Now          time.Time
}

func NewConversation(params CreateConversationParams) (*Conversation, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrConversationIDRequired
	}
	participants := NormalizeParticipants(params.Participants)
	if len(participants) != 2 {
		return nil, ErrParticipantsInvalid
	}
	listingID := strings.TrimSpace(params.ListingID)
	if listingID == "" {
		return nil, ErrListingRequired
	}
	listingTitle := strings.TrimSpace(params.ListingTitle)
	if listingTitle == "" {
		return nil, ErrListingTitleRequired
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Conversation{
		ID:           ConversationID(id),
		Participants: participants,
		ListingID:    listingID,
		ListingTitle: listingTitle,
		Unread:       make(map[string]int, 2),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the peer of userID, or empty when userID is not a
// participant. Self-conversations return userID itself.
func (c *Conversation) OtherParticipant(userID string) string {
	if !c.HasParticipant(userID) {
		return ""
	}
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return userID
}

// UnreadFor reports the pending message count from userID's perspective.
func (c *Conversation) UnreadFor(userID string) int {
	if c.Unread == nil {
		return 0
	}
	return c.Unread[userID]
}

// RecordMessage applies a new message to the denormalized summary state.
// Store implementations mirror this with atomic field updates.
func (c *Conversation) RecordMessage(receiverID, body string, at time.Time) {
	c.LastMessage = body
	if c.Unread == nil {
		c.Unread = make(map[string]int, 2)
	}
	c.Unread[receiverID]++
	c.touch(at)
}

// ResetUnread zeroes userID's counter. Idempotent.
func (c *Conversation) ResetUnread(userID string, at time.Time) {
	if c.Unread == nil {
		return
	}
	if c.Unread[userID] == 0 {
		return
	}
	c.Unread[userID] = 0
	c.touch(at)
}

func (c *Conversation) touch(at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	c.UpdatedAt = at.UTC()
}

// PairKey builds the lookup key for the conversation's unordered participant
// pair, used to enforce the one-thread-per-pair-per-listing invariant.
func (c *Conversation) PairKey() string {
	return PairKey(c.Participants...)
}

// PairKey returns a stable key for an unordered participant set.
func PairKey(participants ...string) string {
	return strings.Join(NormalizeParticipants(participants), "|")
}

// NormalizeParticipants trims, dedupes and sorts participant ids so that the
// same pair always serializes identically regardless of sender/receiver order.
func NormalizeParticipants(participants []string) []string {
	seen := make(map[string]struct{}, len(participants))
	normalized := make([]string, 0, len(participants))
	for _, p := range participants {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		normalized = append(normalized, p)
	}
	sort.Strings(normalized)
	return normalized
}
