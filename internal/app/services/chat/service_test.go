package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"homefind/internal/app/notify"
	appoutbox "homefind/internal/app/outbox"
	domainchat "homefind/internal/domain/chat"
	"homefind/internal/infra/storage/memory"
)

type fixture struct {
	service       *Service
	conversations *memory.ConversationRepository
	messages      *memory.MessageRepository
	outbox        *memory.Outbox
	hub           *notify.Hub
	clock         *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newFixture() *fixture {
	conversations := memory.NewConversationRepository()
	messages := memory.NewMessageRepository()
	box := memory.NewOutbox()
	hub := notify.NewHub()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return &fixture{
		service: &Service{
			Units:  memory.Factory{ConversationRepo: conversations, MessageRepo: messages},
			Outbox: box,
			Hub:    hub,
			Clock:  clock.Now,
		},
		conversations: conversations,
		messages:      messages,
		outbox:        box,
		hub:           hub,
		clock:         clock,
	}
}

func (f *fixture) send(t *testing.T, sender, receiver, body string) *domainchat.Message {
	t.Helper()
	message, err := f.service.CreateMessage(context.Background(), CreateMessageParams{
		CallerID:     sender,
		ReceiverID:   receiver,
		Body:         body,
		ListingID:    "listing-123",
		ListingTitle: "Cozy Loft",
	})
	if err != nil {
		t.Fatalf("CreateMessage(%s→%s): %v", sender, receiver, err)
	}
	return message
}

func TestCreateMessageValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	valid := CreateMessageParams{
		CallerID:     "alice",
		ReceiverID:   "bob",
		Body:         "hi",
		ListingID:    "listing-123",
		ListingTitle: "Cozy Loft",
	}

	cases := []struct {
		name    string
		mutate  func(*CreateMessageParams)
		wantErr error
	}{
		{"missing receiver", func(p *CreateMessageParams) { p.ReceiverID = "" }, domainchat.ErrReceiverRequired},
		{"empty body", func(p *CreateMessageParams) { p.Body = "  " }, domainchat.ErrBodyRequired},
		{"missing listing", func(p *CreateMessageParams) { p.ListingID = "" }, domainchat.ErrListingRequired},
		{"missing title", func(p *CreateMessageParams) { p.ListingTitle = "" }, domainchat.ErrListingTitleRequired},
		{"self message", func(p *CreateMessageParams) { p.ReceiverID = "alice" }, ErrSelfMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := valid
			tc.mutate(&params)
			if _, err := f.service.CreateMessage(ctx, params); !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestCreateMessageDedupesConversation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first := f.send(t, "alice", "bob", "hi")
	// Reply goes to the same thread regardless of direction.
	second := f.send(t, "bob", "alice", "hello back")
	third := f.send(t, "alice", "bob", "great")

	if first.ConversationID != second.ConversationID || second.ConversationID != third.ConversationID {
		t.Fatal("messages for the same pair and listing split across conversations")
	}

	aliceThreads, err := f.service.GetConversations(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(aliceThreads) != 1 {
		t.Fatalf("alice sees %d conversations, want 1", len(aliceThreads))
	}
	conv := aliceThreads[0]
	if conv.LastMessage != "great" {
		t.Fatalf("lastMessage = %q", conv.LastMessage)
	}
	if got := conv.UnreadFor("bob"); got != 2 {
		t.Fatalf("bob unread = %d, want 2", got)
	}
	if got := conv.UnreadFor("alice"); got != 1 {
		t.Fatalf("alice unread = %d, want 1", got)
	}
}

func TestCreateMessageSeparatesListings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.send(t, "alice", "bob", "about the loft")
	if _, err := f.service.CreateMessage(ctx, CreateMessageParams{
		CallerID:     "alice",
		ReceiverID:   "bob",
		Body:         "about the cottage",
		ListingID:    "listing-456",
		ListingTitle: "Country Cottage",
	}); err != nil {
		t.Fatal(err)
	}

	threads, err := f.service.GetConversations(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 2 {
		t.Fatalf("got %d conversations, want 2", len(threads))
	}
	// Most recently active first.
	if threads[0].ListingID != "listing-456" {
		t.Fatalf("ordering by updatedAt broken: %q first", threads[0].ListingID)
	}
}

func TestGetMessagesOrderingAndAccess(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.send(t, "alice", "bob", "one")
	f.send(t, "bob", "alice", "two")
	last := f.send(t, "alice", "bob", "three")

	messages, err := f.service.GetMessages(ctx, "bob", last.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(messages))
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatal("messages not in ascending createdAt order")
		}
	}
	if messages[0].Body != "one" || messages[2].Body != "three" {
		t.Fatalf("unexpected order: %q ... %q", messages[0].Body, messages[2].Body)
	}

	if _, err := f.service.GetMessages(ctx, "mallory", last.ConversationID); !errors.Is(err, domainchat.ErrNotParticipant) {
		t.Fatalf("non-participant read: got %v, want ErrNotParticipant", err)
	}
	if _, err := f.service.GetMessages(ctx, "bob", "missing"); !errors.Is(err, domainchat.ErrConversationNotFound) {
		t.Fatalf("missing conversation: got %v, want ErrConversationNotFound", err)
	}
}

func TestMarkAsReadIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.send(t, "alice", "bob", "hi")
	msg := f.send(t, "alice", "bob", "still there?")

	for i := 0; i < 2; i++ {
		if err := f.service.MarkAsRead(ctx, "bob", msg.ConversationID); err != nil {
			t.Fatalf("MarkAsRead #%d: %v", i+1, err)
		}
		threads, err := f.service.GetConversations(ctx, "bob")
		if err != nil {
			t.Fatal(err)
		}
		if got := threads[0].UnreadFor("bob"); got != 0 {
			t.Fatalf("unread after MarkAsRead #%d = %d, want 0", i+1, got)
		}
	}

	messages, err := f.service.GetMessages(ctx, "bob", msg.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range messages {
		if !m.Read {
			t.Fatalf("message %s still unread", m.ID)
		}
	}

	if err := f.service.MarkAsRead(ctx, "mallory", msg.ConversationID); !errors.Is(err, domainchat.ErrNotParticipant) {
		t.Fatalf("got %v, want ErrNotParticipant", err)
	}
	if err := f.service.MarkAsRead(ctx, "bob", "missing"); !errors.Is(err, domainchat.ErrConversationNotFound) {
		t.Fatalf("got %v, want ErrConversationNotFound", err)
	}
}

type failingOutbox struct{}

func (failingOutbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	return errors.New("outbox unavailable")
}

func TestCreateMessageLeavesNoStateOnOutboxFailure(t *testing.T) {
	f := newFixture()
	f.service.Outbox = failingOutbox{}
	ctx := context.Background()

	_, err := f.service.CreateMessage(ctx, CreateMessageParams{
		CallerID:     "alice",
		ReceiverID:   "bob",
		Body:         "hi",
		ListingID:    "listing-123",
		ListingTitle: "Cozy Loft",
	})
	if err == nil {
		t.Fatal("expected the outbox failure to surface")
	}

	pairKey := domainchat.PairKey("alice", "bob")
	if _, err := f.conversations.ByPair(ctx, pairKey, "listing-123"); !errors.Is(err, domainchat.ErrConversationNotFound) {
		t.Fatalf("conversation survived the failed send: %v", err)
	}
	threads, err := f.service.GetConversations(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 0 {
		t.Fatalf("bob lists %d conversations after a failed send", len(threads))
	}
}

func TestMarkAsReadBumpsUpdatedAtOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	msg := f.send(t, "alice", "bob", "hi")
	before, err := f.conversations.ByID(ctx, msg.ConversationID)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.service.MarkAsRead(ctx, "bob", msg.ConversationID); err != nil {
		t.Fatal(err)
	}
	after, err := f.conversations.ByID(ctx, msg.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Fatalf("updatedAt did not move on read: %v -> %v", before.UpdatedAt, after.UpdatedAt)
	}

	// With nothing unread a repeat read leaves the timestamp alone.
	if err := f.service.MarkAsRead(ctx, "bob", msg.ConversationID); err != nil {
		t.Fatal(err)
	}
	again, err := f.conversations.ByID(ctx, msg.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if !again.UpdatedAt.Equal(after.UpdatedAt) {
		t.Fatalf("repeat read moved updatedAt: %v -> %v", after.UpdatedAt, again.UpdatedAt)
	}
}

func TestMarkAsReadLeavesSenderSideAlone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.send(t, "alice", "bob", "hi")
	msg := f.send(t, "bob", "alice", "hello")

	if err := f.service.MarkAsRead(ctx, "bob", msg.ConversationID); err != nil {
		t.Fatal(err)
	}
	threads, err := f.service.GetConversations(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got := threads[0].UnreadFor("alice"); got != 1 {
		t.Fatalf("alice unread = %d, want 1 after bob read", got)
	}
}

func TestDeleteMessageForEveryone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first := f.send(t, "alice", "bob", "one")
	second := f.send(t, "alice", "bob", "two")

	// Deleting a non-last message leaves lastMessage alone.
	if mode, err := f.service.DeleteMessage(ctx, "alice", first.ID, domainchat.DeleteForEveryone); err != nil || mode != domainchat.DeleteForEveryone {
		t.Fatalf("got %q, %v", mode, err)
	}
	conv, err := f.conversations.ByID(ctx, second.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if conv.LastMessage != "two" {
		t.Fatalf("lastMessage = %q, want \"two\"", conv.LastMessage)
	}

	// Deleting the only remaining message empties lastMessage.
	if _, err := f.service.DeleteMessage(ctx, "alice", second.ID, domainchat.DeleteForEveryone); err != nil {
		t.Fatal(err)
	}
	conv, err = f.conversations.ByID(ctx, second.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if conv.LastMessage != "" {
		t.Fatalf("lastMessage = %q, want empty", conv.LastMessage)
	}

	messages, err := f.service.GetMessages(ctx, "alice", second.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 0 {
		t.Fatalf("%d messages remain after deletes", len(messages))
	}
}

func TestDeleteMessageRecomputesLastFromNewestRemaining(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.send(t, "alice", "bob", "one")
	f.send(t, "alice", "bob", "two")
	third := f.send(t, "alice", "bob", "three")

	if _, err := f.service.DeleteMessage(ctx, "alice", third.ID, domainchat.DeleteForEveryone); err != nil {
		t.Fatal(err)
	}
	conv, err := f.conversations.ByID(ctx, third.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if conv.LastMessage != "two" {
		t.Fatalf("lastMessage = %q, want \"two\"", conv.LastMessage)
	}
}

func TestDeleteMessageForSelf(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	msg := f.send(t, "alice", "bob", "typo msg")
	f.send(t, "alice", "bob", "final word")

	if mode, err := f.service.DeleteMessage(ctx, "alice", msg.ID, domainchat.DeleteForSelf); err != nil || mode != domainchat.DeleteForSelf {
		t.Fatalf("got %q, %v", mode, err)
	}

	aliceView, err := f.service.GetMessages(ctx, "alice", msg.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if len(aliceView) != 1 || aliceView[0].Body != "final word" {
		t.Fatalf("alice still sees hidden message: %+v", aliceView)
	}
	bobView, err := f.service.GetMessages(ctx, "bob", msg.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if len(bobView) != 2 {
		t.Fatalf("bob view shrunk to %d messages", len(bobView))
	}
}

func TestDeleteMessagePermissions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	msg := f.send(t, "alice", "bob", "mine")

	for _, mode := range []domainchat.DeleteMode{domainchat.DeleteForSelf, domainchat.DeleteForEveryone} {
		if _, err := f.service.DeleteMessage(ctx, "bob", msg.ID, mode); !errors.Is(err, domainchat.ErrNotSender) {
			t.Fatalf("mode %q: got %v, want ErrNotSender", mode, err)
		}
	}
	if _, err := f.service.DeleteMessage(ctx, "alice", "missing", domainchat.DeleteForEveryone); !errors.Is(err, domainchat.ErrMessageNotFound) {
		t.Fatalf("got %v, want ErrMessageNotFound", err)
	}
	if _, err := f.service.DeleteMessage(ctx, "alice", msg.ID, domainchat.DeleteMode("both")); !errors.Is(err, domainchat.ErrInvalidDeleteMode) {
		t.Fatalf("got %v, want ErrInvalidDeleteMode", err)
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	msg := f.send(t, "alice", "bob", "hi")
	f.send(t, "bob", "alice", "hello")

	if err := f.service.DeleteConversation(ctx, "mallory", msg.ConversationID); !errors.Is(err, domainchat.ErrNotParticipant) {
		t.Fatalf("got %v, want ErrNotParticipant", err)
	}
	if err := f.service.DeleteConversation(ctx, "bob", msg.ConversationID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.service.GetMessages(ctx, "alice", msg.ConversationID); !errors.Is(err, domainchat.ErrConversationNotFound) {
		t.Fatalf("got %v, want ErrConversationNotFound", err)
	}
	threads, err := f.service.GetConversations(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 0 {
		t.Fatalf("alice still lists %d conversations", len(threads))
	}
	if _, err := f.messages.ByID(ctx, msg.ID); !errors.Is(err, domainchat.ErrMessageNotFound) {
		t.Fatal("cascade left an orphaned message behind")
	}
	if err := f.service.DeleteConversation(ctx, "bob", msg.ConversationID); !errors.Is(err, domainchat.ErrConversationNotFound) {
		t.Fatalf("second delete: got %v, want ErrConversationNotFound", err)
	}
}

func TestOperationsRecordOutboxEvents(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	msg := f.send(t, "alice", "bob", "hi")
	if err := f.service.MarkAsRead(ctx, "bob", msg.ConversationID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.DeleteMessage(ctx, "alice", msg.ID, domainchat.DeleteForEveryone); err != nil {
		t.Fatal(err)
	}
	if err := f.service.DeleteConversation(ctx, "alice", msg.ConversationID); err != nil {
		t.Fatal(err)
	}

	want := []string{
		domainchat.EventMessageCreated,
		domainchat.EventConversationRead,
		domainchat.EventMessageDeleted,
		domainchat.EventConversationDeleted,
	}
	records := f.outbox.Records()
	if len(records) != len(want) {
		t.Fatalf("recorded %d events, want %d", len(records), len(want))
	}
	for i, record := range records {
		if record.Name != want[i] {
			t.Fatalf("event[%d] = %q, want %q", i, record.Name, want[i])
		}
		if record.Aggregate != string(msg.ConversationID) {
			t.Fatalf("event[%d] aggregate = %q", i, record.Aggregate)
		}
	}
}

func TestCreateMessageNotifiesSubscribers(t *testing.T) {
	f := newFixture()

	first := f.send(t, "alice", "bob", "hi")
	ch, cancel := f.hub.Subscribe(first.ConversationID, 2)
	defer cancel()

	f.send(t, "alice", "bob", "anyone home?")

	select {
	case event := <-ch:
		if event.Kind != notify.KindMessageCreated {
			t.Fatalf("kind = %q", event.Kind)
		}
	default:
		t.Fatal("no notification published after commit")
	}
}

// The walkthrough from the product brief: two messages, a read, a cascade.
func TestConversationLifecycleEndToEnd(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first := f.send(t, "userA", "userB", "Hi")
	threads, err := f.service.GetConversations(ctx, "userB")
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 1 || threads[0].UnreadFor("userB") != 1 || threads[0].LastMessage != "Hi" {
		t.Fatalf("after first message: %+v", threads)
	}

	f.send(t, "userA", "userB", "Still there?")
	threads, _ = f.service.GetConversations(ctx, "userB")
	if threads[0].UnreadFor("userB") != 2 || threads[0].LastMessage != "Still there?" {
		t.Fatalf("after second message: %+v", threads[0])
	}

	if err := f.service.MarkAsRead(ctx, "userB", first.ConversationID); err != nil {
		t.Fatal(err)
	}
	threads, _ = f.service.GetConversations(ctx, "userB")
	if threads[0].UnreadFor("userB") != 0 {
		t.Fatalf("unread after read: %d", threads[0].UnreadFor("userB"))
	}
	messages, _ := f.service.GetMessages(ctx, "userB", first.ConversationID)
	for _, m := range messages {
		if !m.Read {
			t.Fatalf("message %q unread after MarkAsRead", m.Body)
		}
	}

	if err := f.service.DeleteConversation(ctx, "userB", first.ConversationID); err != nil {
		t.Fatal(err)
	}
	threads, _ = f.service.GetConversations(ctx, "userA")
	if len(threads) != 0 {
		t.Fatal("userA still lists the deleted conversation")
	}
}
