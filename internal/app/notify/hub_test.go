package notify

import "testing"

func TestHubDeliversToConversationSubscribers(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("conv-1", 1)
	defer cancel()
	other, cancelOther := hub.Subscribe("conv-2", 1)
	defer cancelOther()

	hub.Publish(Event{ConversationID: "conv-1", Kind: KindMessageCreated})

	select {
	case got := <-ch:
		if got.Kind != KindMessageCreated {
			t.Fatalf("kind = %q", got.Kind)
		}
	default:
		t.Fatal("subscriber did not receive event")
	}
	select {
	case ev := <-other:
		t.Fatalf("unrelated subscriber received %v", ev)
	default:
	}
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe("conv-1", 1)
	defer cancel()

	// Buffer of one: the second publish must drop, not block.
	hub.Publish(Event{ConversationID: "conv-1", Kind: KindMessageCreated})
	hub.Publish(Event{ConversationID: "conv-1", Kind: KindMessageCreated})
}

func TestHubCancelAndClose(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("conv-1", 1)
	cancel()
	if _, open := <-ch; open {
		t.Fatal("cancelled channel still open")
	}
	// Cancel twice is safe.
	cancel()

	ch2, _ := hub.Subscribe("conv-1", 1)
	hub.Close()
	if _, open := <-ch2; open {
		t.Fatal("channel open after hub close")
	}
	// Publishing after close is a no-op.
	hub.Publish(Event{ConversationID: "conv-1"})
}
