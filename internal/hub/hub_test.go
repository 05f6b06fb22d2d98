package hub

import (
	"context"
	"testing"
	"time"

	"Intralink/internal/event"
)

func newIdleClient(h *Hub, userID, connID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:         connID,
		userID:     userID,
		channel:    ChannelMessage,
		manager:    h,
		egress:     make(chan event.Envelope, sendBufSize),
		groups:     make(map[string]struct{}),
		ctx:        ctx,
		cancel:     cancel,
		connClosed: make(chan struct{}),
	}
}

// A broadcast can snapshot a group just before the member disconnects, so
// delivery must tolerate clients that closed in between.
func TestDeliverAfterClientClose(t *testing.T) {
	h := NewHub(nil)
	defer h.Stop()

	c := newIdleClient(h, "alice", "conn-1")
	// No write pump in this test; unblock Close's conn watchdog directly.
	c.connClosedOnce.Do(func() { close(c.connClosed) })
	c.Close()

	start := time.Now()
	h.deliver([]*Client{c}, "", event.New(event.EventUserTyping, event.TypingPayload{
		ConversationID: "conv-1",
		UserID:         "bob",
	}), "conversation_conv-1")

	// A closed client is skipped outright, not treated as a full egress.
	if elapsed := time.Since(start); elapsed >= sendTimeout {
		t.Fatalf("delivery to a closed client stalled for %v", elapsed)
	}

	if c.SafeSend(event.New(event.EventUserTyping, nil), 10*time.Millisecond) {
		t.Fatal("SafeSend should refuse a closed client")
	}
}

func TestDeliverSkipsExceptedConnection(t *testing.T) {
	h := NewHub(nil)
	defer h.Stop()

	sender := newIdleClient(h, "alice", "conn-a")
	other := newIdleClient(h, "bob", "conn-b")
	defer sender.cancel()
	defer other.cancel()

	env := event.New(event.EventUserTyping, event.TypingPayload{ConversationID: "conv-1", UserID: "alice"})
	h.deliver([]*Client{sender, other}, sender.ID, env, "conversation_conv-1")

	select {
	case <-sender.egress:
		t.Fatal("excluded connection received the broadcast")
	default:
	}

	select {
	case got := <-other.egress:
		if got.Type != event.EventUserTyping {
			t.Fatalf("delivered %q", got.Type)
		}
	default:
		t.Fatal("other connection did not receive the broadcast")
	}
}
