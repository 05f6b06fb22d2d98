package client

import (
	"Intralink/internal/event"
	"testing"
	"time"
)

func msgAt(id, convID, senderID string, ts time.Time) event.MessagePayload {
	return event.MessagePayload{
		ID:             id,
		ConversationID: convID,
		SenderID:       senderID,
		Content:        "hello",
		Timestamp:      ts,
	}
}

func TestCacheDeduplicatesByID(t *testing.T) {
	c := NewConversationCache("me")
	base := time.Now()

	c.AddMessage(msgAt("m1", "conv", "peer", base))
	c.AddMessage(msgAt("m1", "conv", "peer", base))

	if got := len(c.Messages("conv")); got != 1 {
		t.Fatalf("expected 1 message after duplicate add, got %d", got)
	}
	if got := c.UnreadCount("conv"); got != 1 {
		t.Errorf("duplicate must not double-count unread, got %d", got)
	}
}

func TestCacheReordersOutOfOrderArrivals(t *testing.T) {
	c := NewConversationCache("me")
	base := time.Now()

	c.AddMessage(msgAt("m2", "conv", "peer", base.Add(2*time.Second)))
	c.AddMessage(msgAt("m1", "conv", "peer", base.Add(1*time.Second)))
	c.AddMessage(msgAt("m3", "conv", "peer", base.Add(3*time.Second)))

	msgs := c.Messages("conv")
	want := []string{"m1", "m2", "m3"}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, msgs[i].ID, id)
		}
	}
}

func TestCacheUnreadCounting(t *testing.T) {
	c := NewConversationCache("me")
	base := time.Now()

	c.AddMessage(msgAt("in1", "conv", "peer", base))
	c.AddMessage(msgAt("in2", "conv", "peer", base.Add(time.Second)))
	c.AddMessage(msgAt("out1", "conv", "me", base.Add(2*time.Second)))

	if got := c.UnreadCount("conv"); got != 2 {
		t.Fatalf("own messages must not count as unread: got %d, want 2", got)
	}

	c.MarkRead("conv", "in1")
	if got := c.UnreadCount("conv"); got != 1 {
		t.Fatalf("after one read: got %d, want 1", got)
	}

	// Applying the same receipt again must not decrement a second time.
	c.MarkRead("conv", "in1")
	if got := c.UnreadCount("conv"); got != 1 {
		t.Fatalf("repeated receipt changed the count: got %d, want 1", got)
	}

	c.MarkRead("conv", "in2")
	if got := c.TotalUnread(); got != 0 {
		t.Fatalf("total unread: got %d, want 0", got)
	}
}

func TestCacheOptimisticInsertRollback(t *testing.T) {
	c := NewConversationCache("me")

	rollback := c.AddPending(msgAt("pending-1", "conv", "me", time.Now()))
	if got := len(c.Messages("conv")); got != 1 {
		t.Fatalf("pending message missing: got %d messages", got)
	}

	rollback()
	if got := len(c.Messages("conv")); got != 0 {
		t.Fatalf("rollback left %d messages", got)
	}
}

func TestCacheOptimisticConfirmSwapsID(t *testing.T) {
	c := NewConversationCache("me")
	base := time.Now()

	c.AddPending(msgAt("pending-1", "conv", "me", base))
	c.Confirm("pending-1", msgAt("server-1", "conv", "me", base.Add(50*time.Millisecond)))

	msgs := c.Messages("conv")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message after confirm, got %d", len(msgs))
	}
	if msgs[0].ID != "server-1" {
		t.Errorf("confirmed ID: got %s, want server-1", msgs[0].ID)
	}
}

func TestCacheApplyEditedAndUnsent(t *testing.T) {
	c := NewConversationCache("me")
	url := "https://files.local/a.png"
	msg := msgAt("m1", "conv", "peer", time.Now())
	msg.AttachmentURL = &url
	c.AddMessage(msg)

	c.ApplyEdited("conv", event.EditedPayload{MessageID: "m1", Content: "fixed"})
	got := c.Messages("conv")[0]
	if got.Content != "fixed" || !got.IsEdited {
		t.Fatalf("edit not applied: %+v", got)
	}

	c.ApplyUnsent("conv", "m1")
	got = c.Messages("conv")[0]
	if got.Content != "" || got.AttachmentURL != nil || !got.IsUnsent {
		t.Fatalf("unsend must blank content and attachment: %+v", got)
	}
	if len(c.Messages("conv")) != 1 {
		t.Fatal("unsend must keep the placeholder in the timeline")
	}
}

func TestCacheApplyDeletedAdjustsUnread(t *testing.T) {
	c := NewConversationCache("me")
	c.AddMessage(msgAt("m1", "conv", "peer", time.Now()))

	c.ApplyDeleted("conv", "m1")
	if got := len(c.Messages("conv")); got != 0 {
		t.Fatalf("deleted message still present: %d", got)
	}
	if got := c.UnreadCount("conv"); got != 0 {
		t.Fatalf("deleting an unread message must release its count, got %d", got)
	}
}

func TestCacheTypingExpiry(t *testing.T) {
	c := NewConversationCache("me")
	current := time.Now()
	c.now = func() time.Time { return current }

	c.SetTyping("conv", "alice")
	c.SetTyping("conv", "bob")

	if got := c.TypingUsers("conv"); len(got) != 2 {
		t.Fatalf("expected 2 typing users, got %v", got)
	}

	current = current.Add(2 * time.Second)
	c.SetTyping("conv", "bob")

	current = current.Add(2 * time.Second)
	got := c.TypingUsers("conv")
	if len(got) != 1 || got[0] != "bob" {
		t.Fatalf("alice's signal should have expired: got %v", got)
	}

	current = current.Add(typingTTL)
	if got := c.TypingUsers("conv"); len(got) != 0 {
		t.Fatalf("all signals should have expired: got %v", got)
	}
}

func TestPresenceCache(t *testing.T) {
	c := NewPresenceCache()

	if online, _ := c.IsOnline("alice"); online {
		t.Fatal("unknown peer must read offline")
	}

	c.Apply(event.StatusChangedPayload{UserID: "alice", IsOnline: true})
	if online, _ := c.IsOnline("alice"); !online {
		t.Fatal("alice should be online")
	}

	seen := time.Now()
	c.Apply(event.StatusChangedPayload{UserID: "alice", IsOnline: false, LastSeen: &seen})
	online, lastSeen := c.IsOnline("alice")
	if online {
		t.Fatal("alice should be offline")
	}
	if lastSeen == nil || !lastSeen.Equal(seen) {
		t.Fatalf("last seen: got %v, want %v", lastSeen, seen)
	}

	c.Apply(event.StatusChangedPayload{UserID: "bob", IsOnline: true})
	if got := c.OnlineUsers(); len(got) != 1 || got[0] != "bob" {
		t.Fatalf("online users: got %v", got)
	}
}
