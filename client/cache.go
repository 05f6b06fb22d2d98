package client

import (
	"Intralink/internal/event"
	"sort"
	"sync"
	"time"
)

const typingTTL = 3 * time.Second

// ConversationCache reconciles the local view of conversations against the
// event stream. It is safe for concurrent use by event handlers and the UI.
//
// Unread counting only covers messages addressed to the local user; the
// user's own messages never count.
type ConversationCache struct {
	mu     sync.Mutex
	userID string
	now    func() time.Time

	messages map[string][]event.MessagePayload // conversationID -> sorted by timestamp
	unread   map[string]int
	typing   map[string]map[string]time.Time // conversationID -> userID -> last signal
}

func NewConversationCache(userID string) *ConversationCache {
	return &ConversationCache{
		userID:   userID,
		now:      time.Now,
		messages: make(map[string][]event.MessagePayload),
		unread:   make(map[string]int),
		typing:   make(map[string]map[string]time.Time),
	}
}

// AddMessage inserts a message, ignoring duplicates. Out-of-order arrivals
// are re-sorted into timestamp order, so replaying history after a reconnect
// converges to the same view.
func (c *ConversationCache) AddMessage(msg event.MessagePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(msg)
}

func (c *ConversationCache) insertLocked(msg event.MessagePayload) {
	msgs := c.messages[msg.ConversationID]
	for _, existing := range msgs {
		if existing.ID == msg.ID {
			return
		}
	}

	msgs = append(msgs, msg)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	c.messages[msg.ConversationID] = msgs

	if msg.SenderID != c.userID && !msg.IsRead {
		c.unread[msg.ConversationID]++
	}
}

// AddPending inserts a locally-sent message before the server confirms it.
// The returned rollback removes it again if the send fails; on success the
// confirmed copy replaces it via Confirm.
func (c *ConversationCache) AddPending(msg event.MessagePayload) (rollback func()) {
	c.mu.Lock()
	c.insertLocked(msg)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		c.removeLocked(msg.ConversationID, msg.ID)
		c.mu.Unlock()
	}
}

// Confirm swaps a pending message for its server-confirmed form, which
// carries the authoritative ID and timestamp.
func (c *ConversationCache) Confirm(pendingID string, confirmed event.MessagePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(confirmed.ConversationID, pendingID)
	c.insertLocked(confirmed)
}

func (c *ConversationCache) removeLocked(conversationID, messageID string) {
	msgs := c.messages[conversationID]
	for i, msg := range msgs {
		if msg.ID != messageID {
			continue
		}
		if msg.SenderID != c.userID && !msg.IsRead {
			c.decrementUnreadLocked(conversationID)
		}
		c.messages[conversationID] = append(msgs[:i], msgs[i+1:]...)
		return
	}
}

// MarkRead applies a read receipt. Counts only move on the unread -> read
// edge, so applying the same receipt twice cannot drive them negative.
func (c *ConversationCache) MarkRead(conversationID, messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID != messageID {
			continue
		}
		if msgs[i].IsRead {
			return
		}
		msgs[i].IsRead = true
		if msgs[i].SenderID != c.userID {
			c.decrementUnreadLocked(conversationID)
		}
		return
	}
}

func (c *ConversationCache) decrementUnreadLocked(conversationID string) {
	if c.unread[conversationID] > 0 {
		c.unread[conversationID]--
	}
}

// ApplyEdited rewrites a message's content in place.
func (c *ConversationCache) ApplyEdited(conversationID string, p event.EditedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID == p.MessageID {
			msgs[i].Content = p.Content
			msgs[i].IsEdited = true
			return
		}
	}
}

// ApplyUnsent blanks a retracted message. The placeholder stays in the
// timeline; only the content goes.
func (c *ConversationCache) ApplyUnsent(conversationID, messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].Content = ""
			msgs[i].AttachmentURL = nil
			msgs[i].IsUnsent = true
			return
		}
	}
}

// ApplyDeleted drops a message the local user deleted for themselves.
func (c *ConversationCache) ApplyDeleted(conversationID, messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(conversationID, messageID)
}

// Messages returns a copy of the conversation timeline in timestamp order.
func (c *ConversationCache) Messages(conversationID string) []event.MessagePayload {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.messages[conversationID]
	out := make([]event.MessagePayload, len(msgs))
	copy(out, msgs)
	return out
}

// UnreadCount reports unread messages in one conversation.
func (c *ConversationCache) UnreadCount(conversationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread[conversationID]
}

// TotalUnread reports unread messages across all conversations.
func (c *ConversationCache) TotalUnread() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, n := range c.unread {
		total += n
	}
	return total
}

// SetTyping records a typing signal. Signals expire on their own; senders
// never announce that they stopped.
func (c *ConversationCache) SetTyping(conversationID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	users, ok := c.typing[conversationID]
	if !ok {
		users = make(map[string]time.Time)
		c.typing[conversationID] = users
	}
	users[userID] = c.now()
}

// TypingUsers lists users with a live typing signal in the conversation.
func (c *ConversationCache) TypingUsers(conversationID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-typingTTL)
	var out []string
	for userID, at := range c.typing[conversationID] {
		if at.After(cutoff) {
			out = append(out, userID)
		} else {
			delete(c.typing[conversationID], userID)
		}
	}
	sort.Strings(out)
	return out
}

// PresenceCache tracks the last known online state of peers.
type PresenceCache struct {
	mu    sync.Mutex
	peers map[string]event.StatusChangedPayload
}

func NewPresenceCache() *PresenceCache {
	return &PresenceCache{peers: make(map[string]event.StatusChangedPayload)}
}

// Apply records a status transition.
func (c *PresenceCache) Apply(p event.StatusChangedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers[p.UserID] = p
}

// IsOnline reports the last known state for a peer. Unknown peers are
// offline with no last-seen time.
func (c *PresenceCache) IsOnline(userID string) (bool, *time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.peers[userID]
	if !ok {
		return false, nil
	}
	return p.IsOnline, p.LastSeen
}

// OnlineUsers lists peers currently known to be online.
func (c *PresenceCache) OnlineUsers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for userID, p := range c.peers {
		if p.IsOnline {
			out = append(out, userID)
		}
	}
	sort.Strings(out)
	return out
}
