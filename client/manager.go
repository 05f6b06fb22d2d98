// Package client is the Go SDK for the Intralink realtime server. It keeps
// the two socket channels (presence and messaging) connected, reconnects
// them independently, and presents one aggregate connection state to the
// application.
package client

import (
	"Intralink/internal/event"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

const (
	startAttempts     = 3
	startRetryDelay   = 2 * time.Second
	heartbeatInterval = 30 * time.Second
)

// subscribers is a removable callback list. The zero value is not usable;
// construct with newSubscribers.
type subscribers[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(T)
}

func newSubscribers[T any]() *subscribers[T] {
	return &subscribers[T]{fns: make(map[int]func(T))}
}

func (s *subscribers[T]) add(fn func(T)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.fns[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	}
}

func (s *subscribers[T]) emit(v T) {
	s.mu.Lock()
	fns := make([]func(T), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Manager owns both channels and the aggregate connection state.
type Manager struct {
	userCh *channel
	msgCh  *channel

	stateMu    sync.Mutex
	state      State
	stateSubs  *subscribers[State]
	startMu    sync.Mutex
	startDone  chan struct{}
	startErr   error
	stopHeart  chan struct{}
	heartOnce  sync.Once
	closedOnce sync.Once

	joinedMu sync.Mutex
	joined   map[string]struct{}

	onStatusChanged *subscribers[event.StatusChangedPayload]
	onMessage       *subscribers[event.MessagePayload]
	onRead          *subscribers[event.ReadPayload]
	onTyping        *subscribers[event.TypingPayload]
	onEdited        *subscribers[event.EditedPayload]
	onUnsent        *subscribers[event.UnsentPayload]
	onDeleted       *subscribers[event.DeletedPayload]
}

// New builds a manager for the server at baseURL (ws:// or wss://, no path)
// authenticating with the given bearer token.
func New(baseURL, token string) *Manager {
	m := &Manager{
		stateSubs:       newSubscribers[State](),
		stopHeart:       make(chan struct{}),
		joined:          make(map[string]struct{}),
		onStatusChanged: newSubscribers[event.StatusChangedPayload](),
		onMessage:       newSubscribers[event.MessagePayload](),
		onRead:          newSubscribers[event.ReadPayload](),
		onTyping:        newSubscribers[event.TypingPayload](),
		onEdited:        newSubscribers[event.EditedPayload](),
		onUnsent:        newSubscribers[event.UnsentPayload](),
		onDeleted:       newSubscribers[event.DeletedPayload](),
	}

	m.userCh = newChannel(baseURL+event.UserChannelPath, token, func(State) { m.recomputeState() })
	m.msgCh = newChannel(baseURL+event.MessageChannelPath, token, func(State) { m.recomputeState() })

	// The handler maps survive reconnects, so events wire up exactly once.
	wire(m.userCh, event.EventUserStatusChanged, m.onStatusChanged)
	wire(m.msgCh, event.EventReceiveMessage, m.onMessage)
	wire(m.msgCh, event.EventMessageRead, m.onRead)
	wire(m.msgCh, event.EventUserTyping, m.onTyping)
	wire(m.msgCh, event.EventMessageEdited, m.onEdited)
	wire(m.msgCh, event.EventMessageUnsent, m.onUnsent)
	wire(m.msgCh, event.EventMessageDeleted, m.onDeleted)

	// Conversation group membership on the server died with the old socket;
	// rejoin everything the application subscribed to.
	m.msgCh.onReconnected = m.rejoinConversations

	return m
}

func wire[T any](c *channel, typ string, subs *subscribers[T]) {
	c.on(typ, func(raw json.RawMessage) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return
		}
		subs.emit(v)
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start brings both channels up. Concurrent callers share one attempt; a
// call while the pair is up is a no-op. A failed start may be retried, and
// once the automatic reconnect schedule has been exhausted and the
// aggregate state has settled Disconnected, Start dials the pair again.
func (m *Manager) Start(ctx context.Context) error {
	m.startMu.Lock()
	if m.startDone != nil {
		done := m.startDone
		select {
		case <-done:
			// A finished start only stands while some channel is still
			// alive. After a permanent disconnect the attempt is re-armed.
			if m.State() != Disconnected {
				m.startMu.Unlock()
				return m.startErr
			}
			m.startDone = nil
		default:
			m.startMu.Unlock()
			select {
			case <-done:
				return m.startErr
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	done := make(chan struct{})
	m.startDone = done
	m.startMu.Unlock()

	err := m.startBoth(ctx)

	m.startMu.Lock()
	m.startErr = err
	close(done)
	if err != nil {
		// Leave the door open for another attempt.
		m.startDone = nil
	}
	m.startMu.Unlock()

	if err == nil {
		m.heartOnce.Do(func() { go m.heartbeat() })
	}
	return err
}

func (m *Manager) startBoth(ctx context.Context) error {
	var err error
	for attempt := 0; attempt < startAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(startRetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var userErr, msgErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			userErr = m.userCh.start(ctx)
		}()
		go func() {
			defer wg.Done()
			msgErr = m.msgCh.start(ctx)
		}()
		wg.Wait()

		if userErr == nil && msgErr == nil {
			return nil
		}
		err = errors.Join(userErr, msgErr)
	}
	return err
}

// Close tears both channels down permanently.
func (m *Manager) Close() {
	m.closedOnce.Do(func() {
		close(m.stopHeart)
		m.userCh.close()
		m.msgCh.close()
	})
}

// heartbeat keeps the user's activity timestamp fresh while connected.
func (m *Manager) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopHeart:
			return
		case <-ticker.C:
			// Best effort; a dropped channel recovers on its own.
			_ = m.userCh.send(event.InvokeUpdateActivity, nil)
		}
	}
}

func (m *Manager) rejoinConversations() {
	m.joinedMu.Lock()
	ids := make([]string, 0, len(m.joined))
	for id := range m.joined {
		ids = append(ids, id)
	}
	m.joinedMu.Unlock()

	for _, id := range ids {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, _ = m.msgCh.invoke(ctx, event.InvokeJoinConversation, event.ConversationRequest{ConversationID: id})
		cancel()
	}
}

// -----------------------------------------------------------------------------
// State
// -----------------------------------------------------------------------------

// State returns the aggregate connection state.
func (m *Manager) State() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

// OnStateChange registers a listener and immediately replays the current
// state to it, so late subscribers never miss the level they joined at.
// Returns an unsubscribe func.
func (m *Manager) OnStateChange(fn func(State)) func() {
	m.stateMu.Lock()
	current := m.state
	m.stateMu.Unlock()

	off := m.stateSubs.add(fn)
	fn(current)
	return off
}

func (m *Manager) recomputeState() {
	next := combineStates(m.userCh.State(), m.msgCh.State())

	m.stateMu.Lock()
	changed := m.state != next
	m.state = next
	m.stateMu.Unlock()

	if changed {
		m.stateSubs.emit(next)
	}
}

// -----------------------------------------------------------------------------
// Invocations
// -----------------------------------------------------------------------------

// invokeMessage runs an invocation on the message channel, starting the
// connection first if needed and retrying once after a transient drop.
func (m *Manager) invokeMessage(ctx context.Context, typ string, payload any) (json.RawMessage, error) {
	if m.msgCh.State() != Connected {
		if err := m.Start(ctx); err != nil {
			return nil, err
		}
	}

	result, err := m.msgCh.invoke(ctx, typ, payload)
	if errors.Is(err, ErrNotConnected) {
		if startErr := m.Start(ctx); startErr != nil {
			return nil, startErr
		}
		result, err = m.msgCh.invoke(ctx, typ, payload)
	}
	return result, err
}

// SendMessage delivers a message and returns the stored form, including the
// server-assigned ID and timestamp.
func (m *Manager) SendMessage(ctx context.Context, req event.SendMessageRequest) (*event.MessagePayload, error) {
	raw, err := m.invokeMessage(ctx, event.InvokeSendMessage, req)
	if err != nil {
		return nil, err
	}

	var msg event.MessagePayload
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *Manager) MarkMessageAsRead(ctx context.Context, messageID string) error {
	_, err := m.invokeMessage(ctx, event.InvokeMarkMessageAsRead, event.MarkReadRequest{MessageID: messageID})
	return err
}

func (m *Manager) SendTypingIndicator(ctx context.Context, conversationID string) error {
	_, err := m.invokeMessage(ctx, event.InvokeSendTypingIndicator, event.TypingRequest{ConversationID: conversationID})
	return err
}

func (m *Manager) EditMessage(ctx context.Context, messageID, content string) error {
	_, err := m.invokeMessage(ctx, event.InvokeEditMessage, event.EditMessageRequest{MessageID: messageID, Content: content})
	return err
}

func (m *Manager) UnsendMessage(ctx context.Context, messageID string) error {
	_, err := m.invokeMessage(ctx, event.InvokeUnsendMessage, event.MessageIDRequest{MessageID: messageID})
	return err
}

func (m *Manager) DeleteMessageForUser(ctx context.Context, messageID string) error {
	_, err := m.invokeMessage(ctx, event.InvokeDeleteMessage, event.MessageIDRequest{MessageID: messageID})
	return err
}

// JoinConversation subscribes this connection to a conversation's events and
// remembers it for automatic rejoin after a reconnect.
func (m *Manager) JoinConversation(ctx context.Context, conversationID string) error {
	_, err := m.invokeMessage(ctx, event.InvokeJoinConversation, event.ConversationRequest{ConversationID: conversationID})
	if err != nil {
		return err
	}

	m.joinedMu.Lock()
	m.joined[conversationID] = struct{}{}
	m.joinedMu.Unlock()
	return nil
}

func (m *Manager) LeaveConversation(ctx context.Context, conversationID string) error {
	m.joinedMu.Lock()
	delete(m.joined, conversationID)
	m.joinedMu.Unlock()

	_, err := m.invokeMessage(ctx, event.InvokeLeaveConversation, event.ConversationRequest{ConversationID: conversationID})
	return err
}

// UpdateActivity reports user activity immediately, outside the periodic
// heartbeat.
func (m *Manager) UpdateActivity() error {
	return m.userCh.send(event.InvokeUpdateActivity, nil)
}

// -----------------------------------------------------------------------------
// Event subscriptions
// -----------------------------------------------------------------------------

func (m *Manager) OnUserStatusChanged(fn func(event.StatusChangedPayload)) func() {
	return m.onStatusChanged.add(fn)
}

func (m *Manager) OnReceiveMessage(fn func(event.MessagePayload)) func() {
	return m.onMessage.add(fn)
}

func (m *Manager) OnMessageRead(fn func(event.ReadPayload)) func() {
	return m.onRead.add(fn)
}

func (m *Manager) OnUserTyping(fn func(event.TypingPayload)) func() {
	return m.onTyping.add(fn)
}

func (m *Manager) OnMessageEdited(fn func(event.EditedPayload)) func() {
	return m.onEdited.add(fn)
}

func (m *Manager) OnMessageUnsent(fn func(event.UnsentPayload)) func() {
	return m.onUnsent.add(fn)
}

func (m *Manager) OnMessageDeleted(fn func(event.DeletedPayload)) func() {
	return m.onDeleted.add(fn)
}
