package client

import (
	"Intralink/internal/event"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrNotConnected is returned for invocations attempted while the
	// channel has no live socket.
	ErrNotConnected = errors.New("channel not connected")
	// ErrClosed is returned after Close, or once reconnection has been
	// abandoned.
	ErrClosed = errors.New("channel closed")
)

// reconnectDelays mirrors the server-side expectation of how fast clients
// come back: immediately, then with growing pauses. After the last attempt
// fails the channel goes Disconnected for good and must be restarted.
var reconnectDelays = []time.Duration{0, 2 * time.Second, 5 * time.Second, 10 * time.Second}

const invokeReplyTimeout = 30 * time.Second

type pendingInvocation struct {
	ch chan event.Envelope
}

// channel maintains one persistent socket: dialing, the read pump,
// invocation correlation, and automatic reconnection.
type channel struct {
	url    string
	token  string
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	closed   bool
	writeMu  sync.Mutex
	handlers map[string][]func(json.RawMessage)
	pending  map[string]*pendingInvocation

	// hooks owned by the manager
	onStateChange func(State)
	onReconnected func()
}

func newChannel(url, token string, onStateChange func(State)) *channel {
	return &channel{
		url:           url,
		token:         token,
		dialer:        websocket.DefaultDialer,
		handlers:      make(map[string][]func(json.RawMessage)),
		pending:       make(map[string]*pendingInvocation),
		onStateChange: onStateChange,
	}
}

func (c *channel) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	cb := c.onStateChange
	c.mu.Unlock()

	if changed && cb != nil {
		cb(s)
	}
}

func (c *channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// start dials the channel once. Reconnection after a drop is automatic;
// restarting after a failed start is the caller's job.
func (c *channel) start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Connected || c.state == Connecting || c.state == Reconnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = Connecting
	cb := c.onStateChange
	c.mu.Unlock()
	if cb != nil {
		cb(Connecting)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(Disconnected)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(Connected)

	go c.readLoop(conn)
	return nil
}

func (c *channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// readLoop pumps inbound frames until the socket drops, then tries to
// reconnect. Invocations in flight when the socket drops are failed rather
// than replayed: the caller cannot know whether the server acted on them.
func (c *channel) readLoop(conn *websocket.Conn) {
	for {
		var env event.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.failPending(ErrNotConnected)
			if c.isClosed() {
				c.setState(Disconnected)
				return
			}
			c.reconnect()
			return
		}

		if env.Type == event.TypeCompletion {
			c.completeInvocation(env)
			continue
		}

		c.dispatch(env)
	}
}

func (c *channel) dispatch(env event.Envelope) {
	c.mu.Lock()
	fns := append([]func(json.RawMessage){}, c.handlers[env.Type]...)
	c.mu.Unlock()

	for _, fn := range fns {
		fn(env.Payload)
	}
}

func (c *channel) reconnect() {
	c.setState(Reconnecting)

	for _, delay := range reconnectDelays {
		if delay > 0 {
			time.Sleep(delay)
		}
		if c.isClosed() {
			c.setState(Disconnected)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			continue
		}

		c.mu.Lock()
		c.conn = conn
		hook := c.onReconnected
		c.mu.Unlock()

		c.setState(Connected)
		if hook != nil {
			hook()
		}
		go c.readLoop(conn)
		return
	}

	// All delays exhausted: give up until the application restarts us.
	c.setState(Disconnected)
}

// invoke sends an invocation frame and waits for its completion.
func (c *channel) invoke(ctx context.Context, typ string, payload any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.state != Connected || c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := c.conn

	id := uuid.New().String()
	p := &pendingInvocation{ch: make(chan event.Envelope, 1)}
	c.pending[id] = p
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	c.writeMu.Lock()
	err = conn.WriteJSON(event.Envelope{Type: typ, ID: id, Payload: data})
	c.writeMu.Unlock()
	if err != nil {
		return nil, ErrNotConnected
	}

	timer := time.NewTimer(invokeReplyTimeout)
	defer timer.Stop()

	select {
	case env := <-p.ch:
		if env.Error != nil {
			return nil, env.Error
		}
		return env.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrNotConnected
	}
}

// send fires an invocation without waiting for a completion.
func (c *channel) send(typ string, payload any) error {
	c.mu.Lock()
	if c.state != Connected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(event.Envelope{Type: typ, Payload: data})
}

func (c *channel) completeInvocation(env event.Envelope) {
	c.mu.Lock()
	p, ok := c.pending[env.ID]
	if ok {
		delete(c.pending, env.ID)
	}
	c.mu.Unlock()

	if ok {
		p.ch <- env
	}
}

func (c *channel) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingInvocation)
	c.mu.Unlock()

	for _, p := range pending {
		p.ch <- event.Envelope{Error: &event.Error{Code: "disconnected", Message: err.Error()}}
	}
}

// on registers a handler for an event type. Handlers persist across
// reconnects; re-registration after a drop is never needed.
func (c *channel) on(typ string, fn func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[typ] = append(c.handlers[typ], fn)
}

func (c *channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *channel) close() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	c.failPending(ErrClosed)
	c.setState(Disconnected)
}
