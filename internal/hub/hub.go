package hub

import (
	"Intralink/internal/event"
	"Intralink/internal/service"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load
)

type inboundInvocation struct {
	envelope event.Envelope
	client   *Client
}

type groupBucket struct {
	sync.RWMutex
	groups map[string]map[string]*Client // group name -> connID -> client
}

// Hub owns every live connection. Connections are indexed two ways: by
// broadcast group (sharded, for fan-out) and by user (the session registry,
// for presence and targeted subscription changes).
type Hub struct {
	shards     [shardCount]*groupBucket
	sessions   *SessionRegistry
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundInvocation

	messages service.MessageService
	presence service.PresenceService
	upgrader websocket.Upgrader

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(allowedOrigins []string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		sessions:   NewSessionRegistry(),
		register:   make(chan *Client, 1024),
		unregister: make(chan *Client, 1024),
		inbound:    make(chan inboundInvocation, 4096), // buffer for burst handling
		ctx:        ctx,
		cancel:     cancel,
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	for i := 0; i < shardCount; i++ {
		h.shards[i] = &groupBucket{
			groups: make(map[string]map[string]*Client),
		}
	}

	// run manager loop
	go h.run()

	// start worker loop
	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in, ok := <-h.inbound:
					if !ok {
						return
					}

					h.dispatch(in.envelope, in.client)
				}
			}
		}()
	}

	return h
}

// Bind attaches the services the hub dispatches into. The hub must exist
// before the services because they broadcast through it, so this runs as a
// second wiring step.
func (h *Hub) Bind(messages service.MessageService, presence service.PresenceService) {
	h.messages = messages
	h.presence = presence
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.onConnect(c)
		case c := <-h.unregister:
			h.onDisconnect(c)
		}
	}
}

// onConnect indexes the new connection and kicks off the slow side effects
// (presence accounting, conversation group joins) off the manager loop.
func (h *Hub) onConnect(c *Client) {
	h.sessions.add(c)

	if c.channel == ChannelMessage {
		h.addToGroup(c, service.UserGroup(c.userID))
	}

	go func() {
		ctx, cancel := context.WithTimeout(h.ctx, 10*time.Second)
		defer cancel()

		if c.channel == ChannelMessage {
			ids, err := h.messages.UserConversationIDs(ctx, c.userID)
			if err != nil {
				log.Printf("conversation groups for user %s: %v", c.userID, err)
			}
			for _, id := range ids {
				h.addToGroup(c, service.ConversationGroup(id))
			}
		}

		wentOnline, err := h.presence.Connect(ctx, c.userID, c.ID)
		if err != nil {
			log.Printf("presence connect for user %s: %v", c.userID, err)
			return
		}
		if wentOnline {
			h.BroadcastToAll(event.New(event.EventUserStatusChanged, event.StatusChangedPayload{
				UserID:   c.userID,
				IsOnline: true,
			}))
		}
	}()
}

func (h *Hub) onDisconnect(c *Client) {
	h.sessions.remove(c)
	for _, name := range c.currentGroups() {
		h.removeFromGroup(c, name)
	}
	c.Close()

	go func() {
		ctx, cancel := context.WithTimeout(h.ctx, 10*time.Second)
		defer cancel()

		wentOffline, lastSeen, err := h.presence.Disconnect(ctx, c.userID, c.ID)
		if err != nil {
			log.Printf("presence disconnect for user %s: %v", c.userID, err)
			return
		}
		if wentOffline {
			h.BroadcastToAll(event.New(event.EventUserStatusChanged, event.StatusChangedPayload{
				UserID:   c.userID,
				IsOnline: false,
				LastSeen: &lastSeen,
			}))
		}
	}()
}

// -----------------------------------------------------------------
// Group index
// -----------------------------------------------------------------

func getShard(group string) uint32 {
	if group == "" {
		return 0
	}

	h := sha1.Sum([]byte(group))
	return binary.BigEndian.Uint32(h[:4]) % shardCount
}

func (h *Hub) addToGroup(c *Client, name string) {
	b := h.shards[getShard(name)]
	b.Lock()
	defer b.Unlock()

	group, ok := b.groups[name]
	if !ok {
		group = make(map[string]*Client)
		b.groups[name] = group
	}

	group[c.ID] = c
	c.joinedGroup(name)
}

func (h *Hub) removeFromGroup(c *Client, name string) {
	b := h.shards[getShard(name)]
	b.Lock()
	defer b.Unlock()

	if group, ok := b.groups[name]; ok {
		delete(group, c.ID)
		if len(group) == 0 {
			delete(b.groups, name)
		}
	}
	c.leftGroup(name)
}

// groupClients snapshots a group's members without holding the lock during
// delivery.
func (h *Hub) groupClients(name string) []*Client {
	b := h.shards[getShard(name)]
	b.RLock()
	defer b.RUnlock()

	group, ok := b.groups[name]
	if !ok || len(group) == 0 {
		return nil
	}

	clients := make([]*Client, 0, len(group))
	for _, c := range group {
		clients = append(clients, c)
	}
	return clients
}

// -----------------------------------------------------------------
// service.Broadcaster
// -----------------------------------------------------------------

func (h *Hub) BroadcastToGroup(group string, env event.Envelope) {
	h.deliver(h.groupClients(group), "", env, group)
}

func (h *Hub) BroadcastToGroupExcept(group, exceptConnID string, env event.Envelope) {
	h.deliver(h.groupClients(group), exceptConnID, env, group)
}

// BroadcastToAll pushes an envelope to every user-channel connection.
// Presence transitions are global, so this is the user channel's only
// fan-out path.
func (h *Hub) BroadcastToAll(env event.Envelope) {
	h.deliver(h.sessions.All(ChannelUser), "", env, "all")
}

func (h *Hub) deliver(clients []*Client, exceptConnID string, env event.Envelope, scope string) {
	for _, c := range clients {
		if c.ID == exceptConnID {
			continue
		}

		if c.SafeSend(env, sendTimeout) {
			continue
		}
		if c.IsClosed() {
			// lost the race with a disconnect; unregister already ran
			continue
		}

		// egress full -> apply policy
		log.Printf("egress full for client %s in %s", c.ID, scope)
		if kickOnFull {
			h.unregister <- c
		}
	}
}

// -----------------------------------------------------------------
// service.GroupMembership
// -----------------------------------------------------------------

func (h *Hub) SubscribeUser(userID, group string) {
	for _, c := range h.sessions.ClientsOf(userID, ChannelMessage) {
		h.addToGroup(c, group)
	}
}

func (h *Hub) UnsubscribeUser(userID, group string) {
	for _, c := range h.sessions.ClientsOf(userID, ChannelMessage) {
		h.removeFromGroup(c, group)
	}
}

func (h *Hub) DropGroup(group string) {
	for _, c := range h.groupClients(group) {
		h.removeFromGroup(c, group)
	}
}

// -----------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------

func (h *Hub) Stop() {
	h.cancel()

	for _, shard := range h.shards {
		shard.RLock()
		for _, group := range shard.groups {
			for _, client := range group {
				client.Close()
			}
		}
		shard.RUnlock()
	}

	close(h.inbound)
	h.wg.Wait()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string, channel Channel) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	RegisterClient(userID, channel, conn, h)
}
