package hub

import (
	"crypto/sha1"
	"encoding/binary"
	"sync"
)

const sessionShardCount = 32

type sessionBucket struct {
	sync.RWMutex
	users map[string]map[string]*Client // userID -> connID -> client
}

// SessionRegistry tracks every live connection grouped by user. A user with
// several tabs open appears once here, with one entry per connection.
type SessionRegistry struct {
	shards [sessionShardCount]*sessionBucket
}

func NewSessionRegistry() *SessionRegistry {
	r := &SessionRegistry{}
	for i := 0; i < sessionShardCount; i++ {
		r.shards[i] = &sessionBucket{
			users: make(map[string]map[string]*Client),
		}
	}
	return r
}

func sessionShard(userID string) uint32 {
	if userID == "" {
		return 0
	}
	h := sha1.Sum([]byte(userID))
	return binary.BigEndian.Uint32(h[:4]) % sessionShardCount
}

func (r *SessionRegistry) add(c *Client) {
	b := r.shards[sessionShard(c.userID)]
	b.Lock()
	defer b.Unlock()

	conns, ok := b.users[c.userID]
	if !ok {
		conns = make(map[string]*Client)
		b.users[c.userID] = conns
	}
	conns[c.ID] = c
}

func (r *SessionRegistry) remove(c *Client) {
	b := r.shards[sessionShard(c.userID)]
	b.Lock()
	defer b.Unlock()

	if conns, ok := b.users[c.userID]; ok {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(b.users, c.userID)
		}
	}
}

// ClientsOf returns a snapshot of the user's live connections, optionally
// restricted to one channel.
func (r *SessionRegistry) ClientsOf(userID string, channel Channel) []*Client {
	b := r.shards[sessionShard(userID)]
	b.RLock()
	defer b.RUnlock()

	conns, ok := b.users[userID]
	if !ok {
		return nil
	}

	clients := make([]*Client, 0, len(conns))
	for _, c := range conns {
		if channel != "" && c.channel != channel {
			continue
		}
		clients = append(clients, c)
	}
	return clients
}

// All returns a snapshot of every live connection, optionally restricted to
// one channel.
func (r *SessionRegistry) All(channel Channel) []*Client {
	var clients []*Client
	for _, b := range r.shards {
		b.RLock()
		for _, conns := range b.users {
			for _, c := range conns {
				if channel != "" && c.channel != channel {
					continue
				}
				clients = append(clients, c)
			}
		}
		b.RUnlock()
	}
	return clients
}

// Snapshot lists every user with their connection IDs, for the monitor
// endpoint.
func (r *SessionRegistry) Snapshot() map[string][]string {
	out := make(map[string][]string)
	for _, b := range r.shards {
		b.RLock()
		for userID, conns := range b.users {
			ids := make([]string, 0, len(conns))
			for id := range conns {
				ids = append(ids, id)
			}
			out[userID] = ids
		}
		b.RUnlock()
	}
	return out
}

// Counts reports total connections, distinct users, and per-channel
// connection counts.
func (r *SessionRegistry) Counts() (total, users, userChannel, messageChannel int) {
	for _, b := range r.shards {
		b.RLock()
		users += len(b.users)
		for _, conns := range b.users {
			total += len(conns)
			for _, c := range conns {
				if c.channel == ChannelUser {
					userChannel++
				} else {
					messageChannel++
				}
			}
		}
		b.RUnlock()
	}
	return
}
