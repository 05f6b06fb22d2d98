package hub

import "testing"

func testClient(userID string, id string, channel Channel) *Client {
	return &Client{ID: id, userID: userID, channel: channel, groups: make(map[string]struct{})}
}

func TestSessionRegistryTracksConnectionsPerUser(t *testing.T) {
	r := NewSessionRegistry()

	r.add(testClient("alice", "c1", ChannelUser))
	r.add(testClient("alice", "c2", ChannelMessage))
	r.add(testClient("bob", "c3", ChannelMessage))

	if got := len(r.ClientsOf("alice", "")); got != 2 {
		t.Fatalf("alice connections: got %d, want 2", got)
	}
	if got := len(r.ClientsOf("alice", ChannelMessage)); got != 1 {
		t.Fatalf("alice message connections: got %d, want 1", got)
	}
	if got := len(r.ClientsOf("carol", "")); got != 0 {
		t.Fatalf("unknown user: got %d connections", got)
	}

	total, users, userChannel, messageChannel := r.Counts()
	if total != 3 || users != 2 || userChannel != 1 || messageChannel != 2 {
		t.Fatalf("counts = (%d, %d, %d, %d)", total, users, userChannel, messageChannel)
	}
}

func TestSessionRegistryRemoveDropsEmptyUsers(t *testing.T) {
	r := NewSessionRegistry()

	c1 := testClient("alice", "c1", ChannelUser)
	c2 := testClient("alice", "c2", ChannelMessage)
	r.add(c1)
	r.add(c2)

	r.remove(c1)
	if got := len(r.ClientsOf("alice", "")); got != 1 {
		t.Fatalf("after first remove: got %d, want 1", got)
	}

	r.remove(c2)
	if _, users, _, _ := r.Counts(); users != 0 {
		t.Fatal("user entry should be gone after the last connection")
	}
}

func TestSessionRegistrySnapshot(t *testing.T) {
	r := NewSessionRegistry()
	r.add(testClient("alice", "c1", ChannelUser))
	r.add(testClient("alice", "c2", ChannelMessage))

	snap := r.Snapshot()
	if len(snap["alice"]) != 2 {
		t.Fatalf("snapshot: %v", snap)
	}
}

func TestGetShardIsStable(t *testing.T) {
	if getShard("conversation_abc") != getShard("conversation_abc") {
		t.Fatal("same key must hash to the same shard")
	}
	if getShard("") != 0 {
		t.Fatal("empty key goes to shard 0")
	}
	for _, key := range []string{"user_1", "conversation_2", "x"} {
		if s := getShard(key); s >= shardCount {
			t.Fatalf("shard %d out of range for %q", s, key)
		}
	}
}
