package model

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestParticipantKeyForIsOrderIndependent(t *testing.T) {
	a := ParticipantKeyFor([]string{"u1", "u2"})
	b := ParticipantKeyFor([]string{"u2", "u1"})
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
}

func TestParticipantKeyForDoesNotMutateInput(t *testing.T) {
	ids := []string{"z", "a"}
	ParticipantKeyFor(ids)
	if ids[0] != "z" || ids[1] != "a" {
		t.Fatalf("input mutated: %v", ids)
	}
}

// Group conversations must not serialize an empty participant_key: the
// field carries a sparse unique index, and sparse skips only missing
// fields, so a stored "" would make every group after the first collide.
func TestGroupConversationOmitsParticipantKey(t *testing.T) {
	conv := Conversation{
		ParticipantIDs: []string{"u1", "u2", "u3"},
		IsGroup:        true,
		CreatorID:      "u1",
		Title:          "standup",
	}

	data, err := bson.Marshal(conv)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := doc["participant_key"]; ok {
		t.Fatalf("group conversation stored participant_key: %v", doc["participant_key"])
	}
}

func TestDirectConversationStoresParticipantKey(t *testing.T) {
	conv := Conversation{
		ParticipantIDs: []string{"u1", "u2"},
		ParticipantKey: ParticipantKeyFor([]string{"u1", "u2"}),
	}

	data, err := bson.Marshal(conv)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc["participant_key"] != "u1:u2" {
		t.Fatalf("participant_key = %v, want u1:u2", doc["participant_key"])
	}
}

func TestHasParticipant(t *testing.T) {
	conv := Conversation{ParticipantIDs: []string{"u1", "u2"}}
	if !conv.HasParticipant("u1") {
		t.Error("u1 should be a participant")
	}
	if conv.HasParticipant("u3") {
		t.Error("u3 should not be a participant")
	}
}
