package model

import (
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation represents a chat conversation in MongoDB. Direct (1:1)
// conversations are deduplicated by ParticipantKey; group conversations are
// created explicitly and carry a creator.
type Conversation struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ParticipantIDs []string           `json:"participantIds" bson:"participant_ids"`
	// omitempty keeps group conversations out of the sparse unique key
	// index; an empty string would still be indexed and collide.
	ParticipantKey string             `json:"-" bson:"participant_key,omitempty"`
	IsGroup        bool               `json:"isGroup" bson:"is_group"`
	CreatorID      string             `json:"creatorId,omitempty" bson:"creator_id,omitempty"`
	Title          string             `json:"title,omitempty" bson:"title,omitempty"`
	LastMessageID  string             `json:"lastMessageId,omitempty" bson:"last_message_id,omitempty"`
	CreatedAt      time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time          `json:"updatedAt" bson:"updated_at"`
}

// HasParticipant reports whether the user belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ParticipantKeyFor builds the order-independent lookup key for a participant
// set. Two "create 1:1 conversation" calls from either side of the pair
// resolve to the same key, which carries a uniqueness constraint in Mongo.
func ParticipantKeyFor(participantIDs []string) string {
	ids := make([]string, len(participantIDs))
	copy(ids, participantIDs)
	sort.Strings(ids)
	return strings.Join(ids, ":")
}
