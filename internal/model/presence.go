package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserPresence is the durable record of a user's online state. One document
// per user, upserted on connect/disconnect and never deleted: LastSeenAt is
// kept as history after the user goes offline. IsOnline is true exactly while
// the user has at least one live connection on any channel.
type UserPresence struct {
	ID             primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	UserID         string             `json:"userId" bson:"user_id"`
	IsOnline       bool               `json:"isOnline" bson:"is_online"`
	LastSeenAt     time.Time          `json:"lastSeenAt" bson:"last_seen_at"`
	LastActivityAt time.Time          `json:"lastActivityAt" bson:"last_activity_at"`
}
