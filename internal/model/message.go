package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message represents a chat message in MongoDB. Messages are never hard
// deleted except when their conversation is cascaded away; unsend clears the
// content but keeps the record for audit.
type Message struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ConversationID primitive.ObjectID `json:"conversationId" bson:"conversation_id"`
	SenderID       string             `json:"senderId" bson:"sender_id"`
	Content        string             `json:"content" bson:"content"`
	AttachmentURL  *string            `json:"attachmentUrl" bson:"attachment_url"`
	Timestamp      time.Time          `json:"timestamp" bson:"timestamp"`
	IsRead         bool               `json:"isRead" bson:"is_read"`
	ReadAt         *time.Time         `json:"readAt" bson:"read_at"`
	IsEdited       bool               `json:"isEdited" bson:"is_edited"`
	EditedAt       *time.Time         `json:"editedAt" bson:"edited_at"`
	IsUnsent       bool               `json:"isUnsent" bson:"is_unsent"`
	DeletedFor     []string           `json:"deletedFor" bson:"deleted_for"`
}

// DeletedForUser reports whether the message is soft-deleted for the user.
func (m *Message) DeletedForUser(userID string) bool {
	for _, id := range m.DeletedFor {
		if id == userID {
			return true
		}
	}
	return false
}
