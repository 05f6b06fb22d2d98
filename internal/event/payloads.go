package event

import "time"

// MessagePayload is the wire form of a message, shared by ReceiveMessage
// events, SendMessage completions and the REST read surface.
type MessagePayload struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Content        string     `json:"content"`
	AttachmentURL  *string    `json:"attachmentUrl,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
	IsRead         bool       `json:"isRead"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	IsEdited       bool       `json:"isEdited"`
	IsUnsent       bool       `json:"isUnsent"`
}

// StatusChangedPayload announces a presence transition to all peers.
// LastSeen is only set on the online -> offline edge.
type StatusChangedPayload struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// ReadPayload is pushed to the sender's personal group when a recipient
// marks one of their messages as read.
type ReadPayload struct {
	MessageID string `json:"messageId"`
	ReaderID  string `json:"readerId"`
}

// TypingPayload is transient: broadcast to the conversation group and
// expired locally by each receiving client, no stop event is guaranteed.
type TypingPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

// EditedPayload carries the new content of an edited message.
type EditedPayload struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

// UnsentPayload marks a message as retracted; receivers clear the content.
type UnsentPayload struct {
	MessageID string `json:"messageId"`
}

// DeletedPayload confirms a per-user soft delete to the calling client only.
type DeletedPayload struct {
	MessageID string `json:"messageId"`
	ByUserID  string `json:"byUserId"`
}

// SendMessageRequest creates a message. When ConversationID is empty and
// RecipientID is set, the server resolves or creates the 1:1 conversation
// for the pair.
type SendMessageRequest struct {
	ConversationID string  `json:"conversationId,omitempty"`
	RecipientID    string  `json:"recipientId,omitempty"`
	Content        string  `json:"content"`
	AttachmentURL  *string `json:"attachmentUrl,omitempty"`
}

// MarkReadRequest marks a single message as read by the caller.
type MarkReadRequest struct {
	MessageID string `json:"messageId"`
}

// TypingRequest signals that the caller is typing in a conversation.
type TypingRequest struct {
	ConversationID string `json:"conversationId"`
}

// ConversationRequest joins or leaves a conversation's broadcast group.
type ConversationRequest struct {
	ConversationID string `json:"conversationId"`
}

// EditMessageRequest replaces the content of a message the caller sent.
type EditMessageRequest struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

// MessageIDRequest addresses a single message (unsend, per-user delete).
type MessageIDRequest struct {
	MessageID string `json:"messageId"`
}
