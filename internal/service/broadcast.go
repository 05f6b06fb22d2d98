package service

import "Intralink/internal/event"

// Group names are the server-side broadcast addresses: one per user, one per
// conversation.
func UserGroup(userID string) string { return "user_" + userID }

func ConversationGroup(conversationID string) string { return "conversation_" + conversationID }

// Broadcaster fans an event out to every connection currently subscribed to
// a group. Implemented by the hub; faked in tests.
type Broadcaster interface {
	BroadcastToGroup(group string, env event.Envelope)
	BroadcastToGroupExcept(group, exceptConnectionID string, env event.Envelope)
	BroadcastToAll(env event.Envelope)
}

// GroupMembership mutates the live subscriptions of a user's connections.
// Needed so membership changes made mid-session (user added to or removed
// from a group chat) take effect without waiting for a reconnect.
type GroupMembership interface {
	SubscribeUser(userID, group string)
	UnsubscribeUser(userID, group string)
	DropGroup(group string)
}
