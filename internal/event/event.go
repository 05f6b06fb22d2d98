package event

import "encoding/json"

// Channel paths. Each logical channel is one persistent socket connection.
const (
	UserChannelPath    = "/hubs/user"
	MessageChannelPath = "/hubs/message"
)

// Server -> client events.
const (
	EventUserStatusChanged = "UserStatusChanged"
	EventReceiveMessage    = "ReceiveMessage"
	EventMessageRead       = "MessageRead"
	EventUserTyping        = "UserTyping"
	EventMessageEdited     = "MessageEdited"
	EventMessageUnsent     = "MessageUnsent"
	EventMessageDeleted    = "MessageDeleted"
)

// Client -> server invocations.
const (
	InvokeSendMessage         = "SendMessage"
	InvokeMarkMessageAsRead   = "MarkMessageAsRead"
	InvokeSendTypingIndicator = "SendTypingIndicator"
	InvokeJoinConversation    = "JoinConversation"
	InvokeLeaveConversation   = "LeaveConversation"
	InvokeEditMessage         = "EditMessage"
	InvokeUnsendMessage       = "UnsendMessage"
	InvokeDeleteMessage       = "DeleteMessageForUser"
	InvokeUpdateActivity      = "UpdateActivity"
)

// TypeCompletion closes out an invocation: same ID as the request, either a
// result payload or an error.
const TypeCompletion = "Completion"

// Envelope is the single frame format on both channels. Events carry only
// Type and Payload; invocations additionally carry an ID that the completion
// echoes back.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a definitive invocation failure. Clients must not retry these.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// New builds an event envelope. Payloads are plain structs from this package,
// so marshalling cannot fail in practice.
func New(typ string, payload any) Envelope {
	data, _ := json.Marshal(payload)
	return Envelope{Type: typ, Payload: data}
}

// NewCompletion builds the reply frame for an invocation.
func NewCompletion(id string, result any, invErr *Error) Envelope {
	env := Envelope{Type: TypeCompletion, ID: id, Error: invErr}
	if result != nil {
		data, _ := json.Marshal(result)
		env.Payload = data
	}
	return env
}
