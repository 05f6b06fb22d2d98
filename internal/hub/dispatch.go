package hub

import (
	"Intralink/internal/event"
	"Intralink/internal/repo"
	"Intralink/internal/service"
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"
)

const invokeTimeout = 15 * time.Second

// dispatch routes one inbound invocation to the right service call and sends
// the completion back on the same connection. Runs on the worker pool.
func (h *Hub) dispatch(env event.Envelope, c *Client) {
	ctx, cancel := context.WithTimeout(h.ctx, invokeTimeout)
	defer cancel()

	var (
		result any
		err    error
	)

	switch env.Type {
	case event.InvokeSendMessage:
		var req event.SendMessageRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			result, err = h.messages.SendMessage(ctx, c.userID, req)
		}

	case event.InvokeMarkMessageAsRead:
		var req event.MarkReadRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			err = h.messages.MarkAsRead(ctx, req.MessageID, c.userID)
		}

	case event.InvokeSendTypingIndicator:
		var req event.TypingRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			err = h.messages.Typing(ctx, c.userID, req.ConversationID, c.ID)
		}

	case event.InvokeJoinConversation:
		var req event.ConversationRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			if _, err = h.messages.GetConversationForUser(ctx, req.ConversationID, c.userID); err == nil {
				h.addToGroup(c, service.ConversationGroup(req.ConversationID))
			}
		}

	case event.InvokeLeaveConversation:
		var req event.ConversationRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			h.removeFromGroup(c, service.ConversationGroup(req.ConversationID))
		}

	case event.InvokeEditMessage:
		var req event.EditMessageRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			err = h.messages.EditMessage(ctx, c.userID, req.MessageID, req.Content)
		}

	case event.InvokeUnsendMessage:
		var req event.MessageIDRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			err = h.messages.UnsendMessage(ctx, c.userID, req.MessageID)
		}

	case event.InvokeDeleteMessage:
		var req event.MessageIDRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			err = h.messages.DeleteForUser(ctx, req.MessageID, c.userID)
		}

	case event.InvokeUpdateActivity:
		err = h.presence.Touch(ctx, c.userID)

	default:
		log.Printf("unknown invocation type %q from client %s", env.Type, c.ID)
		if env.ID != "" {
			c.Send(event.NewCompletion(env.ID, nil, &event.Error{
				Code:    "unknown_invocation",
				Message: "unknown invocation type: " + env.Type,
			}))
		}
		return
	}

	// Fire-and-forget frames carry no ID and get no completion.
	if env.ID == "" {
		if err != nil {
			log.Printf("invocation %s from client %s: %v", env.Type, c.ID, err)
		}
		return
	}

	c.Send(event.NewCompletion(env.ID, result, invocationError(err)))
}

// invocationError maps service failures onto wire error codes. Authorization
// and validation failures are definitive; everything else is reported as
// internal.
func invocationError(err error) *event.Error {
	if err == nil {
		return nil
	}

	code := "internal"
	switch {
	case errors.Is(err, service.ErrNotParticipant):
		code = "not_participant"
	case errors.Is(err, service.ErrNotSender):
		code = "not_sender"
	case errors.Is(err, service.ErrNotCreator):
		code = "not_creator"
	case errors.Is(err, service.ErrNotGroup):
		code = "not_group"
	case errors.Is(err, service.ErrEditWindowExpired):
		code = "edit_window_expired"
	case errors.Is(err, service.ErrMessageUnsent):
		code = "message_unsent"
	case errors.Is(err, service.ErrEmptyContent):
		code = "empty_content"
	case errors.Is(err, service.ErrNoRecipient):
		code = "no_recipient"
	case errors.Is(err, repo.ErrMessageNotFound),
		errors.Is(err, repo.ErrConversationNotFound):
		code = "not_found"
	}

	return &event.Error{Code: code, Message: err.Error()}
}
