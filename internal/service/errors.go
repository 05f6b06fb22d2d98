package service

import "errors"

// Authorization failures are definitive: callers surface them and never
// retry. Transport-level failures never reach this package.
var (
	ErrNotParticipant    = errors.New("user is not a participant in this conversation")
	ErrNotSender         = errors.New("user is not the sender of this message")
	ErrNotCreator        = errors.New("only the group creator may do this")
	ErrNotGroup          = errors.New("conversation is not a group")
	ErrEditWindowExpired = errors.New("edit window has expired")
	ErrMessageUnsent     = errors.New("message has been unsent")
	ErrEmptyContent      = errors.New("message content cannot be empty")
	ErrNoRecipient       = errors.New("conversation or recipient is required")
)
