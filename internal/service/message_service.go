package service

import (
	"context"
	"time"

	"Intralink/internal/event"
	"Intralink/internal/model"
	"Intralink/internal/repo"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// editWindow bounds edit and unsend, measured from the message timestamp.
// Enforced here; the client-side check is a UX optimization only.
const editWindow = 5 * time.Minute

// MessageService validates and persists outgoing messages and fans the
// resulting events out to the correct broadcast groups.
type MessageService interface {
	SendMessage(ctx context.Context, senderID string, req event.SendMessageRequest) (*event.MessagePayload, error)
	MarkAsRead(ctx context.Context, messageID, readerID string) error
	Typing(ctx context.Context, userID, conversationID, senderConnectionID string) error
	EditMessage(ctx context.Context, senderID, messageID, content string) error
	UnsendMessage(ctx context.Context, senderID, messageID string) error
	DeleteForUser(ctx context.Context, messageID, userID string) error

	GetConversationForUser(ctx context.Context, conversationID, userID string) (*model.Conversation, error)
	GetUserConversations(ctx context.Context, userID string) ([]model.Conversation, error)
	UserConversationIDs(ctx context.Context, userID string) ([]string, error)
	GetMessages(ctx context.Context, conversationID, userID string, page int64) ([]event.MessagePayload, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)

	CreateGroupConversation(ctx context.Context, creatorID string, participantIDs []string, title string) (*model.Conversation, error)
	AddParticipant(ctx context.Context, conversationID, actorID, userID string) error
	RemoveParticipant(ctx context.Context, conversationID, actorID, userID string) error
	LeaveGroup(ctx context.Context, conversationID, userID string) error
	DeleteGroup(ctx context.Context, conversationID, actorID string) error
}

type messageService struct {
	messages      repo.MessageRepository
	conversations repo.ConversationRepository
	broadcast     Broadcaster
	groups        GroupMembership
	logger        *zap.Logger
	now           func() time.Time
}

func NewMessageService(
	messages repo.MessageRepository,
	conversations repo.ConversationRepository,
	broadcast Broadcaster,
	groups GroupMembership,
	logger *zap.Logger,
) MessageService {
	return &messageService{
		messages:      messages,
		conversations: conversations,
		broadcast:     broadcast,
		groups:        groups,
		logger:        logger,
		now:           time.Now,
	}
}

// -----------------------------------------------------------------------------
// Sending
// -----------------------------------------------------------------------------

func (s *messageService) SendMessage(ctx context.Context, senderID string, req event.SendMessageRequest) (*event.MessagePayload, error) {
	if req.Content == "" && req.AttachmentURL == nil {
		return nil, ErrEmptyContent
	}

	conv, err := s.resolveConversation(ctx, senderID, req)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        req.Content,
		AttachmentURL:  req.AttachmentURL,
		Timestamp:      s.now().UTC(),
		IsRead:         false,
	}

	id, err := s.messages.Insert(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID, _ = primitive.ObjectIDFromHex(id)

	if err := s.conversations.SetLastMessage(ctx, conv.ID.Hex(), id, msg.Timestamp); err != nil {
		// Message is persisted; stale conversation metadata is tolerable.
		s.logger.Warn("update last message failed",
			zap.Error(err),
			zap.String("conversation_id", conv.ID.Hex()),
		)
	}

	payload := toPayload(msg)
	s.broadcast.BroadcastToGroup(ConversationGroup(conv.ID.Hex()), event.New(event.EventReceiveMessage, payload))

	s.logger.Info("message sent",
		zap.String("message_id", id),
		zap.String("conversation_id", conv.ID.Hex()),
		zap.String("sender_id", senderID),
	)
	return &payload, nil
}

// resolveConversation finds the target conversation, creating the 1:1
// conversation on demand. Lookup is by the order-independent participant
// key, so both sides of a pair resolve to the same conversation.
func (s *messageService) resolveConversation(ctx context.Context, senderID string, req event.SendMessageRequest) (*model.Conversation, error) {
	if req.ConversationID != "" {
		return s.conversations.FindByID(ctx, req.ConversationID)
	}
	if req.RecipientID == "" || req.RecipientID == senderID {
		return nil, ErrNoRecipient
	}

	participants := []string{senderID, req.RecipientID}
	key := model.ParticipantKeyFor(participants)

	conv, err := s.conversations.FindDirectByKey(ctx, key)
	if err == nil {
		return conv, nil
	}

	now := s.now().UTC()
	created := &model.Conversation{
		ParticipantIDs: participants,
		ParticipantKey: key,
		IsGroup:        false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	id, insertErr := s.conversations.Insert(ctx, created)
	if insertErr != nil {
		// Likely lost the race on the unique participant key: the other
		// side created the pair first. Re-read before giving up.
		if conv, retryErr := s.conversations.FindDirectByKey(ctx, key); retryErr == nil {
			return conv, nil
		}
		return nil, insertErr
	}
	created.ID, _ = primitive.ObjectIDFromHex(id)

	// Both sides should receive messages in the new conversation right away.
	for _, p := range participants {
		s.groups.SubscribeUser(p, ConversationGroup(id))
	}
	return created, nil
}

// -----------------------------------------------------------------------------
// Read receipts, typing
// -----------------------------------------------------------------------------

func (s *messageService) MarkAsRead(ctx context.Context, messageID, readerID string) error {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}

	// Already read, or the sender reading their own message: no-op, no
	// second broadcast.
	if msg.IsRead || msg.SenderID == readerID {
		return nil
	}

	conv, err := s.conversations.FindByID(ctx, msg.ConversationID.Hex())
	if err != nil {
		return err
	}
	if !conv.HasParticipant(readerID) {
		return ErrNotParticipant
	}

	if err := s.messages.MarkRead(ctx, messageID, s.now().UTC()); err != nil {
		return err
	}

	// Read receipts only matter to the original sender's open views, so the
	// push goes to their personal group rather than the whole conversation.
	s.broadcast.BroadcastToGroup(UserGroup(msg.SenderID), event.New(event.EventMessageRead, event.ReadPayload{
		MessageID: messageID,
		ReaderID:  readerID,
	}))
	return nil
}

func (s *messageService) Typing(ctx context.Context, userID, conversationID, senderConnectionID string) error {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return ErrNotParticipant
	}

	// Transient: never persisted, receivers expire it locally.
	s.broadcast.BroadcastToGroupExcept(ConversationGroup(conversationID), senderConnectionID,
		event.New(event.EventUserTyping, event.TypingPayload{
			UserID:         userID,
			ConversationID: conversationID,
		}))
	return nil
}

// -----------------------------------------------------------------------------
// Edit / unsend / soft delete
// -----------------------------------------------------------------------------

func (s *messageService) EditMessage(ctx context.Context, senderID, messageID, content string) error {
	if content == "" {
		return ErrEmptyContent
	}

	msg, err := s.guardSenderWindow(ctx, senderID, messageID)
	if err != nil {
		return err
	}

	if err := s.messages.SetContent(ctx, messageID, content, s.now().UTC()); err != nil {
		return err
	}

	s.broadcast.BroadcastToGroup(ConversationGroup(msg.ConversationID.Hex()),
		event.New(event.EventMessageEdited, event.EditedPayload{
			MessageID: messageID,
			Content:   content,
		}))
	return nil
}

func (s *messageService) UnsendMessage(ctx context.Context, senderID, messageID string) error {
	msg, err := s.guardSenderWindow(ctx, senderID, messageID)
	if err != nil {
		return err
	}

	if err := s.messages.MarkUnsent(ctx, messageID); err != nil {
		return err
	}

	s.broadcast.BroadcastToGroup(ConversationGroup(msg.ConversationID.Hex()),
		event.New(event.EventMessageUnsent, event.UnsentPayload{MessageID: messageID}))
	return nil
}

// guardSenderWindow loads the message and enforces the sender-only,
// in-window rules shared by edit and unsend.
func (s *messageService) guardSenderWindow(ctx context.Context, senderID, messageID string) (*model.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != senderID {
		return nil, ErrNotSender
	}
	if msg.IsUnsent {
		return nil, ErrMessageUnsent
	}
	if s.now().Sub(msg.Timestamp) > editWindow {
		return nil, ErrEditWindowExpired
	}
	return msg, nil
}

func (s *messageService) DeleteForUser(ctx context.Context, messageID, userID string) error {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.DeletedForUser(userID) {
		return nil
	}

	if err := s.messages.AddDeletedFor(ctx, messageID, userID); err != nil {
		return err
	}

	// Per-user action: other participants keep seeing the message. The event
	// goes to the user's own group so every one of their tabs drops it.
	s.broadcast.BroadcastToGroup(UserGroup(userID), event.New(event.EventMessageDeleted, event.DeletedPayload{
		MessageID: messageID,
		ByUserID:  userID,
	}))
	return nil
}

// -----------------------------------------------------------------------------
// Conversation queries
// -----------------------------------------------------------------------------

func (s *messageService) GetConversationForUser(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

func (s *messageService) GetUserConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	return s.conversations.FindByParticipant(ctx, userID)
}

func (s *messageService) UserConversationIDs(ctx context.Context, userID string) ([]string, error) {
	convs, err := s.conversations.FindByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID.Hex())
	}
	return ids, nil
}

func (s *messageService) GetMessages(ctx context.Context, conversationID, userID string, page int64) ([]event.MessagePayload, error) {
	if _, err := s.GetConversationForUser(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	result, err := s.messages.FindByConversation(ctx, conversationID, page)
	if err != nil {
		return nil, err
	}

	payloads := make([]event.MessagePayload, 0, len(result.Data))
	for i := range result.Data {
		msg := &result.Data[i]
		if msg.DeletedForUser(userID) {
			continue
		}
		payloads = append(payloads, toPayload(msg))
	}
	return payloads, nil
}

func (s *messageService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.messages.CountUnread(ctx, "", userID)
}

// -----------------------------------------------------------------------------
// Group lifecycle
// -----------------------------------------------------------------------------

func (s *messageService) CreateGroupConversation(ctx context.Context, creatorID string, participantIDs []string, title string) (*model.Conversation, error) {
	// The creator is always a participant.
	participants := participantIDs
	found := false
	for _, id := range participants {
		if id == creatorID {
			found = true
			break
		}
	}
	if !found {
		participants = append(participants, creatorID)
	}

	now := s.now().UTC()
	conv := &model.Conversation{
		ParticipantIDs: participants,
		IsGroup:        true,
		CreatorID:      creatorID,
		Title:          title,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	id, err := s.conversations.Insert(ctx, conv)
	if err != nil {
		return nil, err
	}
	conv.ID, _ = primitive.ObjectIDFromHex(id)

	for _, p := range participants {
		s.groups.SubscribeUser(p, ConversationGroup(id))
	}
	return conv, nil
}

func (s *messageService) AddParticipant(ctx context.Context, conversationID, actorID, userID string) error {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsGroup {
		return ErrNotGroup
	}
	if !conv.HasParticipant(actorID) {
		return ErrNotParticipant
	}
	if conv.HasParticipant(userID) {
		return nil
	}

	if err := s.conversations.AddParticipant(ctx, conversationID, userID); err != nil {
		return err
	}

	// Subscribe the user's live connections immediately: someone added to a
	// group mid-session must receive messages without reconnecting.
	s.groups.SubscribeUser(userID, ConversationGroup(conversationID))
	return nil
}

func (s *messageService) RemoveParticipant(ctx context.Context, conversationID, actorID, userID string) error {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsGroup {
		return ErrNotGroup
	}
	if conv.CreatorID != actorID {
		return ErrNotCreator
	}
	if !conv.HasParticipant(userID) {
		return nil
	}

	if err := s.conversations.RemoveParticipant(ctx, conversationID, userID); err != nil {
		return err
	}

	s.groups.UnsubscribeUser(userID, ConversationGroup(conversationID))
	return nil
}

func (s *messageService) LeaveGroup(ctx context.Context, conversationID, userID string) error {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsGroup {
		return ErrNotGroup
	}
	if !conv.HasParticipant(userID) {
		return ErrNotParticipant
	}

	if err := s.conversations.RemoveParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	s.groups.UnsubscribeUser(userID, ConversationGroup(conversationID))

	// Last one out deletes the conversation and its messages.
	if len(conv.ParticipantIDs) == 1 {
		return s.cascadeDelete(ctx, conversationID)
	}
	return nil
}

func (s *messageService) DeleteGroup(ctx context.Context, conversationID, actorID string) error {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsGroup {
		return ErrNotGroup
	}
	if conv.CreatorID != actorID {
		return ErrNotCreator
	}

	return s.cascadeDelete(ctx, conversationID)
}

func (s *messageService) cascadeDelete(ctx context.Context, conversationID string) error {
	deleted, err := s.messages.DeleteByConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := s.conversations.Delete(ctx, conversationID); err != nil {
		return err
	}

	s.groups.DropGroup(ConversationGroup(conversationID))
	s.logger.Info("conversation cascade-deleted",
		zap.String("conversation_id", conversationID),
		zap.Int64("messages_deleted", deleted),
	)
	return nil
}

func toPayload(msg *model.Message) event.MessagePayload {
	content := msg.Content
	if msg.IsUnsent {
		content = ""
	}
	return event.MessagePayload{
		ID:             msg.ID.Hex(),
		ConversationID: msg.ConversationID.Hex(),
		SenderID:       msg.SenderID,
		Content:        content,
		AttachmentURL:  msg.AttachmentURL,
		Timestamp:      msg.Timestamp,
		IsRead:         msg.IsRead,
		ReadAt:         msg.ReadAt,
		IsEdited:       msg.IsEdited,
		IsUnsent:       msg.IsUnsent,
	}
}
