package service

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"Intralink/internal/db"
	"Intralink/internal/event"
	"Intralink/internal/model"
	"Intralink/internal/repo"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeMessageRepo struct {
	messages map[string]*model.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[string]*model.Message)}
}

func (f *fakeMessageRepo) Insert(ctx context.Context, msg *model.Message) (string, error) {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	stored := *msg
	f.messages[msg.ID.Hex()] = &stored
	return msg.ID.Hex(), nil
}

func (f *fakeMessageRepo) FindByID(ctx context.Context, id string) (*model.Message, error) {
	msg, ok := f.messages[id]
	if !ok {
		return nil, repo.ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

func (f *fakeMessageRepo) MarkRead(ctx context.Context, id string, at time.Time) error {
	msg, ok := f.messages[id]
	if !ok {
		return repo.ErrMessageNotFound
	}
	msg.IsRead = true
	msg.ReadAt = &at
	return nil
}

func (f *fakeMessageRepo) SetContent(ctx context.Context, id, content string, editedAt time.Time) error {
	msg, ok := f.messages[id]
	if !ok {
		return repo.ErrMessageNotFound
	}
	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = &editedAt
	return nil
}

func (f *fakeMessageRepo) MarkUnsent(ctx context.Context, id string) error {
	msg, ok := f.messages[id]
	if !ok {
		return repo.ErrMessageNotFound
	}
	msg.IsUnsent = true
	msg.Content = ""
	msg.AttachmentURL = nil
	return nil
}

func (f *fakeMessageRepo) AddDeletedFor(ctx context.Context, id, userID string) error {
	msg, ok := f.messages[id]
	if !ok {
		return repo.ErrMessageNotFound
	}
	if !msg.DeletedForUser(userID) {
		msg.DeletedFor = append(msg.DeletedFor, userID)
	}
	return nil
}

func (f *fakeMessageRepo) FindByConversation(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error) {
	var msgs []model.Message
	for _, msg := range f.messages {
		if msg.ConversationID.Hex() == conversationID {
			msgs = append(msgs, *msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
	return &db.PaginatedResult[model.Message]{Data: msgs, Total: int64(len(msgs)), Page: page}, nil
}

func (f *fakeMessageRepo) CountUnread(ctx context.Context, conversationID, userID string) (int64, error) {
	var count int64
	for _, msg := range f.messages {
		if conversationID != "" && msg.ConversationID.Hex() != conversationID {
			continue
		}
		if !msg.IsRead && msg.SenderID != userID && !msg.DeletedForUser(userID) {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageRepo) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	var deleted int64
	for id, msg := range f.messages {
		if msg.ConversationID.Hex() == conversationID {
			delete(f.messages, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeConversationRepo struct {
	conversations map[string]*model.Conversation
	insertErr     error // next Insert fails with this once
	keyMissOnce   bool  // next FindDirectByKey misses once
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{conversations: make(map[string]*model.Conversation)}
}

func (f *fakeConversationRepo) Insert(ctx context.Context, conv *model.Conversation) (string, error) {
	if f.insertErr != nil {
		err := f.insertErr
		f.insertErr = nil
		return "", err
	}
	if conv.ID.IsZero() {
		conv.ID = primitive.NewObjectID()
	}
	stored := *conv
	f.conversations[conv.ID.Hex()] = &stored
	return conv.ID.Hex(), nil
}

func (f *fakeConversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return nil, repo.ErrConversationNotFound
	}
	copied := *conv
	copied.ParticipantIDs = append([]string{}, conv.ParticipantIDs...)
	return &copied, nil
}

func (f *fakeConversationRepo) FindByParticipant(ctx context.Context, userID string) ([]model.Conversation, error) {
	var out []model.Conversation
	for _, conv := range f.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) FindDirectByKey(ctx context.Context, participantKey string) (*model.Conversation, error) {
	if f.keyMissOnce {
		f.keyMissOnce = false
		return nil, repo.ErrConversationNotFound
	}
	for _, conv := range f.conversations {
		if !conv.IsGroup && conv.ParticipantKey == participantKey {
			copied := *conv
			return &copied, nil
		}
	}
	return nil, repo.ErrConversationNotFound
}

func (f *fakeConversationRepo) SetLastMessage(ctx context.Context, id, messageID string, at time.Time) error {
	conv, ok := f.conversations[id]
	if !ok {
		return repo.ErrConversationNotFound
	}
	conv.LastMessageID = messageID
	conv.UpdatedAt = at
	return nil
}

func (f *fakeConversationRepo) AddParticipant(ctx context.Context, id, userID string) error {
	conv, ok := f.conversations[id]
	if !ok {
		return repo.ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		conv.ParticipantIDs = append(conv.ParticipantIDs, userID)
	}
	return nil
}

func (f *fakeConversationRepo) RemoveParticipant(ctx context.Context, id, userID string) error {
	conv, ok := f.conversations[id]
	if !ok {
		return repo.ErrConversationNotFound
	}
	for i, p := range conv.ParticipantIDs {
		if p == userID {
			conv.ParticipantIDs = append(conv.ParticipantIDs[:i], conv.ParticipantIDs[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeConversationRepo) Delete(ctx context.Context, id string) error {
	delete(f.conversations, id)
	return nil
}

type broadcastCall struct {
	group    string
	exceptID string
	env      event.Envelope
}

// recordingHub records broadcasts and membership changes instead of moving
// frames, standing in for the live hub.
type recordingHub struct {
	calls       []broadcastCall
	subscribed  map[string][]string // userID -> groups
	unsubscribe map[string][]string
	dropped     []string
}

func newRecordingHub() *recordingHub {
	return &recordingHub{
		subscribed:  make(map[string][]string),
		unsubscribe: make(map[string][]string),
	}
}

func (r *recordingHub) BroadcastToGroup(group string, env event.Envelope) {
	r.calls = append(r.calls, broadcastCall{group: group, env: env})
}

func (r *recordingHub) BroadcastToGroupExcept(group, exceptConnID string, env event.Envelope) {
	r.calls = append(r.calls, broadcastCall{group: group, exceptID: exceptConnID, env: env})
}

func (r *recordingHub) BroadcastToAll(env event.Envelope) {
	r.calls = append(r.calls, broadcastCall{group: "all", env: env})
}

func (r *recordingHub) SubscribeUser(userID, group string) {
	r.subscribed[userID] = append(r.subscribed[userID], group)
}

func (r *recordingHub) UnsubscribeUser(userID, group string) {
	r.unsubscribe[userID] = append(r.unsubscribe[userID], group)
}

func (r *recordingHub) DropGroup(group string) {
	r.dropped = append(r.dropped, group)
}

func (r *recordingHub) callsOfType(typ string) []broadcastCall {
	var out []broadcastCall
	for _, call := range r.calls {
		if call.env.Type == typ {
			out = append(out, call)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Harness
// -----------------------------------------------------------------------------

type serviceFixture struct {
	svc   *messageService
	msgs  *fakeMessageRepo
	convs *fakeConversationRepo
	hub   *recordingHub
	clock time.Time
}

func newFixture() *serviceFixture {
	f := &serviceFixture{
		msgs:  newFakeMessageRepo(),
		convs: newFakeConversationRepo(),
		hub:   newRecordingHub(),
		clock: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewMessageService(f.msgs, f.convs, f.hub, f.hub, zap.NewNop()).(*messageService)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *serviceFixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func (f *serviceFixture) directConversation(t *testing.T, a, b string) string {
	t.Helper()
	conv := &model.Conversation{
		ParticipantIDs: []string{a, b},
		ParticipantKey: model.ParticipantKeyFor([]string{a, b}),
		CreatedAt:      f.clock,
		UpdatedAt:      f.clock,
	}
	id, err := f.convs.Insert(context.Background(), conv)
	if err != nil {
		t.Fatalf("insert conversation: %v", err)
	}
	return id
}

func (f *serviceFixture) groupConversation(t *testing.T, creator string, participants ...string) string {
	t.Helper()
	conv, err := f.svc.CreateGroupConversation(context.Background(), creator, participants, "standup")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return conv.ID.Hex()
}

func (f *serviceFixture) send(t *testing.T, senderID, conversationID, content string) *event.MessagePayload {
	t.Helper()
	msg, err := f.svc.SendMessage(context.Background(), senderID, event.SendMessageRequest{
		ConversationID: conversationID,
		Content:        content,
	})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	return msg
}

// -----------------------------------------------------------------------------
// Sending
// -----------------------------------------------------------------------------

func TestSendMessageBroadcastsToConversationGroup(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")

	msg := f.send(t, "alice", convID, "hi bob")

	if msg.ID == "" || msg.ConversationID != convID || msg.SenderID != "alice" {
		t.Fatalf("bad payload: %+v", msg)
	}

	calls := f.hub.callsOfType(event.EventReceiveMessage)
	if len(calls) != 1 {
		t.Fatalf("expected 1 ReceiveMessage broadcast, got %d", len(calls))
	}
	if calls[0].group != ConversationGroup(convID) {
		t.Errorf("broadcast group: got %s", calls[0].group)
	}

	conv, _ := f.convs.FindByID(context.Background(), convID)
	if conv.LastMessageID != msg.ID {
		t.Errorf("last message not updated: %s", conv.LastMessageID)
	}
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")

	_, err := f.svc.SendMessage(context.Background(), "mallory", event.SendMessageRequest{
		ConversationID: convID,
		Content:        "let me in",
	})
	if err != ErrNotParticipant {
		t.Fatalf("got %v, want ErrNotParticipant", err)
	}
	if len(f.hub.calls) != 0 {
		t.Fatal("rejected send must not broadcast")
	}
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")

	_, err := f.svc.SendMessage(context.Background(), "alice", event.SendMessageRequest{ConversationID: convID})
	if err != ErrEmptyContent {
		t.Fatalf("got %v, want ErrEmptyContent", err)
	}
}

func TestSendMessageCreatesDirectConversationOnDemand(t *testing.T) {
	f := newFixture()

	msg, err := f.svc.SendMessage(context.Background(), "alice", event.SendMessageRequest{
		RecipientID: "bob",
		Content:     "first contact",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	// Both sides get subscribed to the new conversation's group.
	group := ConversationGroup(msg.ConversationID)
	for _, user := range []string{"alice", "bob"} {
		found := false
		for _, g := range f.hub.subscribed[user] {
			if g == group {
				found = true
			}
		}
		if !found {
			t.Errorf("%s not subscribed to new conversation", user)
		}
	}

	// The reply from the other side lands in the same conversation.
	reply, err := f.svc.SendMessage(context.Background(), "bob", event.SendMessageRequest{
		RecipientID: "alice",
		Content:     "hello back",
	})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.ConversationID != msg.ConversationID {
		t.Fatalf("pair split across conversations: %s vs %s", reply.ConversationID, msg.ConversationID)
	}
	if len(f.convs.conversations) != 1 {
		t.Fatalf("expected a single direct conversation, got %d", len(f.convs.conversations))
	}
}

func TestSendMessageDirectCreationRace(t *testing.T) {
	f := newFixture()

	// Losing the unique-index race: the first lookup misses, our insert
	// collides, and by the second lookup the other side's conversation is
	// there.
	existing := &model.Conversation{
		ParticipantIDs: []string{"alice", "bob"},
		ParticipantKey: model.ParticipantKeyFor([]string{"bob", "alice"}),
	}
	existingID, _ := f.convs.Insert(context.Background(), existing)
	f.convs.keyMissOnce = true
	f.convs.insertErr = repo.ErrInvalidConversationID

	msg, err := f.svc.SendMessage(context.Background(), "alice", event.SendMessageRequest{
		RecipientID: "bob",
		Content:     "racing",
	})
	if err != nil {
		t.Fatalf("send during race: %v", err)
	}
	if msg.ConversationID != existingID {
		t.Fatalf("race not resolved to existing conversation: %s", msg.ConversationID)
	}
}

func TestSendMessageRequiresRecipientWithoutConversation(t *testing.T) {
	f := newFixture()

	_, err := f.svc.SendMessage(context.Background(), "alice", event.SendMessageRequest{Content: "to nobody"})
	if err != ErrNoRecipient {
		t.Fatalf("got %v, want ErrNoRecipient", err)
	}

	_, err = f.svc.SendMessage(context.Background(), "alice", event.SendMessageRequest{
		RecipientID: "alice",
		Content:     "to myself",
	})
	if err != ErrNoRecipient {
		t.Fatalf("self-message: got %v, want ErrNoRecipient", err)
	}
}

// -----------------------------------------------------------------------------
// Read receipts
// -----------------------------------------------------------------------------

func TestMarkAsReadNotifiesSenderOnly(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")
	msg := f.send(t, "alice", convID, "read me")

	if err := f.svc.MarkAsRead(context.Background(), msg.ID, "bob"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	calls := f.hub.callsOfType(event.EventMessageRead)
	if len(calls) != 1 {
		t.Fatalf("expected 1 MessageRead broadcast, got %d", len(calls))
	}
	if calls[0].group != UserGroup("alice") {
		t.Errorf("receipt must target the sender's personal group, got %s", calls[0].group)
	}

	var p event.ReadPayload
	if err := json.Unmarshal(calls[0].env.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.MessageID != msg.ID || p.ReaderID != "bob" {
		t.Errorf("bad receipt payload: %+v", p)
	}

	stored, _ := f.msgs.FindByID(context.Background(), msg.ID)
	if !stored.IsRead || stored.ReadAt == nil {
		t.Error("message not persisted as read")
	}
}

func TestMarkAsReadIsIdempotent(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")
	msg := f.send(t, "alice", convID, "read me")

	f.svc.MarkAsRead(context.Background(), msg.ID, "bob")
	f.svc.MarkAsRead(context.Background(), msg.ID, "bob")

	if calls := f.hub.callsOfType(event.EventMessageRead); len(calls) != 1 {
		t.Fatalf("repeat receipt broadcast again: %d calls", len(calls))
	}
}

func TestMarkAsReadBySenderIsNoOp(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")
	msg := f.send(t, "alice", convID, "mine")

	if err := f.svc.MarkAsRead(context.Background(), msg.ID, "alice"); err != nil {
		t.Fatalf("sender self-read errored: %v", err)
	}

	stored, _ := f.msgs.FindByID(context.Background(), msg.ID)
	if stored.IsRead {
		t.Error("sender viewing their own message must not mark it read")
	}
	if calls := f.hub.callsOfType(event.EventMessageRead); len(calls) != 0 {
		t.Error("sender self-read must not broadcast")
	}
}

// -----------------------------------------------------------------------------
// Typing
// -----------------------------------------------------------------------------

func TestTypingExcludesSenderConnection(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")

	if err := f.svc.Typing(context.Background(), "alice", convID, "conn-42"); err != nil {
		t.Fatalf("typing: %v", err)
	}

	calls := f.hub.callsOfType(event.EventUserTyping)
	if len(calls) != 1 {
		t.Fatalf("expected 1 typing broadcast, got %d", len(calls))
	}
	if calls[0].group != ConversationGroup(convID) || calls[0].exceptID != "conn-42" {
		t.Errorf("typing fan-out wrong: group=%s except=%s", calls[0].group, calls[0].exceptID)
	}
}

func TestTypingRejectsNonParticipant(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")

	if err := f.svc.Typing(context.Background(), "mallory", convID, "conn-1"); err != ErrNotParticipant {
		t.Fatalf("got %v, want ErrNotParticipant", err)
	}
}

// -----------------------------------------------------------------------------
// Edit / unsend / delete
// -----------------------------------------------------------------------------

func TestEditMessageWithinWindow(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")
	msg := f.send(t, "alice", convID, "typo")

	f.advance(4 * time.Minute)
	if err := f.svc.EditMessage(context.Background(), "alice", msg.ID, "fixed"); err != nil {
		t.Fatalf("edit: %v", err)
	}

	stored, _ := f.msgs.FindByID(context.Background(), msg.ID)
	if stored.Content != "fixed" || !stored.IsEdited {
		t.Fatalf("edit not persisted: %+v", stored)
	}

	calls := f.hub.callsOfType(event.EventMessageEdited)
	if len(calls) != 1 || calls[0].group != ConversationGroup(convID) {
		t.Fatalf("edit broadcast wrong: %+v", calls)
	}
}

func TestEditMessageAfterWindowExpires(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")
	msg := f.send(t, "alice", convID, "too late")

	f.advance(6 * time.Minute)
	if err := f.svc.EditMessage(context.Background(), "alice", msg.ID, "nope"); err != ErrEditWindowExpired {
		t.Fatalf("got %v, want ErrEditWindowExpired", err)
	}
}

func TestEditMessageBySomeoneElse(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")
	msg := f.send(t, "alice", convID, "hers")

	if err := f.svc.EditMessage(context.Background(), "bob", msg.ID, "mine now"); err != ErrNotSender {
		t.Fatalf("got %v, want ErrNotSender", err)
	}
}

func TestUnsendMessageClearsContent(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")
	msg := f.send(t, "alice", convID, "regret")

	if err := f.svc.UnsendMessage(context.Background(), "alice", msg.ID); err != nil {
		t.Fatalf("unsend: %v", err)
	}

	stored, _ := f.msgs.FindByID(context.Background(), msg.ID)
	if !stored.IsUnsent || stored.Content != "" {
		t.Fatalf("unsend not persisted: %+v", stored)
	}

	if calls := f.hub.callsOfType(event.EventMessageUnsent); len(calls) != 1 || calls[0].group != ConversationGroup(convID) {
		t.Fatalf("unsend broadcast wrong: %+v", calls)
	}

	// An unsent message cannot be edited or unsent again.
	if err := f.svc.EditMessage(context.Background(), "alice", msg.ID, "bring it back"); err != ErrMessageUnsent {
		t.Fatalf("edit after unsend: got %v, want ErrMessageUnsent", err)
	}
	if err := f.svc.UnsendMessage(context.Background(), "alice", msg.ID); err != ErrMessageUnsent {
		t.Fatalf("double unsend: got %v, want ErrMessageUnsent", err)
	}
}

func TestDeleteForUserIsPerUser(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")
	msg := f.send(t, "alice", convID, "only bob deletes this")

	if err := f.svc.DeleteForUser(context.Background(), msg.ID, "bob"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// The confirmation goes to the deleting user's own group so every one of
	// their tabs drops the message.
	calls := f.hub.callsOfType(event.EventMessageDeleted)
	if len(calls) != 1 || calls[0].group != UserGroup("bob") {
		t.Fatalf("delete broadcast wrong: %+v", calls)
	}

	bobView, _ := f.svc.GetMessages(context.Background(), convID, "bob", 1)
	if len(bobView) != 0 {
		t.Fatalf("bob still sees %d messages", len(bobView))
	}
	aliceView, _ := f.svc.GetMessages(context.Background(), convID, "alice", 1)
	if len(aliceView) != 1 {
		t.Fatalf("alice's view changed: %d messages", len(aliceView))
	}
}

func TestDeleteForUserIsIdempotent(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")
	msg := f.send(t, "alice", convID, "x")

	f.svc.DeleteForUser(context.Background(), msg.ID, "bob")
	f.svc.DeleteForUser(context.Background(), msg.ID, "bob")

	if calls := f.hub.callsOfType(event.EventMessageDeleted); len(calls) != 1 {
		t.Fatalf("repeat delete broadcast again: %d calls", len(calls))
	}
}

func TestGetMessagesBlanksUnsentContent(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")
	msg := f.send(t, "alice", convID, "secret")
	f.svc.UnsendMessage(context.Background(), "alice", msg.ID)

	view, err := f.svc.GetMessages(context.Background(), convID, "bob", 1)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(view) != 1 || view[0].Content != "" || !view[0].IsUnsent {
		t.Fatalf("unsent message leaked content: %+v", view)
	}
}

// -----------------------------------------------------------------------------
// Group lifecycle
// -----------------------------------------------------------------------------

func TestCreateGroupAddsCreatorAndSubscribes(t *testing.T) {
	f := newFixture()

	conv, err := f.svc.CreateGroupConversation(context.Background(), "alice", []string{"bob", "carol"}, "team")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if !conv.HasParticipant("alice") {
		t.Fatal("creator must be a participant")
	}

	group := ConversationGroup(conv.ID.Hex())
	for _, user := range []string{"alice", "bob", "carol"} {
		if len(f.hub.subscribed[user]) != 1 || f.hub.subscribed[user][0] != group {
			t.Errorf("%s not subscribed: %v", user, f.hub.subscribed[user])
		}
	}
}

func TestAddParticipantSubscribesLiveConnections(t *testing.T) {
	f := newFixture()
	convID := f.groupConversation(t, "alice", "alice", "bob")

	if err := f.svc.AddParticipant(context.Background(), convID, "alice", "dave"); err != nil {
		t.Fatalf("add participant: %v", err)
	}

	conv, _ := f.convs.FindByID(context.Background(), convID)
	if !conv.HasParticipant("dave") {
		t.Fatal("dave not persisted as participant")
	}

	group := ConversationGroup(convID)
	found := false
	for _, g := range f.hub.subscribed["dave"] {
		if g == group {
			found = true
		}
	}
	if !found {
		t.Fatal("dave's live connections not subscribed to the group")
	}

	// A second add is a no-op.
	if err := f.svc.AddParticipant(context.Background(), convID, "alice", "dave"); err != nil {
		t.Fatalf("re-add errored: %v", err)
	}
}

func TestAddParticipantRequiresMembership(t *testing.T) {
	f := newFixture()
	convID := f.groupConversation(t, "alice", "alice", "bob")

	if err := f.svc.AddParticipant(context.Background(), convID, "mallory", "dave"); err != ErrNotParticipant {
		t.Fatalf("got %v, want ErrNotParticipant", err)
	}
}

func TestRemoveParticipantIsCreatorOnly(t *testing.T) {
	f := newFixture()
	convID := f.groupConversation(t, "alice", "alice", "bob", "carol")

	if err := f.svc.RemoveParticipant(context.Background(), convID, "bob", "carol"); err != ErrNotCreator {
		t.Fatalf("got %v, want ErrNotCreator", err)
	}

	if err := f.svc.RemoveParticipant(context.Background(), convID, "alice", "carol"); err != nil {
		t.Fatalf("creator removal: %v", err)
	}

	conv, _ := f.convs.FindByID(context.Background(), convID)
	if conv.HasParticipant("carol") {
		t.Fatal("carol still a participant")
	}
	if len(f.hub.unsubscribe["carol"]) != 1 {
		t.Fatal("carol's connections not unsubscribed")
	}
}

func TestLeaveGroupLastParticipantCascades(t *testing.T) {
	f := newFixture()
	convID := f.groupConversation(t, "alice", "alice", "bob")
	f.send(t, "alice", convID, "soon gone")

	if err := f.svc.LeaveGroup(context.Background(), convID, "bob"); err != nil {
		t.Fatalf("bob leaves: %v", err)
	}
	if _, err := f.convs.FindByID(context.Background(), convID); err != nil {
		t.Fatal("conversation deleted while a participant remains")
	}

	if err := f.svc.LeaveGroup(context.Background(), convID, "alice"); err != nil {
		t.Fatalf("last leave: %v", err)
	}

	if _, err := f.convs.FindByID(context.Background(), convID); err != repo.ErrConversationNotFound {
		t.Fatal("conversation should be gone after the last participant leaves")
	}
	if len(f.msgs.messages) != 0 {
		t.Fatalf("messages not cascade-deleted: %d remain", len(f.msgs.messages))
	}
	if len(f.hub.dropped) != 1 || f.hub.dropped[0] != ConversationGroup(convID) {
		t.Fatalf("group not dropped: %v", f.hub.dropped)
	}
}

func TestDeleteGroupIsCreatorOnly(t *testing.T) {
	f := newFixture()
	convID := f.groupConversation(t, "alice", "alice", "bob")
	f.send(t, "bob", convID, "about to vanish")

	if err := f.svc.DeleteGroup(context.Background(), convID, "bob"); err != ErrNotCreator {
		t.Fatalf("got %v, want ErrNotCreator", err)
	}

	if err := f.svc.DeleteGroup(context.Background(), convID, "alice"); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if len(f.msgs.messages) != 0 {
		t.Fatal("messages survived group deletion")
	}
}

func TestGroupOpsRejectDirectConversations(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")

	if err := f.svc.AddParticipant(context.Background(), convID, "alice", "carol"); err != ErrNotGroup {
		t.Fatalf("add: got %v, want ErrNotGroup", err)
	}
	if err := f.svc.LeaveGroup(context.Background(), convID, "alice"); err != ErrNotGroup {
		t.Fatalf("leave: got %v, want ErrNotGroup", err)
	}
	if err := f.svc.DeleteGroup(context.Background(), convID, "alice"); err != ErrNotGroup {
		t.Fatalf("delete: got %v, want ErrNotGroup", err)
	}
}

// -----------------------------------------------------------------------------
// Unread
// -----------------------------------------------------------------------------

func TestUnreadCountSkipsOwnReadAndDeleted(t *testing.T) {
	f := newFixture()
	convID := f.directConversation(t, "alice", "bob")

	m1 := f.send(t, "alice", convID, "one")
	f.send(t, "alice", convID, "two")
	m3 := f.send(t, "alice", convID, "three")
	f.send(t, "bob", convID, "bob's own")

	f.svc.MarkAsRead(context.Background(), m1.ID, "bob")
	f.svc.DeleteForUser(context.Background(), m3.ID, "bob")

	count, err := f.svc.UnreadCount(context.Background(), "bob")
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 1 {
		t.Fatalf("unread = %d, want 1 (read, deleted and own messages excluded)", count)
	}
}
