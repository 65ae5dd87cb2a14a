package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hrm-api/internal/model"
	apperrors "github.com/jwalitptl/hrm-api/pkg/errors"
)

type fakeMessageRepo struct {
	failCreate bool

	created *model.Message
	outbox  *model.OutboxEvent

	messages  map[uuid.UUID]*model.Message
	readMarks map[string]time.Time
	summaries []*model.ConversationSummary
	deleted   []uuid.UUID
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		messages:  make(map[uuid.UUID]*model.Message),
		readMarks: make(map[string]time.Time),
	}
}

func (r *fakeMessageRepo) Create(ctx context.Context, m *model.Message, outbox *model.OutboxEvent) error {
	if r.failCreate {
		return errors.New("insert failed")
	}
	r.created = m
	r.outbox = outbox
	r.messages[m.ID] = m
	return nil
}

func (r *fakeMessageRepo) Get(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	m, ok := r.messages[id]
	if !ok {
		return nil, errors.New("message not found")
	}
	return m, nil
}

func (r *fakeMessageRepo) ListDirect(ctx context.Context, userID, peerID uuid.UUID) ([]*model.Message, error) {
	var out []*model.Message
	for _, m := range r.messages {
		if m.ReceiverID == nil {
			continue
		}
		if (m.SenderID == userID && *m.ReceiverID == peerID) ||
			(m.SenderID == peerID && *m.ReceiverID == userID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) ListGroup(ctx context.Context, groupID uuid.UUID) ([]*model.Message, error) {
	var out []*model.Message
	for _, m := range r.messages {
		if m.GroupID != nil && *m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) Update(ctx context.Context, m *model.Message) error {
	r.messages[m.ID] = m
	return nil
}

func (r *fakeMessageRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeMessageRepo) MarkConversationRead(ctx context.Context, userID uuid.UUID, conversationKey string, readAt time.Time) error {
	r.readMarks[userID.String()+"/"+conversationKey] = readAt
	return nil
}

func (r *fakeMessageRepo) ListConversationSummaries(ctx context.Context, userID uuid.UUID) ([]*model.ConversationSummary, error) {
	return r.summaries, nil
}

type fakeGroupRepo struct {
	groups  map[uuid.UUID]*model.GroupConversation
	members map[uuid.UUID][]uuid.UUID
	reads   int
}

func (r *fakeGroupRepo) Get(ctx context.Context, id uuid.UUID) (*model.GroupConversation, error) {
	g, ok := r.groups[id]
	if !ok {
		return nil, errors.New("group not found")
	}
	return g, nil
}

func (r *fakeGroupRepo) GetMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	r.reads++
	members, ok := r.members[groupID]
	if !ok {
		return nil, errors.New("group not found")
	}
	return members, nil
}

func (r *fakeGroupRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.GroupConversation, error) {
	return nil, nil
}

type fakeUserRepo struct {
	users map[uuid.UUID]*model.User
}

func (r *fakeUserRepo) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

func (r *fakeUserRepo) GetActiveRecipients(ctx context.Context, roleFilter *string) ([]uuid.UUID, error) {
	return nil, nil
}

func uuidptr(id uuid.UUID) *uuid.UUID { return &id }

func knownUser() (*fakeUserRepo, uuid.UUID) {
	id := uuid.New()
	return &fakeUserRepo{users: map[uuid.UUID]*model.User{
		id: {Base: model.Base{ID: id}, Status: model.UserStatusActive},
	}}, id
}

func TestSendDirectMessage(t *testing.T) {
	users, receiverID := knownUser()
	repo := newFakeMessageRepo()
	svc := NewService(repo, &fakeGroupRepo{}, users)
	senderID := uuid.New()

	m, err := svc.Send(context.Background(), senderID, &model.SendMessageRequest{
		ReceiverID: uuidptr(receiverID),
		Content:    "lunch?",
	})

	require.NoError(t, err)
	assert.Equal(t, senderID, m.SenderID)
	assert.False(t, m.SentAt.IsZero())

	// The receiver's unread scope is keyed by the sender.
	require.NotNil(t, repo.outbox)
	var ev model.DeliveryEvent
	require.NoError(t, json.Unmarshal(repo.outbox.Payload, &ev))
	assert.Equal(t, model.EventMessageDirect, ev.Kind)
	assert.Equal(t, model.UserConversationKey(senderID), ev.ConversationKey)
	assert.Equal(t, []uuid.UUID{receiverID}, ev.Recipients)
	assert.Equal(t, senderID, ev.SenderID)
}

func TestSendGroupMessageUsesSendTimeRoster(t *testing.T) {
	groupID := uuid.New()
	sender := uuid.New()
	others := []uuid.UUID{uuid.New(), uuid.New()}
	groups := &fakeGroupRepo{members: map[uuid.UUID][]uuid.UUID{
		groupID: append([]uuid.UUID{sender}, others...),
	}}
	repo := newFakeMessageRepo()
	svc := NewService(repo, groups, &fakeUserRepo{})

	_, err := svc.Send(context.Background(), sender, &model.SendMessageRequest{
		GroupID: uuidptr(groupID),
		Content: "standup moved to 10",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, groups.reads)

	var ev model.DeliveryEvent
	require.NoError(t, json.Unmarshal(repo.outbox.Payload, &ev))
	assert.Equal(t, model.EventMessageGroup, ev.Kind)
	assert.Equal(t, model.GroupConversationKey(groupID), ev.ConversationKey)
	// The sender is in the recipient set; their own client suppresses the echo.
	assert.ElementsMatch(t, append([]uuid.UUID{sender}, others...), ev.Recipients)

	// A roster change is picked up by the very next send.
	joined := uuid.New()
	groups.members[groupID] = append(groups.members[groupID], joined)
	_, err = svc.Send(context.Background(), sender, &model.SendMessageRequest{
		GroupID: uuidptr(groupID),
		Content: "welcome aboard",
	})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(repo.outbox.Payload, &ev))
	assert.Contains(t, ev.Recipients, joined)
}

func TestSendGroupMessageRequiresMembership(t *testing.T) {
	groupID := uuid.New()
	groups := &fakeGroupRepo{members: map[uuid.UUID][]uuid.UUID{
		groupID: {uuid.New(), uuid.New()},
	}}
	svc := NewService(newFakeMessageRepo(), groups, &fakeUserRepo{})

	_, err := svc.Send(context.Background(), uuid.New(), &model.SendMessageRequest{
		GroupID: uuidptr(groupID),
		Content: "let me in",
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
}

func TestSendRejectsAmbiguousTarget(t *testing.T) {
	users, receiverID := knownUser()
	svc := NewService(newFakeMessageRepo(), &fakeGroupRepo{}, users)

	_, err := svc.Send(context.Background(), uuid.New(), &model.SendMessageRequest{
		ReceiverID: uuidptr(receiverID),
		GroupID:    uuidptr(uuid.New()),
		Content:    "both targets",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))

	_, err = svc.Send(context.Background(), uuid.New(), &model.SendMessageRequest{Content: "no target"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
}

func TestSendRejectsUnknownReceiver(t *testing.T) {
	svc := NewService(newFakeMessageRepo(), &fakeGroupRepo{}, &fakeUserRepo{users: map[uuid.UUID]*model.User{}})

	_, err := svc.Send(context.Background(), uuid.New(), &model.SendMessageRequest{
		ReceiverID: uuidptr(uuid.New()),
		Content:    "hello?",
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
}

func TestSendPersistFailureIsRetriable(t *testing.T) {
	users, receiverID := knownUser()
	repo := newFakeMessageRepo()
	repo.failCreate = true
	svc := NewService(repo, &fakeGroupRepo{}, users)

	_, err := svc.Send(context.Background(), uuid.New(), &model.SendMessageRequest{
		ReceiverID: uuidptr(receiverID),
		Content:    "doomed",
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsRetriable(err))
}

func TestListConversationGroupRequiresMembership(t *testing.T) {
	groupID := uuid.New()
	member := uuid.New()
	groups := &fakeGroupRepo{members: map[uuid.UUID][]uuid.UUID{groupID: {member}}}
	svc := NewService(newFakeMessageRepo(), groups, &fakeUserRepo{})

	_, err := svc.ListConversation(context.Background(), uuid.New(), model.GroupConversationKey(groupID))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	_, err = svc.ListConversation(context.Background(), member, model.GroupConversationKey(groupID))
	assert.NoError(t, err)
}

func TestListConversationRejectsBadKey(t *testing.T) {
	svc := NewService(newFakeMessageRepo(), &fakeGroupRepo{}, &fakeUserRepo{})

	_, err := svc.ListConversation(context.Background(), uuid.New(), "not-a-key")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
}

func TestMarkConversationRead(t *testing.T) {
	users, peerID := knownUser()
	repo := newFakeMessageRepo()
	svc := NewService(repo, &fakeGroupRepo{}, users)
	userID := uuid.New()
	key := model.UserConversationKey(peerID)

	require.NoError(t, svc.MarkConversationRead(context.Background(), userID, key))
	assert.Contains(t, repo.readMarks, userID.String()+"/"+key)

	err := svc.MarkConversationRead(context.Background(), userID, "garbage")
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
}

func TestUpdateAndDeleteOnlySender(t *testing.T) {
	users, receiverID := knownUser()
	repo := newFakeMessageRepo()
	svc := NewService(repo, &fakeGroupRepo{}, users)
	senderID := uuid.New()

	m, err := svc.Send(context.Background(), senderID, &model.SendMessageRequest{
		ReceiverID: uuidptr(receiverID),
		Content:    "typo hre",
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), m.ID, uuid.New(), &model.UpdateMessageRequest{Content: "hijack"})
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	updated, err := svc.Update(context.Background(), m.ID, senderID, &model.UpdateMessageRequest{Content: "typo here"})
	require.NoError(t, err)
	assert.Equal(t, "typo here", updated.Content)

	err = svc.Delete(context.Background(), m.ID, uuid.New())
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))
	require.NoError(t, svc.Delete(context.Background(), m.ID, senderID))
	assert.Equal(t, []uuid.UUID{m.ID}, repo.deleted)
}
