package fanout

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

type fakeUserRepo struct {
	users      map[uuid.UUID]*model.User
	recipients map[string][]uuid.UUID // keyed by role filter, "" for all
	snapshots  int
}

func (r *fakeUserRepo) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

func (r *fakeUserRepo) GetActiveRecipients(ctx context.Context, roleFilter *string) ([]uuid.UUID, error) {
	r.snapshots++
	key := ""
	if roleFilter != nil {
		key = *roleFilter
	}
	return r.recipients[key], nil
}

type fakeNotificationRepo struct {
	failCreate bool

	created     *model.Notification
	statusesFor []uuid.UUID
	outbox      *model.OutboxEvent

	notifications map[uuid.UUID]*model.Notification
	statusRows    map[uuid.UUID]map[uuid.UUID]*model.NotificationStatus
	deleted       []uuid.UUID
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{
		notifications: make(map[uuid.UUID]*model.Notification),
		statusRows:    make(map[uuid.UUID]map[uuid.UUID]*model.NotificationStatus),
	}
}

func (r *fakeNotificationRepo) CreateWithStatuses(ctx context.Context, n *model.Notification, recipientIDs []uuid.UUID, outbox *model.OutboxEvent) error {
	if r.failCreate {
		// Nothing persisted: the transaction rolled back whole.
		return errors.New("constraint violation")
	}
	r.created = n
	r.statusesFor = recipientIDs
	r.outbox = outbox
	r.notifications[n.ID] = n
	rows := make(map[uuid.UUID]*model.NotificationStatus, len(recipientIDs))
	for _, id := range recipientIDs {
		rows[id] = &model.NotificationStatus{NotificationID: n.ID, UserID: id}
	}
	r.statusRows[n.ID] = rows
	return nil
}

func (r *fakeNotificationRepo) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	n, ok := r.notifications[id]
	if !ok {
		return nil, errors.New("notification not found")
	}
	return n, nil
}

func (r *fakeNotificationRepo) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) (bool, error) {
	row, ok := r.statusRows[notificationID][userID]
	if !ok {
		return false, nil
	}
	if !row.Read {
		row.Read = true
		now := time.Now()
		row.ReadAt = &now
	}
	return true, nil
}

func (r *fakeNotificationRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.NotificationWithStatus, error) {
	var out []*model.NotificationWithStatus
	for nid, rows := range r.statusRows {
		row, ok := rows[userID]
		if !ok {
			continue
		}
		out = append(out, &model.NotificationWithStatus{
			Notification: *r.notifications[nid],
			Read:         row.Read,
			ReadAt:       row.ReadAt,
		})
	}
	return out, nil
}

func (r *fakeNotificationRepo) Update(ctx context.Context, n *model.Notification) error {
	r.notifications[n.ID] = n
	return nil
}

func (r *fakeNotificationRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	r.deleted = append(r.deleted, id)
	return nil
}

func activeUser(role string) *model.User {
	return &model.User{
		Base:   model.Base{ID: uuid.New()},
		Role:   role,
		Status: model.UserStatusActive,
	}
}

func strptr(s string) *string { return &s }

func TestSendFansOutToSnapshot(t *testing.T) {
	author := activeUser(model.UserRoleManager)
	recipients := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	users := &fakeUserRepo{
		users:      map[uuid.UUID]*model.User{author.ID: author},
		recipients: map[string][]uuid.UUID{"": recipients},
	}
	repo := newFakeNotificationRepo()
	svc := NewService(repo, users, nil)

	n, count, err := svc.Send(context.Background(), author.ID, &model.CreateNotificationRequest{
		Title: "Benefits enrollment open",
		Body:  "Enroll by the end of the month.",
	})

	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, recipients, repo.statusesFor)
	assert.Equal(t, n.ID, repo.created.ID)
	assert.Equal(t, 1, users.snapshots)

	// The outbox event shares the transaction and carries the resolved
	// recipient set for routing.
	require.NotNil(t, repo.outbox)
	assert.Equal(t, model.EventNotificationCreated, repo.outbox.EventType)
	var ev model.DeliveryEvent
	require.NoError(t, json.Unmarshal(repo.outbox.Payload, &ev))
	assert.Equal(t, recipients, ev.Recipients)
	assert.Equal(t, n.ID.String(), ev.ConversationKey)
	assert.Equal(t, author.ID, ev.SenderID)
}

func TestSendRoleFilterNarrowsRecipients(t *testing.T) {
	author := activeUser(model.UserRoleAdmin)
	admins := []uuid.UUID{uuid.New(), uuid.New()}
	everyone := append([]uuid.UUID{uuid.New(), uuid.New(), uuid.New()}, admins...)

	users := &fakeUserRepo{
		users: map[uuid.UUID]*model.User{author.ID: author},
		recipients: map[string][]uuid.UUID{
			"":                  everyone,
			model.UserRoleAdmin: admins,
		},
	}
	repo := newFakeNotificationRepo()
	svc := NewService(repo, users, nil)

	_, count, err := svc.Send(context.Background(), author.ID, &model.CreateNotificationRequest{
		Title:      "Admin maintenance window",
		Body:       "Systems down Saturday night.",
		RoleFilter: strptr(model.UserRoleAdmin),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, admins, repo.statusesFor)
}

func TestSendEmptyRecipientSetIsSuccess(t *testing.T) {
	author := activeUser(model.UserRoleAdmin)
	users := &fakeUserRepo{
		users:      map[uuid.UUID]*model.User{author.ID: author},
		recipients: map[string][]uuid.UUID{},
	}
	repo := newFakeNotificationRepo()
	svc := NewService(repo, users, nil)

	n, count, err := svc.Send(context.Background(), author.ID, &model.CreateNotificationRequest{
		Title: "Nobody home",
		Body:  "Filtered to an empty role.",
	})

	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.NotNil(t, n)
	assert.Empty(t, repo.statusesFor)
}

func TestSendPersistFailureIsRetriable(t *testing.T) {
	author := activeUser(model.UserRoleManager)
	users := &fakeUserRepo{
		users:      map[uuid.UUID]*model.User{author.ID: author},
		recipients: map[string][]uuid.UUID{"": {uuid.New()}},
	}
	repo := newFakeNotificationRepo()
	repo.failCreate = true
	svc := NewService(repo, users, nil)

	_, _, err := svc.Send(context.Background(), author.ID, &model.CreateNotificationRequest{
		Title: "Doomed",
		Body:  "The write will fail.",
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsRetriable(err))
	assert.Nil(t, repo.created)
}

func TestSendRejectsUnresolvableAuthor(t *testing.T) {
	users := &fakeUserRepo{users: map[uuid.UUID]*model.User{}}
	svc := NewService(newFakeNotificationRepo(), users, nil)

	_, _, err := svc.Send(context.Background(), uuid.New(), &model.CreateNotificationRequest{
		Title: "Ghost author",
		Body:  "No such user.",
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
	// Rejected before the recipient snapshot.
	assert.Equal(t, 0, users.snapshots)
}

func TestSendRejectsInactiveAuthor(t *testing.T) {
	author := activeUser(model.UserRoleManager)
	author.Status = model.UserStatusInactive
	users := &fakeUserRepo{users: map[uuid.UUID]*model.User{author.ID: author}}
	svc := NewService(newFakeNotificationRepo(), users, nil)

	_, _, err := svc.Send(context.Background(), author.ID, &model.CreateNotificationRequest{
		Title: "From a deactivated account",
		Body:  "Should not go out.",
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
}

func TestSendRejectsMissingFields(t *testing.T) {
	author := activeUser(model.UserRoleManager)
	users := &fakeUserRepo{users: map[uuid.UUID]*model.User{author.ID: author}}
	svc := NewService(newFakeNotificationRepo(), users, nil)

	_, _, err := svc.Send(context.Background(), author.ID, &model.CreateNotificationRequest{Title: "No body"})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
}

func TestMarkReadUnknownStatusIsNotFound(t *testing.T) {
	svc := NewService(newFakeNotificationRepo(), &fakeUserRepo{}, nil)

	err := svc.MarkRead(context.Background(), uuid.New(), uuid.New())

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
}

func TestMarkReadIsIdempotent(t *testing.T) {
	author := activeUser(model.UserRoleManager)
	recipient := uuid.New()
	users := &fakeUserRepo{
		users:      map[uuid.UUID]*model.User{author.ID: author},
		recipients: map[string][]uuid.UUID{"": {recipient}},
	}
	repo := newFakeNotificationRepo()
	svc := NewService(repo, users, nil)

	n, _, err := svc.Send(context.Background(), author.ID, &model.CreateNotificationRequest{
		Title: "Read me",
		Body:  "Twice.",
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(context.Background(), n.ID, recipient))
	first := repo.statusRows[n.ID][recipient].ReadAt
	require.NoError(t, svc.MarkRead(context.Background(), n.ID, recipient))

	assert.Equal(t, first, repo.statusRows[n.ID][recipient].ReadAt)
}

func TestUpdateOnlyAuthor(t *testing.T) {
	author := activeUser(model.UserRoleManager)
	users := &fakeUserRepo{
		users:      map[uuid.UUID]*model.User{author.ID: author},
		recipients: map[string][]uuid.UUID{"": {uuid.New()}},
	}
	repo := newFakeNotificationRepo()
	svc := NewService(repo, users, nil)

	n, _, err := svc.Send(context.Background(), author.ID, &model.CreateNotificationRequest{
		Title: "Original",
		Body:  "Body.",
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), n.ID, uuid.New(), &model.UpdateNotificationRequest{Title: strptr("Hijacked")})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	updated, err := svc.Update(context.Background(), n.ID, author.ID, &model.UpdateNotificationRequest{Title: strptr("Edited")})
	require.NoError(t, err)
	assert.Equal(t, "Edited", updated.Title)
	assert.Equal(t, "Body.", updated.Body)
}

func TestDeleteOnlyAuthor(t *testing.T) {
	author := activeUser(model.UserRoleManager)
	users := &fakeUserRepo{
		users:      map[uuid.UUID]*model.User{author.ID: author},
		recipients: map[string][]uuid.UUID{"": {uuid.New()}},
	}
	repo := newFakeNotificationRepo()
	svc := NewService(repo, users, nil)

	n, _, err := svc.Send(context.Background(), author.ID, &model.CreateNotificationRequest{
		Title: "Short lived",
		Body:  "Body.",
	})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), n.ID, uuid.New())
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	require.NoError(t, svc.Delete(context.Background(), n.ID, author.ID))
	assert.Equal(t, []uuid.UUID{n.ID}, repo.deleted)
}
