package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hrm-api/internal/model"
	"github.com/jwalitptl/hrm-api/internal/repository"
	apperrors "github.com/jwalitptl/hrm-api/pkg/errors"
	"github.com/jwalitptl/hrm-api/pkg/metrics"
	"github.com/jwalitptl/hrm-api/pkg/validator"
)

// Service is the fan-out engine: it turns one authored notification into a
// per-recipient status row for every user active at send time, atomically,
// and queues the push event announcing it.
type Service interface {
	// Send persists the notification and its status rows. Returns the
	// persisted notification and the recipient count. An empty recipient
	// set is success with count 0.
	Send(ctx context.Context, authorID uuid.UUID, req *model.CreateNotificationRequest) (*model.Notification, int, error)
	MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.NotificationWithStatus, error)
	Update(ctx context.Context, notificationID, actorID uuid.UUID, req *model.UpdateNotificationRequest) (*model.Notification, error)
	Delete(ctx context.Context, notificationID, actorID uuid.UUID) error
}

type service struct {
	repo      repository.NotificationRepository
	userRepo  repository.UserRepository
	validator validator.Validator
	metrics   *metrics.Metrics
}

func NewService(repo repository.NotificationRepository, userRepo repository.UserRepository, m *metrics.Metrics) Service {
	return &service{
		repo:      repo,
		userRepo:  userRepo,
		validator: validator.New(),
		metrics:   m,
	}
}

func (s *service) Send(ctx context.Context, authorID uuid.UUID, req *model.CreateNotificationRequest) (*model.Notification, int, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, 0, apperrors.BadRequest("invalid notification", err)
	}

	// Author must resolve to an active identity before any write.
	author, err := s.userRepo.Get(ctx, authorID)
	if err != nil {
		return nil, 0, apperrors.BadRequest("author not resolvable", err)
	}
	if !author.IsActive() {
		return nil, 0, apperrors.BadRequest("author is not active", nil)
	}

	// Recipient snapshot as of this moment. Users added later never gain a
	// status row for this notification.
	recipients, err := s.userRepo.GetActiveRecipients(ctx, req.RoleFilter)
	if err != nil {
		return nil, 0, apperrors.Retriable("failed to snapshot recipients", err)
	}

	now := time.Now()
	n := &model.Notification{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Title:      req.Title,
		Body:       req.Body,
		AuthorID:   authorID,
		RoleFilter: req.RoleFilter,
	}

	outbox, err := buildOutboxEvent(n, recipients)
	if err != nil {
		return nil, 0, apperrors.Internal(err)
	}

	// All rows or none: a partial fan-out is a total failure, retried by the
	// caller against a clean slate.
	if err := s.repo.CreateWithStatuses(ctx, n, recipients, outbox); err != nil {
		if s.metrics != nil {
			s.metrics.FanoutFailures.Inc()
		}
		return nil, 0, apperrors.Retriable("fan-out failed", err)
	}

	if s.metrics != nil {
		s.metrics.FanoutRecipients.Observe(float64(len(recipients)))
	}
	return n, len(recipients), nil
}

func (s *service) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	updated, err := s.repo.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if !updated {
		// No status row: the user never was a recipient.
		return apperrors.NotFound("notification status", nil)
	}
	return nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.NotificationWithStatus, error) {
	items, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return items, nil
}

func (s *service) Update(ctx context.Context, notificationID, actorID uuid.UUID, req *model.UpdateNotificationRequest) (*model.Notification, error) {
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return nil, apperrors.NotFound("notification", err)
	}
	if n.AuthorID != actorID {
		return nil, apperrors.Forbidden("only the author can edit a notification", nil)
	}

	if req.Title != nil {
		if *req.Title == "" {
			return nil, apperrors.BadRequest("title cannot be empty", nil)
		}
		n.Title = *req.Title
	}
	if req.Body != nil {
		if *req.Body == "" {
			return nil, apperrors.BadRequest("body cannot be empty", nil)
		}
		n.Body = *req.Body
	}

	if err := s.repo.Update(ctx, n); err != nil {
		return nil, apperrors.Internal(err)
	}
	return n, nil
}

func (s *service) Delete(ctx context.Context, notificationID, actorID uuid.UUID) error {
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return apperrors.NotFound("notification", err)
	}
	if n.AuthorID != actorID {
		return apperrors.Forbidden("only the author can delete a notification", nil)
	}
	if err := s.repo.SoftDelete(ctx, notificationID); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func buildOutboxEvent(n *model.Notification, recipients []uuid.UUID) (*model.OutboxEvent, error) {
	payload, err := json.Marshal(model.NotificationPayload{
		NotificationID: n.ID,
		Title:          n.Title,
		Body:           n.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	ev := &model.DeliveryEvent{
		Kind:            model.EventNotificationCreated,
		ConversationKey: n.ID.String(),
		SenderID:        n.AuthorID,
		Recipients:      recipients,
		Payload:         payload,
		SentAt:          n.CreatedAt,
	}
	return model.NewOutboxEvent(ev)
}
