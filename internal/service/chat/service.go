package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hrm-api/internal/model"
	"github.com/jwalitptl/hrm-api/internal/repository"
	apperrors "github.com/jwalitptl/hrm-api/pkg/errors"
)

// Service persists chat messages and queues the push events announcing them.
// Group scope is resolved from the membership roster at send time, so
// mid-session membership changes take effect for the very next message.
type Service interface {
	Send(ctx context.Context, senderID uuid.UUID, req *model.SendMessageRequest) (*model.Message, error)
	ListConversation(ctx context.Context, userID uuid.UUID, conversationKey string) ([]*model.Message, error)
	ListSummaries(ctx context.Context, userID uuid.UUID) ([]*model.ConversationSummary, error)
	MarkConversationRead(ctx context.Context, userID uuid.UUID, conversationKey string) error
	Update(ctx context.Context, messageID, actorID uuid.UUID, req *model.UpdateMessageRequest) (*model.Message, error)
	Delete(ctx context.Context, messageID, actorID uuid.UUID) error
}

type service struct {
	repo      repository.MessageRepository
	groupRepo repository.GroupRepository
	userRepo  repository.UserRepository
}

func NewService(repo repository.MessageRepository, groupRepo repository.GroupRepository, userRepo repository.UserRepository) Service {
	return &service{
		repo:      repo,
		groupRepo: groupRepo,
		userRepo:  userRepo,
	}
}

func (s *service) Send(ctx context.Context, senderID uuid.UUID, req *model.SendMessageRequest) (*model.Message, error) {
	now := time.Now()
	m := &model.Message{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		SenderID:   senderID,
		ReceiverID: req.ReceiverID,
		GroupID:    req.GroupID,
		Content:    req.Content,
		SentAt:     now,
	}
	if err := m.Validate(); err != nil {
		return nil, apperrors.BadRequest("invalid message", err)
	}

	var ev *model.DeliveryEvent
	if m.IsGroup() {
		// Roster read at send time, never from a connect-time cache.
		members, err := s.groupRepo.GetMembers(ctx, *m.GroupID)
		if err != nil {
			return nil, apperrors.NotFound("group", err)
		}
		if !contains(members, senderID) {
			return nil, apperrors.Forbidden("sender is not a group member", nil)
		}
		ev = buildEvent(m, model.EventMessageGroup, model.GroupConversationKey(*m.GroupID), members)
	} else {
		if _, err := s.userRepo.Get(ctx, *m.ReceiverID); err != nil {
			return nil, apperrors.NotFound("receiver", err)
		}
		// Recipient-side unread scope is keyed by the sender.
		ev = buildEvent(m, model.EventMessageDirect, model.UserConversationKey(senderID), []uuid.UUID{*m.ReceiverID})
	}

	outbox, err := model.NewOutboxEvent(ev)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if err := s.repo.Create(ctx, m, outbox); err != nil {
		return nil, apperrors.Retriable("failed to persist message", err)
	}
	return m, nil
}

func (s *service) ListConversation(ctx context.Context, userID uuid.UUID, conversationKey string) ([]*model.Message, error) {
	kind, id, err := model.ParseConversationKey(conversationKey)
	if err != nil {
		return nil, apperrors.BadRequest("invalid conversation key", err)
	}

	switch kind {
	case "user":
		msgs, err := s.repo.ListDirect(ctx, userID, id)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		return msgs, nil
	case "group":
		members, err := s.groupRepo.GetMembers(ctx, id)
		if err != nil {
			return nil, apperrors.NotFound("group", err)
		}
		if !contains(members, userID) {
			return nil, apperrors.Forbidden("not a group member", nil)
		}
		msgs, err := s.repo.ListGroup(ctx, id)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		return msgs, nil
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("unsupported conversation kind %q", kind), nil)
	}
}

func (s *service) ListSummaries(ctx context.Context, userID uuid.UUID) ([]*model.ConversationSummary, error) {
	summaries, err := s.repo.ListConversationSummaries(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return summaries, nil
}

func (s *service) MarkConversationRead(ctx context.Context, userID uuid.UUID, conversationKey string) error {
	if _, _, err := model.ParseConversationKey(conversationKey); err != nil {
		return apperrors.BadRequest("invalid conversation key", err)
	}
	if err := s.repo.MarkConversationRead(ctx, userID, conversationKey, time.Now()); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func (s *service) Update(ctx context.Context, messageID, actorID uuid.UUID, req *model.UpdateMessageRequest) (*model.Message, error) {
	m, err := s.repo.Get(ctx, messageID)
	if err != nil {
		return nil, apperrors.NotFound("message", err)
	}
	if m.SenderID != actorID {
		return nil, apperrors.Forbidden("only the sender can edit a message", nil)
	}
	m.Content = req.Content
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, apperrors.Internal(err)
	}
	return m, nil
}

func (s *service) Delete(ctx context.Context, messageID, actorID uuid.UUID) error {
	m, err := s.repo.Get(ctx, messageID)
	if err != nil {
		return apperrors.NotFound("message", err)
	}
	if m.SenderID != actorID {
		return apperrors.Forbidden("only the sender can delete a message", nil)
	}
	if err := s.repo.SoftDelete(ctx, messageID); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func buildEvent(m *model.Message, kind, conversationKey string, recipients []uuid.UUID) *model.DeliveryEvent {
	payload, _ := json.Marshal(model.MessagePayload{
		MessageID: m.ID,
		SenderID:  m.SenderID,
		GroupID:   m.GroupID,
		Content:   m.Content,
	})
	return &model.DeliveryEvent{
		Kind:            kind,
		ConversationKey: conversationKey,
		SenderID:        m.SenderID,
		Recipients:      recipients,
		Payload:         payload,
		SentAt:          m.SentAt,
	}
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
