package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hrm-api/internal/model"
)

// All repository interfaces in one file
type (
	// UserRepository exposes the recipient snapshot reads the delivery core
	// needs. Employee CRUD lives in the HR services.
	UserRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		// GetActiveRecipients returns the ids of all active users, narrowed
		// to a role when roleFilter is non-nil. Snapshot semantics: the set
		// is whatever is active at the moment of the read.
		GetActiveRecipients(ctx context.Context, roleFilter *string) ([]uuid.UUID, error)
	}

	// NotificationRepository owns notifications, their per-recipient status
	// rows and the outbox events announcing them.
	NotificationRepository interface {
		// CreateWithStatuses persists the notification, one status row per
		// recipient and the outbox event in a single transaction. Either all
		// rows exist afterwards or none do.
		CreateWithStatuses(ctx context.Context, n *model.Notification, recipientIDs []uuid.UUID, outbox *model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
		// MarkRead flags the recipient's status row. Returns false when no
		// status row exists, i.e. the user was never a recipient. Calling it
		// again for an already-read row succeeds and keeps the original
		// read timestamp.
		MarkRead(ctx context.Context, notificationID, userID uuid.UUID) (bool, error)
		// ListForUser returns the catch-up baseline: every non-deleted
		// notification the user holds a status row for.
		ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.NotificationWithStatus, error)
		Update(ctx context.Context, n *model.Notification) error
		SoftDelete(ctx context.Context, id uuid.UUID) error
	}

	// MessageRepository owns chat messages and per-user conversation read
	// cursors.
	MessageRepository interface {
		// Create persists the message and its outbox event atomically.
		Create(ctx context.Context, m *model.Message, outbox *model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.Message, error)
		// ListDirect returns the direct conversation between two users,
		// oldest first.
		ListDirect(ctx context.Context, userID, peerID uuid.UUID) ([]*model.Message, error)
		// ListGroup returns a group conversation, oldest first.
		ListGroup(ctx context.Context, groupID uuid.UUID) ([]*model.Message, error)
		Update(ctx context.Context, m *model.Message) error
		SoftDelete(ctx context.Context, id uuid.UUID) error
		// MarkConversationRead advances the caller's read cursor for a
		// conversation key.
		MarkConversationRead(ctx context.Context, userID uuid.UUID, conversationKey string, readAt time.Time) error
		// ListConversationSummaries returns one row per conversation the
		// user participates in, with the server-computed unread flag.
		ListConversationSummaries(ctx context.Context, userID uuid.UUID) ([]*model.ConversationSummary, error)
	}

	// GroupRepository reads group conversation rosters. Membership writes
	// are authorized external operations.
	GroupRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.GroupConversation, error)
		// GetMembers returns the current roster. Read at message-send time,
		// never cached at connect time.
		GetMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
		ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.GroupConversation, error)
	}

	// OutboxRepository drains pending delivery events for publication.
	OutboxRepository interface {
		GetPendingWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
