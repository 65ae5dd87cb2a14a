package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hrm-api/internal/model"
	"github.com/jwalitptl/hrm-api/internal/repository"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) CreateWithStatuses(ctx context.Context, n *model.Notification, recipientIDs []uuid.UUID, outbox *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO notifications (
				id, title, body, author_id, role_filter, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := tx.ExecContext(ctx, query,
			n.ID, n.Title, n.Body, n.AuthorID, n.RoleFilter, n.CreatedAt, n.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}

		if len(recipientIDs) > 0 {
			stmt, err := tx.PreparexContext(ctx, `
				INSERT INTO notification_statuses (notification_id, user_id, read)
				VALUES ($1, $2, false)
			`)
			if err != nil {
				return fmt.Errorf("failed to prepare status insert: %w", err)
			}
			defer stmt.Close()

			for _, userID := range recipientIDs {
				if _, err := stmt.ExecContext(ctx, n.ID, userID); err != nil {
					return fmt.Errorf("failed to insert status for %s: %w", userID, err)
				}
			}
		}

		if outbox != nil {
			if err := insertOutboxTx(ctx, tx, outbox); err != nil {
				return fmt.Errorf("failed to insert outbox event: %w", err)
			}
		}
		return nil
	})
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	query := `
		SELECT id, title, body, author_id, role_filter, created_at, updated_at, deleted_at
		FROM notifications
		WHERE id = $1 AND deleted_at IS NULL
	`
	var n model.Notification
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("notification %s not found", id)
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) (bool, error) {
	// Keeps the original read_at on repeated calls.
	query := `
		UPDATE notification_statuses
		SET read = true, read_at = COALESCE(read_at, NOW())
		WHERE notification_id = $1 AND user_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, notificationID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *notificationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.NotificationWithStatus, error) {
	query := `
		SELECT n.id, n.title, n.body, n.author_id, n.role_filter,
		       n.created_at, n.updated_at, s.read, s.read_at
		FROM notifications n
		JOIN notification_statuses s ON s.notification_id = n.id
		WHERE s.user_id = $1 AND n.deleted_at IS NULL
		ORDER BY n.created_at DESC
	`
	var items []*model.NotificationWithStatus
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, nil
}

func (r *notificationRepository) Update(ctx context.Context, n *model.Notification) error {
	query := `
		UPDATE notifications
		SET title = $1, body = $2, updated_at = NOW()
		WHERE id = $3 AND deleted_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, n.Title, n.Body, n.ID)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("notification %s not found", n.ID)
	}
	return nil
}

func (r *notificationRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notifications
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("notification %s not found", id)
	}
	return nil
}
