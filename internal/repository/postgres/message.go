package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hrm-api/internal/model"
	"github.com/jwalitptl/hrm-api/internal/repository"
)

type messageRepository struct {
	BaseRepository
}

func NewMessageRepository(base BaseRepository) repository.MessageRepository {
	return &messageRepository{base}
}

func (r *messageRepository) Create(ctx context.Context, m *model.Message, outbox *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO messages (
				id, sender_id, receiver_id, group_id, content, sent_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		if _, err := tx.ExecContext(ctx, query,
			m.ID, m.SenderID, m.ReceiverID, m.GroupID, m.Content, m.SentAt, m.CreatedAt, m.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		if outbox != nil {
			if err := insertOutboxTx(ctx, tx, outbox); err != nil {
				return fmt.Errorf("failed to insert outbox event: %w", err)
			}
		}
		return nil
	})
}

func (r *messageRepository) Get(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, group_id, content, sent_at,
		       created_at, updated_at, deleted_at
		FROM messages
		WHERE id = $1 AND deleted_at IS NULL
	`
	var m model.Message
	if err := r.db.GetContext(ctx, &m, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("message %s not found", id)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &m, nil
}

func (r *messageRepository) ListDirect(ctx context.Context, userID, peerID uuid.UUID) ([]*model.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, group_id, content, sent_at,
		       created_at, updated_at, deleted_at
		FROM messages
		WHERE deleted_at IS NULL
		  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		ORDER BY sent_at ASC
	`
	var msgs []*model.Message
	if err := r.db.SelectContext(ctx, &msgs, query, userID, peerID); err != nil {
		return nil, fmt.Errorf("failed to list direct messages: %w", err)
	}
	return msgs, nil
}

func (r *messageRepository) ListGroup(ctx context.Context, groupID uuid.UUID) ([]*model.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, group_id, content, sent_at,
		       created_at, updated_at, deleted_at
		FROM messages
		WHERE group_id = $1 AND deleted_at IS NULL
		ORDER BY sent_at ASC
	`
	var msgs []*model.Message
	if err := r.db.SelectContext(ctx, &msgs, query, groupID); err != nil {
		return nil, fmt.Errorf("failed to list group messages: %w", err)
	}
	return msgs, nil
}

func (r *messageRepository) Update(ctx context.Context, m *model.Message) error {
	query := `
		UPDATE messages
		SET content = $1, updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, m.Content, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("message %s not found", m.ID)
	}
	return nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE messages
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("message %s not found", id)
	}
	return nil
}

func (r *messageRepository) MarkConversationRead(ctx context.Context, userID uuid.UUID, conversationKey string, readAt time.Time) error {
	query := `
		INSERT INTO conversation_reads (user_id, conversation_key, last_read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, conversation_key)
		DO UPDATE SET last_read_at = GREATEST(conversation_reads.last_read_at, EXCLUDED.last_read_at)
	`
	if _, err := r.db.ExecContext(ctx, query, userID, conversationKey, readAt); err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return nil
}

func (r *messageRepository) ListConversationSummaries(ctx context.Context, userID uuid.UUID) ([]*model.ConversationSummary, error) {
	// One row per direct peer and per group the user belongs to. A
	// conversation is unread when its newest foreign message postdates the
	// user's read cursor.
	query := `
		WITH convs AS (
			SELECT CASE WHEN m.sender_id = $1
			            THEN 'user:' || m.receiver_id::text
			            ELSE 'user:' || m.sender_id::text
			       END AS conversation_key,
			       MAX(m.sent_at) AS last_message_at,
			       MAX(m.sent_at) FILTER (WHERE m.sender_id <> $1) AS last_foreign_at,
			       (array_agg(m.sender_id ORDER BY m.sent_at DESC))[1] AS last_sender_id
			FROM messages m
			WHERE m.deleted_at IS NULL
			  AND m.group_id IS NULL
			  AND (m.sender_id = $1 OR m.receiver_id = $1)
			GROUP BY 1
			UNION ALL
			SELECT 'group:' || m.group_id::text,
			       MAX(m.sent_at),
			       MAX(m.sent_at) FILTER (WHERE m.sender_id <> $1),
			       (array_agg(m.sender_id ORDER BY m.sent_at DESC))[1]
			FROM messages m
			JOIN group_members gm ON gm.group_id = m.group_id AND gm.user_id = $1
			WHERE m.deleted_at IS NULL
			GROUP BY 1
		)
		SELECT c.conversation_key,
		       c.last_message_at,
		       c.last_sender_id,
		       r.last_read_at,
		       (c.last_foreign_at IS NOT NULL
		        AND (r.last_read_at IS NULL OR c.last_foreign_at > r.last_read_at)) AS unread
		FROM convs c
		LEFT JOIN conversation_reads r
		       ON r.user_id = $1 AND r.conversation_key = c.conversation_key
		ORDER BY c.last_message_at DESC
	`
	var summaries []*model.ConversationSummary
	if err := r.db.SelectContext(ctx, &summaries, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list conversation summaries: %w", err)
	}
	return summaries, nil
}
