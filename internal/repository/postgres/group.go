package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/hrm-api/internal/model"
	"github.com/jwalitptl/hrm-api/internal/repository"
)

type groupRepository struct {
	BaseRepository
}

func NewGroupRepository(base BaseRepository) repository.GroupRepository {
	return &groupRepository{base}
}

func (r *groupRepository) Get(ctx context.Context, id uuid.UUID) (*model.GroupConversation, error) {
	query := `
		SELECT id, name, created_at, updated_at, deleted_at
		FROM group_conversations
		WHERE id = $1 AND deleted_at IS NULL
	`
	var g model.GroupConversation
	if err := r.db.GetContext(ctx, &g, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("group %s not found", id)
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

func (r *groupRepository) GetMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT gm.user_id
		FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1 AND u.deleted_at IS NULL
	`
	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query, groupID); err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	return ids, nil
}

func (r *groupRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.GroupConversation, error) {
	query := `
		SELECT g.id, g.name, g.created_at, g.updated_at, g.deleted_at
		FROM group_conversations g
		JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = $1 AND g.deleted_at IS NULL
		ORDER BY g.name ASC
	`
	var groups []*model.GroupConversation
	if err := r.db.SelectContext(ctx, &groups, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}
