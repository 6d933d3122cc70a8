package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sirh-sync/internal/models"
	"github.com/noah-isme/sirh-sync/pkg/database"
)

// GroupRepository manages course groups and their members.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// FindByID returns a group by identifier.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*models.Group, error) {
	const query = `SELECT id, course_id, name, created_at FROM course_groups WHERE id = $1 LIMIT 1`
	var group models.Group
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find group: %w", err)
	}
	return &group, nil
}

// FindByName returns the group of a course with the given name.
func (r *GroupRepository) FindByName(ctx context.Context, courseID, name string) (*models.Group, error) {
	const query = `SELECT id, course_id, name, created_at FROM course_groups WHERE course_id = $1 AND name = $2 LIMIT 1`
	var group models.Group
	if err := r.db.GetContext(ctx, &group, query, courseID, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find group by name: %w", err)
	}
	return &group, nil
}

// Create inserts a new group.
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_groups (id, course_id, name, created_at) VALUES (:id, :course_id, :name, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("create group: %w", database.ErrDuplicate)
		}
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// AddMember adds a user to a group. Adding an existing member is a no-op.
func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID string) error {
	const query = `INSERT INTO course_group_members (group_id, user_id, added_at) VALUES ($1, $2, $3) ON CONFLICT (group_id, user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, groupID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a group.
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	const query = `DELETE FROM course_group_members WHERE group_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, groupID, userID); err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	return nil
}

// ListMembers returns the user ids belonging to a group.
func (r *GroupRepository) ListMembers(ctx context.Context, groupID string) ([]string, error) {
	const query = `SELECT user_id FROM course_group_members WHERE group_id = $1 ORDER BY user_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, groupID); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return ids, nil
}
