package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sirh-sync/internal/models"
)

// CourseRoleRepository stores the role each user holds in a course.
type CourseRoleRepository struct {
	db *sqlx.DB
}

// NewCourseRoleRepository creates a new CourseRoleRepository.
func NewCourseRoleRepository(db *sqlx.DB) *CourseRoleRepository {
	return &CourseRoleRepository{db: db}
}

// GetRole returns the role of a user in a course, or an empty role when none is assigned.
func (r *CourseRoleRepository) GetRole(ctx context.Context, courseID, userID string) (models.CourseRole, error) {
	const query = `SELECT role FROM course_role_assignments WHERE course_id = $1 AND user_id = $2 LIMIT 1`
	var role models.CourseRole
	if err := r.db.GetContext(ctx, &role, query, courseID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get course role: %w", err)
	}
	return role, nil
}

// SetRole assigns a role to a user in a course, replacing any previous role.
func (r *CourseRoleRepository) SetRole(ctx context.Context, courseID, userID string, role models.CourseRole) error {
	const query = `INSERT INTO course_role_assignments (course_id, user_id, role) VALUES ($1, $2, $3) ON CONFLICT (course_id, user_id) DO UPDATE SET role = EXCLUDED.role`
	if _, err := r.db.ExecContext(ctx, query, courseID, userID, role); err != nil {
		return fmt.Errorf("set course role: %w", err)
	}
	return nil
}
