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
)

const enrolmentColumns = `id, instance_id, course_id, user_id, group_id, in_roster, status, created_at, updated_at`

// EnrolmentRepository persists enrolments created through enrolment instances.
type EnrolmentRepository struct {
	db *sqlx.DB
}

// NewEnrolmentRepository creates a new EnrolmentRepository.
func NewEnrolmentRepository(db *sqlx.DB) *EnrolmentRepository {
	return &EnrolmentRepository{db: db}
}

// ListByInstance returns every enrolment recorded for an instance.
func (r *EnrolmentRepository) ListByInstance(ctx context.Context, instanceID string) ([]models.SirhEnrolment, error) {
	const query = `SELECT ` + enrolmentColumns + ` FROM sirh_enrolments WHERE instance_id = $1 ORDER BY created_at ASC, user_id ASC`
	var enrolments []models.SirhEnrolment
	if err := r.db.SelectContext(ctx, &enrolments, query, instanceID); err != nil {
		return nil, fmt.Errorf("list sirh enrolments: %w", err)
	}
	return enrolments, nil
}

// FindByInstanceUser returns the enrolment of a user through an instance.
func (r *EnrolmentRepository) FindByInstanceUser(ctx context.Context, instanceID, userID string) (*models.SirhEnrolment, error) {
	const query = `SELECT ` + enrolmentColumns + ` FROM sirh_enrolments WHERE instance_id = $1 AND user_id = $2 LIMIT 1`
	var enrolment models.SirhEnrolment
	if err := r.db.GetContext(ctx, &enrolment, query, instanceID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find sirh enrolment: %w", err)
	}
	return &enrolment, nil
}

// Upsert inserts the enrolment or refreshes the existing (instance, user) row.
func (r *EnrolmentRepository) Upsert(ctx context.Context, enrolment *models.SirhEnrolment) error {
	if enrolment.ID == "" {
		enrolment.ID = uuid.NewString()
	}
	if enrolment.Status == "" {
		enrolment.Status = models.EnrolmentStatusActive
	}
	now := time.Now().UTC()
	if enrolment.CreatedAt.IsZero() {
		enrolment.CreatedAt = now
	}
	enrolment.UpdatedAt = now

	const query = `INSERT INTO sirh_enrolments (` + enrolmentColumns + `) VALUES (:id, :instance_id, :course_id, :user_id, :group_id, :in_roster, :status, :created_at, :updated_at)
ON CONFLICT (instance_id, user_id) DO UPDATE SET group_id = EXCLUDED.group_id, in_roster = EXCLUDED.in_roster, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, enrolment); err != nil {
		return fmt.Errorf("upsert sirh enrolment: %w", err)
	}
	return nil
}

// ListRosterUsers returns the accounts the latest roster of an instance lists.
func (r *EnrolmentRepository) ListRosterUsers(ctx context.Context, instanceID string) ([]models.User, error) {
	const query = `SELECT u.id, u.username, u.email, u.first_name, u.last_name, u.auth_method, u.confirmed, u.suspended, u.password_hash, u.created_at, u.updated_at
FROM sirh_enrolments e JOIN users u ON u.id = e.user_id
WHERE e.instance_id = $1 AND e.in_roster = TRUE
ORDER BY u.last_name, u.first_name, u.email`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, instanceID); err != nil {
		return nil, fmt.Errorf("list sirh roster users: %w", err)
	}
	return users, nil
}
