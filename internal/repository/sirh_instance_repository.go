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

const instanceColumns = `id, course_id, registry_id, training_external_id, session_external_id, status, group_id, last_sync_actor_id, last_sync_at, training_name, session_name, session_start, session_end, created_at, updated_at`

// InstanceRepository persists enrolment instances.
type InstanceRepository struct {
	db *sqlx.DB
}

// NewInstanceRepository creates a new InstanceRepository.
func NewInstanceRepository(db *sqlx.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// Create inserts a new instance. A duplicate (course, registry, training, session)
// tuple yields database.ErrDuplicate.
func (r *InstanceRepository) Create(ctx context.Context, inst *models.EnrolmentInstance) error {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if inst.Status == "" {
		inst.Status = models.InstanceStatusEnabled
	}
	now := time.Now().UTC()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now

	const query = `INSERT INTO sirh_instances (` + instanceColumns + `) VALUES (:id, :course_id, :registry_id, :training_external_id, :session_external_id, :status, :group_id, :last_sync_actor_id, :last_sync_at, :training_name, :session_name, :session_start, :session_end, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, inst); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("create sirh instance: %w", database.ErrDuplicate)
		}
		return fmt.Errorf("create sirh instance: %w", err)
	}
	return nil
}

// FindByID returns an instance by identifier.
func (r *InstanceRepository) FindByID(ctx context.Context, id string) (*models.EnrolmentInstance, error) {
	const query = `SELECT ` + instanceColumns + ` FROM sirh_instances WHERE id = $1 LIMIT 1`
	var inst models.EnrolmentInstance
	if err := r.db.GetContext(ctx, &inst, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find sirh instance: %w", err)
	}
	return &inst, nil
}

// FindByKey returns the instance bound to the given course and external session.
func (r *InstanceRepository) FindByKey(ctx context.Context, key models.InstanceKey) (*models.EnrolmentInstance, error) {
	const query = `SELECT ` + instanceColumns + ` FROM sirh_instances WHERE course_id = $1 AND registry_id = $2 AND training_external_id = $3 AND session_external_id = $4 LIMIT 1`
	var inst models.EnrolmentInstance
	if err := r.db.GetContext(ctx, &inst, query, key.CourseID, key.RegistryID, key.TrainingExternalID, key.SessionExternalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find sirh instance by key: %w", err)
	}
	return &inst, nil
}

// ListAll returns every instance ordered by creation.
func (r *InstanceRepository) ListAll(ctx context.Context) ([]models.EnrolmentInstance, error) {
	const query = `SELECT ` + instanceColumns + ` FROM sirh_instances ORDER BY created_at ASC, id ASC`
	var instances []models.EnrolmentInstance
	if err := r.db.SelectContext(ctx, &instances, query); err != nil {
		return nil, fmt.Errorf("list sirh instances: %w", err)
	}
	return instances, nil
}

// ListByCourse returns the instances bound to a course.
func (r *InstanceRepository) ListByCourse(ctx context.Context, courseID string) ([]models.EnrolmentInstance, error) {
	const query = `SELECT ` + instanceColumns + ` FROM sirh_instances WHERE course_id = $1 ORDER BY created_at ASC, id ASC`
	var instances []models.EnrolmentInstance
	if err := r.db.SelectContext(ctx, &instances, query, courseID); err != nil {
		return nil, fmt.Errorf("list sirh instances by course: %w", err)
	}
	return instances, nil
}

// UpdateGroup links the instance to a group, or unlinks it when groupID is nil.
func (r *InstanceRepository) UpdateGroup(ctx context.Context, id string, groupID *string) error {
	const query = `UPDATE sirh_instances SET group_id = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, "update sirh instance group", query, id, groupID, time.Now().UTC())
}

// UpdateSyncMetadata stores the sync timestamp. The actor is only overwritten when non-nil.
func (r *InstanceRepository) UpdateSyncMetadata(ctx context.Context, id string, syncedAt time.Time, actorID *string) error {
	const query = `UPDATE sirh_instances SET last_sync_at = $2, last_sync_actor_id = COALESCE($3, last_sync_actor_id), updated_at = $4 WHERE id = $1`
	return r.execOne(ctx, "update sirh sync metadata", query, id, syncedAt, actorID, time.Now().UTC())
}

// UpdateSessionMetadata stores the training/session display data.
func (r *InstanceRepository) UpdateSessionMetadata(ctx context.Context, inst *models.EnrolmentInstance) error {
	inst.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sirh_instances SET training_name = :training_name, session_name = :session_name, session_start = :session_start, session_end = :session_end, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, inst)
	if err != nil {
		return fmt.Errorf("update sirh session metadata: %w", err)
	}
	return requireAffected(res, "update sirh session metadata")
}

// UpdateStatus enables or disables an instance.
func (r *InstanceRepository) UpdateStatus(ctx context.Context, id string, status models.InstanceStatus) error {
	const query = `UPDATE sirh_instances SET status = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, "update sirh instance status", query, id, status, time.Now().UTC())
}

// Delete removes an instance together with the enrolments recorded through it.
func (r *InstanceRepository) Delete(ctx context.Context, id string) error {
	return database.WithTx(r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sirh_enrolments WHERE instance_id = $1`, id); err != nil {
			return fmt.Errorf("delete sirh enrolments: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sirh_instances WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete sirh instance: %w", err)
		}
		return requireAffected(res, "delete sirh instance")
	})
}

func (r *InstanceRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireAffected(res, op)
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
