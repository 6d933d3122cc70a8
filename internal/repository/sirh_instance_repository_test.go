package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sirh-sync/internal/models"
	"github.com/noah-isme/sirh-sync/pkg/database"
)

var instanceRowColumns = []string{"id", "course_id", "registry_id", "training_external_id", "session_external_id", "status", "group_id", "last_sync_actor_id", "last_sync_at", "training_name", "session_name", "session_start", "session_end", "created_at", "updated_at"}

func TestInstanceCreateDefaultsAndDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstanceRepository(db)

	mock.ExpectExec("INSERT INTO sirh_instances").WillReturnResult(sqlmock.NewResult(1, 1))
	inst := &models.EnrolmentInstance{CourseID: "c1", RegistryID: "AC", TrainingExternalID: "F1", SessionExternalID: "S1"}
	require.NoError(t, repo.Create(context.Background(), inst))
	assert.NotEmpty(t, inst.ID)
	assert.Equal(t, models.InstanceStatusEnabled, inst.Status)

	mock.ExpectExec("INSERT INTO sirh_instances").WillReturnError(&pq.Error{Code: "23505"})
	err := repo.Create(context.Background(), &models.EnrolmentInstance{CourseID: "c1"})
	assert.ErrorIs(t, err, database.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceFindByKey(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstanceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(instanceRowColumns).
		AddRow("i1", "c1", "AC", "F1", "S1", "ENABLED", "g1", nil, now, "Excel", "S1", nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sirh_instances WHERE course_id = $1 AND registry_id = $2")).
		WithArgs("c1", "AC", "F1", "S1").
		WillReturnRows(rows)

	inst, err := repo.FindByKey(context.Background(), models.InstanceKey{CourseID: "c1", RegistryID: "AC", TrainingExternalID: "F1", SessionExternalID: "S1"})
	require.NoError(t, err)
	require.NotNil(t, inst.GroupID)
	assert.Equal(t, "g1", *inst.GroupID)
	assert.Nil(t, inst.LastSyncActorID)
	assert.True(t, inst.Enabled())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstanceRepository(db)

	mock.ExpectQuery("FROM sirh_instances WHERE id = ").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceUpdateSyncMetadataKeepsActorWhenNil(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstanceRepository(db)

	syncedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("last_sync_actor_id = COALESCE($3, last_sync_actor_id)")).
		WithArgs("i1", syncedAt, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateSyncMetadata(context.Background(), "i1", syncedAt, nil))

	mock.ExpectExec("UPDATE sirh_instances SET last_sync_at").WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateSyncMetadata(context.Background(), "gone", syncedAt, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceDeleteRemovesEnrolments(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sirh_enrolments WHERE instance_id").WithArgs("i1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM sirh_instances WHERE id").WithArgs("i1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "i1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceDeleteMissingRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sirh_enrolments").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM sirh_instances").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "i1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
