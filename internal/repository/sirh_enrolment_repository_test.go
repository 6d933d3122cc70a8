package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sirh-sync/internal/models"
)

func TestEnrolmentUpsertDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrolmentRepository(db)

	mock.ExpectExec("ON CONFLICT \\(instance_id, user_id\\) DO UPDATE").
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrolment := &models.SirhEnrolment{InstanceID: "i1", CourseID: "c1", UserID: "u1", InRoster: true}
	require.NoError(t, repo.Upsert(context.Background(), enrolment))
	assert.NotEmpty(t, enrolment.ID)
	assert.Equal(t, models.EnrolmentStatusActive, enrolment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByInstance(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrolmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "instance_id", "course_id", "user_id", "group_id", "in_roster", "status", "created_at", "updated_at"}).
		AddRow("e1", "i1", "c1", "u1", "g1", true, "ACTIVE", now, now).
		AddRow("e2", "i1", "c1", "u2", nil, false, "ACTIVE", now, now)
	mock.ExpectQuery("FROM sirh_enrolments WHERE instance_id").WithArgs("i1").WillReturnRows(rows)

	enrolments, err := repo.ListByInstance(context.Background(), "i1")
	require.NoError(t, err)
	require.Len(t, enrolments, 2)
	assert.Equal(t, "g1", *enrolments[0].GroupID)
	assert.Nil(t, enrolments[1].GroupID)
	assert.False(t, enrolments[1].InRoster)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRosterUsersOnlyInRoster(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrolmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("u1", "a@mail.fr", "a@mail.fr", "A", "A", "manual", true, false, "", now, now)
	mock.ExpectQuery("WHERE e.instance_id = \\$1 AND e.in_roster = TRUE").WithArgs("i1").WillReturnRows(rows)

	users, err := repo.ListRosterUsers(context.Background(), "i1")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "a@mail.fr", users[0].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}
