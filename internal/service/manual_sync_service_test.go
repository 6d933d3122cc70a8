package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sirh-sync/internal/dto"
	"github.com/noah-isme/sirh-sync/internal/models"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
	"github.com/noah-isme/sirh-sync/pkg/jobs"
)

type captureQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *captureQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newManualFixture(instances ...models.EnrolmentInstance) (*syncFixture, *ManualSyncService) {
	f := newSyncFixture(instances...)
	svc := NewManualSyncService(f.instance, f.instances, f.registry, f.validation, f.notifier, f.metrics, nil, nil)
	return f, svc
}

func sessionRequest(sessionID string) dto.SyncSessionRequest {
	return dto.SyncSessionRequest{CourseID: "course-1", RegistryID: "AC", TrainingExternalID: "T1", SessionExternalID: sessionID}
}

func TestSyncSessionCreatesInstanceAndEnrols(t *testing.T) {
	f, svc := newManualFixture()
	f.registry.users["AC/T1/S2"] = &models.SessionUsers{
		Users: []models.RosterUser{
			models.NewRosterUser("alice@mail.fr", "Alice", "Doe"),
			models.NewRosterUser("bad;@mail.fr", "Bad", "Row"),
		},
		Session: &models.RosterSession{TrainingName: "Onboarding", SessionName: "Autumn"},
	}
	actor := models.Actor{UserID: "admin-1"}

	result, err := svc.SyncSession(context.Background(), actor, sessionRequest("S2"))
	require.NoError(t, err)

	assert.Len(t, result.Validation.Accepted, 1)
	require.Len(t, result.Validation.Errors, 1)
	assert.Equal(t, models.MessageErrorSpecialChars, result.Validation.Errors[0].Key)
	assert.Equal(t, 1, result.Reconcile.Enrolled)
	assert.Equal(t, "Autumn", result.Instance.SessionName)

	stored := f.instances.get(result.Instance.ID)
	require.NotNil(t, stored.GroupID)
	require.NotNil(t, stored.LastSyncAt)
	assert.Equal(t, "admin-1", *stored.LastSyncActorID)
	group, err := f.groups.FindByID(context.Background(), *stored.GroupID)
	require.NoError(t, err)
	assert.Equal(t, "SIRH - AC - T1 - S2", group.Name)
	assert.Len(t, f.groups.memberIDs(group.ID), 1)

	emails := f.mailer.emails()
	require.Len(t, emails, 1)
	assert.Equal(t, "alice@mail.fr", emails[0].To)
}

func TestSyncSessionRequiresCapability(t *testing.T) {
	f, svc := newManualFixture()
	f.instance.capability = fakeCapability{allowed: false}

	_, err := svc.SyncSession(context.Background(), models.Actor{UserID: "u1"}, sessionRequest("S2"))
	assert.True(t, errors.Is(err, appErrors.ErrPermissionDenied))
	assert.Zero(t, f.registry.calls)
}

func TestSyncSessionValidatesRequest(t *testing.T) {
	_, svc := newManualFixture()

	_, err := svc.SyncSession(context.Background(), models.Actor{UserID: "admin-1"}, sessionRequest(""))
	assert.True(t, errors.Is(err, appErrors.ErrMissingKey))
}

func TestSyncInstanceRejectsDisabledInstance(t *testing.T) {
	inst := syncedInstance()
	inst.Status = models.InstanceStatusDisabled
	_, svc := newManualFixture(inst)

	_, err := svc.SyncInstance(context.Background(), models.Actor{UserID: "admin-1"}, "inst-1")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestSyncInstanceSurfacesRegistryFailure(t *testing.T) {
	f, svc := newManualFixture(syncedInstance())
	f.registry.err = appErrors.WrapAs(appErrors.ErrRegistryUnavailable, errors.New("503"), "")

	_, err := svc.SyncInstance(context.Background(), models.Actor{UserID: "admin-2"}, "inst-1")
	assert.True(t, errors.Is(err, appErrors.ErrRegistryUnavailable))
	stored := f.instances.get("inst-1")
	assert.Nil(t, stored.LastSyncAt)
	assert.Equal(t, "admin-1", *stored.LastSyncActorID)
}

func TestPreviewDoesNotWrite(t *testing.T) {
	f, svc := newManualFixture()
	f.registry.users["AC/T1/S2"] = &models.SessionUsers{Users: []models.RosterUser{
		models.NewRosterUser("alice@mail.fr", "Alice", "Doe"),
		models.NewRosterUser("broken", "No", "Email"),
	}}

	result, err := svc.Preview(context.Background(), models.Actor{UserID: "admin-1"}, sessionRequest("S2"))
	require.NoError(t, err)
	assert.Len(t, result.Preview, 2)
	assert.Len(t, result.Accepted, 1)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.MessageErrorEmailNotValid, result.Errors[0].Key)

	instances, _ := f.instances.ListAll(context.Background())
	assert.Empty(t, instances)
	assert.Empty(t, f.accounts.created)
}

func TestEnqueueAndHandleJob(t *testing.T) {
	f, svc := newManualFixture(syncedInstance())
	f.registry.users["AC/T1/S1"] = &models.SessionUsers{Users: []models.RosterUser{models.NewRosterUser("alice@mail.fr", "Alice", "Doe")}}
	queue := &captureQueue{}
	svc.SetQueue(queue)
	ctx := context.Background()

	queued, err := svc.Enqueue(ctx, models.Actor{UserID: "admin-2"}, "inst-1")
	require.NoError(t, err)
	require.Len(t, queue.jobs, 1)
	job := queue.jobs[0]
	assert.Equal(t, queued.JobID, job.ID)
	assert.Equal(t, JobTypeManualSync, job.Type)
	assert.Equal(t, "inst-1", job.Subject)
	assert.Equal(t, "admin-2", job.ActorID)

	require.NoError(t, svc.HandleJob(ctx, job))
	stored := f.instances.get("inst-1")
	assert.Equal(t, "admin-2", *stored.LastSyncActorID)
	assert.Len(t, f.groups.memberIDs("g1"), 1)

	err = svc.HandleJob(ctx, jobs.Job{Type: "other"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestEnqueueFailures(t *testing.T) {
	_, svc := newManualFixture(syncedInstance())
	ctx := context.Background()
	actor := models.Actor{UserID: "admin-1"}

	_, err := svc.Enqueue(ctx, actor, "inst-1")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))

	svc.SetQueue(&captureQueue{err: errors.New("queue full")})
	_, err = svc.Enqueue(ctx, actor, "inst-1")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestRetryableJobError(t *testing.T) {
	assert.True(t, RetryableJobError(appErrors.WrapAs(appErrors.ErrRegistryUnavailable, errors.New("x"), "")))
	assert.True(t, RetryableJobError(appErrors.Clone(appErrors.ErrPersistence, "db")))
	assert.False(t, RetryableJobError(appErrors.ErrPermissionDenied))
	assert.False(t, RetryableJobError(errors.New("plain")))
}
