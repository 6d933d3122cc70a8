package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sirh-sync/internal/models"
	"github.com/noah-isme/sirh-sync/pkg/events"
)

type syncInstanceManager interface {
	ListAll(ctx context.Context) ([]models.EnrolmentInstance, error)
	UpdateSessionMetadata(ctx context.Context, inst *models.EnrolmentInstance, session *models.RosterSession) error
	SynchronizeUsers(ctx context.Context, inst models.EnrolmentInstance, users []models.RosterUser) (*models.ReconcileResult, error)
	UpdateSyncMetadata(ctx context.Context, inst *models.EnrolmentInstance, actorChanged bool) error
}

type rosterFetcher interface {
	ListSessionUsers(ctx context.Context, registryID, trainingID, sessionID string, maxUsers int, since *time.Time) (*models.SessionUsers, error)
}

type rosterValidator interface {
	Validate(ctx context.Context, candidates []models.RosterUser, ictx models.InstanceContext, notifier Notifier) (models.ValidationResult, error)
}

type syncNotifier interface {
	SessionDataChanged(ctx context.Context, inst models.EnrolmentInstance)
	RosterChanged(ctx context.Context, inst models.EnrolmentInstance, result models.ReconcileResult, rejected int)
	AccountCreated(ctx context.Context, inst models.EnrolmentInstance, account models.CreatedAccount)
}

// SyncTask pulls every enrolment instance's roster from the registry and converges local
// state. Instances are processed one at a time and persisted as soon as they finish.
type SyncTask struct {
	instances     syncInstanceManager
	registry      rosterFetcher
	validation    rosterValidator
	notifications syncNotifier
	events        events.Publisher
	metrics       *MetricsService
	logger        *zap.Logger
	now           func() time.Time
}

// NewSyncTask constructs a SyncTask.
func NewSyncTask(instances syncInstanceManager, registry rosterFetcher, validation rosterValidator, notifications syncNotifier, publisher events.Publisher, metrics *MetricsService, logger *zap.Logger) *SyncTask {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncTask{
		instances:     instances,
		registry:      registry,
		validation:    validation,
		notifications: notifications,
		events:        publisher,
		metrics:       metrics,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run processes every instance once. A failing instance is reported and the run moves
// on to the next one.
func (t *SyncTask) Run(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{StartedAt: t.now()}
	instances, err := t.instances.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	for i := range instances {
		if err := ctx.Err(); err != nil {
			t.logger.Warn("sync run interrupted", zap.Int("processed", len(report.Instances)), zap.Int("total", len(instances)), zap.Error(err))
			report.FinishedAt = t.now()
			t.metrics.RecordSyncRun(report)
			return report, err
		}
		inst := instances[i]
		line := t.process(ctx, &inst)
		report.Instances = append(report.Instances, line)
		t.publish(ctx, inst, line)
	}

	report.FinishedAt = t.now()
	t.metrics.RecordSyncRun(report)
	t.logger.Info("sync run completed",
		zap.Int("instances", len(report.Instances)),
		zap.Int("no_change", report.Count(models.SyncStateNoChange)),
		zap.Int("data_changed", report.Count(models.SyncStateDataChanged)),
		zap.Int("users_changed", report.Count(models.SyncStateUsersChanged)),
		zap.Int("data_and_users_changed", report.Count(models.SyncStateDataAndUsersChanged)),
		zap.Int("skipped", report.Count(models.SyncStateSkipped)),
		zap.Int("failed", report.Count(models.SyncStateFailed)),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (t *SyncTask) process(ctx context.Context, inst *models.EnrolmentInstance) models.InstanceSyncReport {
	line := models.InstanceSyncReport{InstanceID: inst.ID}
	log := t.logger.With(zap.String("instance_id", inst.ID), zap.String("session", inst.Key().SessionKey()))
	fail := func(state models.SyncState, msg string, err error) models.InstanceSyncReport {
		log.Warn(msg, zap.Error(err))
		line.State = state
		line.Error = err.Error()
		return line
	}

	if !inst.Enabled() {
		line.State = models.SyncStateSkipped
		line.Error = "instance disabled"
		return line
	}

	pulled, err := t.registry.ListSessionUsers(ctx, inst.RegistryID, inst.TrainingExternalID, inst.SessionExternalID, 0, inst.LastSyncAt)
	if err != nil {
		return fail(models.SyncStateSkipped, "registry unavailable, instance skipped", err)
	}

	if pulled.SessionChanged {
		if err := t.instances.UpdateSessionMetadata(ctx, inst, pulled.Session); err != nil {
			return fail(models.SyncStateFailed, "failed to update session metadata", err)
		}
		t.notifications.SessionDataChanged(ctx, *inst)
	}

	if pulled.RosterChanged {
		validation, err := t.validation.Validate(ctx, pulled.Users, models.InstanceContext{
			CourseID:   inst.CourseID,
			InstanceID: inst.ID,
			TargetRole: models.CourseRoleParticipant,
		}, NewLogNotifier(log))
		if err != nil {
			return fail(models.SyncStateFailed, "failed to validate roster", err)
		}
		result, err := t.instances.SynchronizeUsers(ctx, *inst, validation.Accepted)
		if err != nil {
			return fail(models.SyncStateFailed, "failed to reconcile roster", err)
		}
		for _, account := range result.Created {
			t.notifications.AccountCreated(ctx, *inst, account)
		}
		t.notifications.RosterChanged(ctx, *inst, *result, len(pulled.Users)-len(validation.Accepted))
		line.Reconcile = result
	}

	if err := t.instances.UpdateSyncMetadata(ctx, inst, false); err != nil {
		return fail(models.SyncStateFailed, "failed to persist sync metadata", err)
	}

	switch {
	case pulled.SessionChanged && pulled.RosterChanged:
		line.State = models.SyncStateDataAndUsersChanged
	case pulled.SessionChanged:
		line.State = models.SyncStateDataChanged
	case pulled.RosterChanged:
		line.State = models.SyncStateUsersChanged
	default:
		line.State = models.SyncStateNoChange
	}
	log.Debug("instance synchronized", zap.String("state", string(line.State)))
	return line
}

func (t *SyncTask) publish(ctx context.Context, inst models.EnrolmentInstance, line models.InstanceSyncReport) {
	event := models.SyncEvent{
		InstanceID: inst.ID,
		CourseID:   inst.CourseID,
		Session:    inst.Key().SessionKey(),
		State:      line.State,
		Reconcile:  line.Reconcile,
		Error:      line.Error,
		At:         t.now(),
	}
	if err := t.events.Publish(ctx, "instance."+strings.ToLower(string(line.State)), event); err != nil {
		t.logger.Warn("failed to publish sync event", zap.String("instance_id", inst.ID), zap.Error(err))
	}
}
