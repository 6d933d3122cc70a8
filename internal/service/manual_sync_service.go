package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sirh-sync/internal/dto"
	"github.com/noah-isme/sirh-sync/internal/models"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
	"github.com/noah-isme/sirh-sync/pkg/jobs"
)

// JobTypeManualSync identifies queued interactive synchronizations.
const JobTypeManualSync = "sirh.manual_sync"

type manualInstanceManager interface {
	Authorize(ctx context.Context, actor models.Actor, courseID string) error
	FindOrCreate(ctx context.Context, key models.InstanceKey) (*models.EnrolmentInstance, bool, error)
	Get(ctx context.Context, id string) (*models.EnrolmentInstance, error)
	EnsureDefaultGroup(ctx context.Context, inst *models.EnrolmentInstance) (*models.Group, error)
	UpdateSessionMetadata(ctx context.Context, inst *models.EnrolmentInstance, session *models.RosterSession) error
	SynchronizeUsers(ctx context.Context, inst models.EnrolmentInstance, users []models.RosterUser) (*models.ReconcileResult, error)
	UpdateSyncMetadata(ctx context.Context, inst *models.EnrolmentInstance, actorChanged bool) error
}

type accountNotifier interface {
	AccountCreated(ctx context.Context, inst models.EnrolmentInstance, account models.CreatedAccount)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

type lookupInstance interface {
	FindByKey(ctx context.Context, key models.InstanceKey) (*models.EnrolmentInstance, error)
}

// ManualSyncService runs administrator-triggered synchronizations. Unlike the periodic
// task, registry failures are returned to the caller.
type ManualSyncService struct {
	instances     manualInstanceManager
	lookup        lookupInstance
	registry      rosterFetcher
	validation    rosterValidator
	notifications accountNotifier
	queue         jobQueue
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewManualSyncService constructs a ManualSyncService. The queue may be set later with
// SetQueue since the queue handler is the service itself.
func NewManualSyncService(instances manualInstanceManager, lookup lookupInstance, registry rosterFetcher, validation rosterValidator, notifications accountNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ManualSyncService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManualSyncService{
		instances:     instances,
		lookup:        lookup,
		registry:      registry,
		validation:    validation,
		notifications: notifications,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
	}
}

// SetQueue attaches the queue used by Enqueue.
func (s *ManualSyncService) SetQueue(queue jobQueue) {
	s.queue = queue
}

// SyncSession synchronizes one external session into a course, creating the instance
// binding when it does not exist yet.
func (s *ManualSyncService) SyncSession(ctx context.Context, actor models.Actor, req dto.SyncSessionRequest) (*models.ManualSyncResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrMissingKey, err, "course, registry, training and session identifiers are required")
	}
	if err := s.instances.Authorize(ctx, actor, req.CourseID); err != nil {
		return nil, err
	}
	inst, created, err := s.instances.FindOrCreate(ctx, models.InstanceKey{
		CourseID:           req.CourseID,
		RegistryID:         req.RegistryID,
		TrainingExternalID: req.TrainingExternalID,
		SessionExternalID:  req.SessionExternalID,
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("sirh instance created by manual sync", zap.String("instance_id", inst.ID), zap.String("actor_id", actor.UserID))
	}
	return s.run(ctx, actor, inst)
}

// SyncInstance synchronizes an existing instance.
func (s *ManualSyncService) SyncInstance(ctx context.Context, actor models.Actor, instanceID string) (*models.ManualSyncResult, error) {
	inst, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if err := s.instances.Authorize(ctx, actor, inst.CourseID); err != nil {
		return nil, err
	}
	return s.run(ctx, actor, inst)
}

// Preview validates the current registry roster of a session without writing anything.
func (s *ManualSyncService) Preview(ctx context.Context, actor models.Actor, req dto.SyncSessionRequest) (*models.ValidationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrMissingKey, err, "course, registry, training and session identifiers are required")
	}
	if err := s.instances.Authorize(ctx, actor, req.CourseID); err != nil {
		return nil, err
	}
	ictx := models.InstanceContext{CourseID: req.CourseID, TargetRole: models.CourseRoleParticipant}
	inst, err := s.lookup.FindByKey(ctx, models.InstanceKey{
		CourseID:           req.CourseID,
		RegistryID:         req.RegistryID,
		TrainingExternalID: req.TrainingExternalID,
		SessionExternalID:  req.SessionExternalID,
	})
	switch {
	case err == nil:
		ictx.InstanceID = inst.ID
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load instance")
	}

	pulled, err := s.registry.ListSessionUsers(ctx, req.RegistryID, req.TrainingExternalID, req.SessionExternalID, 0, nil)
	if err != nil {
		return nil, err
	}
	result, err := s.validation.Validate(ctx, pulled.Users, ictx, NewMessageCollector())
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Enqueue schedules a synchronization of instanceID on the background queue.
func (s *ManualSyncService) Enqueue(ctx context.Context, actor models.Actor, instanceID string) (*dto.QueuedSyncResponse, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "manual sync queue not configured")
	}
	inst, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if err := s.instances.Authorize(ctx, actor, inst.CourseID); err != nil {
		return nil, err
	}
	job := jobs.Job{
		ID:       uuid.NewString(),
		Type:     JobTypeManualSync,
		Subject:  inst.ID,
		ActorID:  actor.UserID,
		Enqueued: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(job); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrConflict, err, "manual sync queue is busy, retry later")
	}
	return &dto.QueuedSyncResponse{JobID: job.ID, InstanceID: inst.ID, QueuedAt: job.Enqueued}, nil
}

// HandleJob runs a queued synchronization. The capability was checked when queuing.
func (s *ManualSyncService) HandleJob(ctx context.Context, job jobs.Job) error {
	if job.Type != JobTypeManualSync {
		return appErrors.Clone(appErrors.ErrValidation, "unexpected job type "+job.Type)
	}
	inst, err := s.instances.Get(ctx, job.Subject)
	if err != nil {
		return err
	}
	result, err := s.run(ctx, models.Actor{UserID: job.ActorID}, inst)
	if err != nil {
		return err
	}
	s.logger.Info("queued manual sync completed",
		zap.String("job_id", job.ID),
		zap.String("instance_id", inst.ID),
		zap.Int("accepted", len(result.Validation.Accepted)),
		zap.Int("rejected", len(result.Validation.Errors)),
	)
	return nil
}

// RetryableJobError reports whether a failed job should be queued again.
func RetryableJobError(err error) bool {
	return errors.Is(err, appErrors.ErrRegistryUnavailable) || errors.Is(err, appErrors.ErrPersistence)
}

func (s *ManualSyncService) run(ctx context.Context, actor models.Actor, inst *models.EnrolmentInstance) (*models.ManualSyncResult, error) {
	if !inst.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "instance is disabled")
	}
	if _, err := s.instances.EnsureDefaultGroup(ctx, inst); err != nil {
		return nil, err
	}

	pulled, err := s.registry.ListSessionUsers(ctx, inst.RegistryID, inst.TrainingExternalID, inst.SessionExternalID, 0, nil)
	if err != nil {
		return nil, err
	}
	if pulled.Session != nil {
		if err := s.instances.UpdateSessionMetadata(ctx, inst, pulled.Session); err != nil {
			return nil, err
		}
	}

	validation, err := s.validation.Validate(ctx, pulled.Users, models.InstanceContext{
		CourseID:   inst.CourseID,
		InstanceID: inst.ID,
		TargetRole: models.CourseRoleParticipant,
	}, NewMessageCollector())
	if err != nil {
		return nil, err
	}

	result, err := s.instances.SynchronizeUsers(ctx, *inst, validation.Accepted)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordReconcile(*result)
	for _, account := range result.Created {
		s.notifications.AccountCreated(ctx, *inst, account)
	}

	if actor.UserID != "" {
		actorID := actor.UserID
		inst.LastSyncActorID = &actorID
	}
	if err := s.instances.UpdateSyncMetadata(ctx, inst, actor.UserID != ""); err != nil {
		return nil, err
	}

	s.logger.Info("manual sync completed",
		zap.String("instance_id", inst.ID),
		zap.String("actor_id", actor.UserID),
		zap.Int("accepted", len(validation.Accepted)),
		zap.Int("errors", len(validation.Errors)),
		zap.Int("warnings", len(validation.Warnings)),
		zap.Int("enrolled", result.Enrolled),
		zap.Int("removed", result.Removed),
	)
	return &models.ManualSyncResult{Instance: *inst, Validation: validation, Reconcile: *result}, nil
}
