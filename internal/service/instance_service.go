package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sirh-sync/internal/dto"
	"github.com/noah-isme/sirh-sync/internal/models"
	"github.com/noah-isme/sirh-sync/pkg/database"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
)

type instanceStore interface {
	Create(ctx context.Context, inst *models.EnrolmentInstance) error
	FindByID(ctx context.Context, id string) (*models.EnrolmentInstance, error)
	FindByKey(ctx context.Context, key models.InstanceKey) (*models.EnrolmentInstance, error)
	ListAll(ctx context.Context) ([]models.EnrolmentInstance, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrolmentInstance, error)
	UpdateGroup(ctx context.Context, id string, groupID *string) error
	UpdateSyncMetadata(ctx context.Context, id string, syncedAt time.Time, actorID *string) error
	UpdateSessionMetadata(ctx context.Context, inst *models.EnrolmentInstance) error
	UpdateStatus(ctx context.Context, id string, status models.InstanceStatus) error
	Delete(ctx context.Context, id string) error
}

type groupStore interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
	FindByName(ctx context.Context, courseID, name string) (*models.Group, error)
	Create(ctx context.Context, group *models.Group) error
}

type instanceUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type instanceRosterReader interface {
	ListRosterUsers(ctx context.Context, instanceID string) ([]models.User, error)
}

type rosterReconciler interface {
	SynchronizeUsers(ctx context.Context, instance models.EnrolmentInstance, roster []models.RosterUser) (*models.ReconcileResult, error)
	EnrolAccount(ctx context.Context, instance models.EnrolmentInstance, account *models.User) error
}

// InstanceService manages enrolment instances and their group linkage.
type InstanceService struct {
	instances  instanceStore
	groups     groupStore
	users      instanceUserReader
	roster     instanceRosterReader
	reconciler rosterReconciler
	capability Capability
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewInstanceService constructs an InstanceService.
func NewInstanceService(instances instanceStore, groups groupStore, users instanceUserReader, roster instanceRosterReader, reconciler rosterReconciler, capability Capability, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *InstanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstanceService{
		instances:  instances,
		groups:     groups,
		users:      users,
		roster:     roster,
		reconciler: reconciler,
		capability: capability,
		cache:      cache,
		validator:  validate,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Authorize checks that actor may operate SIRH enrolment on courseID.
func (s *InstanceService) Authorize(ctx context.Context, actor models.Actor, courseID string) error {
	return requireCapability(ctx, s.capability, actor, courseID)
}

// CreateInstance binds a course to an external session and returns the new instance id.
func (s *InstanceService) CreateInstance(ctx context.Context, req dto.CreateInstanceRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.WrapAs(appErrors.ErrMissingKey, err, "course, registry, training and session identifiers are required")
	}
	inst := &models.EnrolmentInstance{
		CourseID:           req.CourseID,
		RegistryID:         req.RegistryID,
		TrainingExternalID: req.TrainingExternalID,
		SessionExternalID:  req.SessionExternalID,
		Status:             models.InstanceStatusEnabled,
	}
	if err := s.instances.Create(ctx, inst); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return "", appErrors.Clone(appErrors.ErrConflict, "course is already bound to this SIRH session")
		}
		return "", appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to create instance")
	}
	s.invalidateSessions(ctx, inst.CourseID)
	s.logger.Info("sirh instance created",
		zap.String("instance_id", inst.ID),
		zap.String("course_id", inst.CourseID),
		zap.String("session", inst.Key().SessionKey()),
	)
	return inst.ID, nil
}

// FindOrCreate returns the instance bound to key, creating it when missing.
func (s *InstanceService) FindOrCreate(ctx context.Context, key models.InstanceKey) (*models.EnrolmentInstance, bool, error) {
	inst, err := s.instances.FindByKey(ctx, key)
	if err == nil {
		return inst, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load instance")
	}
	id, err := s.CreateInstance(ctx, dto.CreateInstanceRequest{
		CourseID:           key.CourseID,
		RegistryID:         key.RegistryID,
		TrainingExternalID: key.TrainingExternalID,
		SessionExternalID:  key.SessionExternalID,
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrConflict) {
			inst, findErr := s.instances.FindByKey(ctx, key)
			if findErr != nil {
				return nil, false, appErrors.WrapAs(appErrors.ErrPersistence, findErr, "failed to load instance")
			}
			return inst, false, nil
		}
		return nil, false, err
	}
	inst, err = s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return inst, true, nil
}

// Get returns an instance by id.
func (s *InstanceService) Get(ctx context.Context, id string) (*models.EnrolmentInstance, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrMissingKey, "instance id is required")
	}
	inst, err := s.instances.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instance not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load instance")
	}
	return inst, nil
}

// ListByCourse returns the instances of a course.
func (s *InstanceService) ListByCourse(ctx context.Context, courseID string) ([]models.EnrolmentInstance, error) {
	if courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrMissingKey, "course id is required")
	}
	instances, err := s.instances.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to list instances")
	}
	return instances, nil
}

// ListAll returns every instance.
func (s *InstanceService) ListAll(ctx context.Context) ([]models.EnrolmentInstance, error) {
	instances, err := s.instances.ListAll(ctx)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to list instances")
	}
	return instances, nil
}

// EnrolUser enrols an existing account in courseID through instanceID.
func (s *InstanceService) EnrolUser(ctx context.Context, courseID, instanceID, userID string) error {
	if courseID == "" || instanceID == "" || userID == "" {
		return appErrors.Clone(appErrors.ErrMissingKey, "course, instance and user identifiers are required")
	}
	inst, err := s.Get(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.CourseID != courseID {
		return appErrors.Clone(appErrors.ErrNotFound, "instance not found in course")
	}
	account, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load user")
	}
	return s.reconciler.EnrolAccount(ctx, *inst, account)
}

// GetInstanceUsers returns the users the latest roster of the instance lists, keyed by id.
func (s *InstanceService) GetInstanceUsers(ctx context.Context, instanceID string) (map[string]models.User, error) {
	if instanceID == "" {
		return nil, appErrors.Clone(appErrors.ErrMissingKey, "instance id is required")
	}
	users, err := s.roster.ListRosterUsers(ctx, instanceID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load instance users")
	}
	byID := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

// SetGroupSirh links the instance to groupID and updates inst.GroupID on success. It
// returns false when the group does not belong to the instance's course. An empty
// groupID unlinks the group.
func (s *InstanceService) SetGroupSirh(ctx context.Context, inst *models.EnrolmentInstance, groupID string) (bool, error) {
	if inst == nil || inst.ID == "" {
		return false, appErrors.Clone(appErrors.ErrMissingKey, "instance id is required")
	}
	var target *string
	if groupID != "" {
		group, err := s.groups.FindByID(ctx, groupID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}
			return false, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load group")
		}
		if group.CourseID != inst.CourseID {
			return false, nil
		}
		target = &group.ID
	}
	if err := s.instances.UpdateGroup(ctx, inst.ID, target); err != nil {
		return false, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to link group")
	}
	inst.GroupID = copyID(target)
	return true, nil
}

// EnsureDefaultGroup links the instance to its deterministically named group, creating
// the group when needed.
func (s *InstanceService) EnsureDefaultGroup(ctx context.Context, inst *models.EnrolmentInstance) (*models.Group, error) {
	if inst.GroupID != nil {
		group, err := s.groups.FindByID(ctx, *inst.GroupID)
		if err == nil && group.CourseID == inst.CourseID {
			return group, nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load group")
		}
	}

	name := models.DefaultGroupName(inst.RegistryID, inst.TrainingExternalID, inst.SessionExternalID)
	group, err := s.groups.FindByName(ctx, inst.CourseID, name)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load group")
		}
		group = &models.Group{CourseID: inst.CourseID, Name: name}
		if err := s.groups.Create(ctx, group); err != nil {
			if !errors.Is(err, database.ErrDuplicate) {
				return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to create group")
			}
			if group, err = s.groups.FindByName(ctx, inst.CourseID, name); err != nil {
				return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load group")
			}
		}
	}
	if err := s.instances.UpdateGroup(ctx, inst.ID, &group.ID); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to link group")
	}
	inst.GroupID = copyID(&group.ID)
	return group, nil
}

// SynchronizeUsers reconciles the instance membership with users.
func (s *InstanceService) SynchronizeUsers(ctx context.Context, inst models.EnrolmentInstance, users []models.RosterUser) (*models.ReconcileResult, error) {
	return s.reconciler.SynchronizeUsers(ctx, inst, users)
}

// UpdateSyncMetadata records a successful roster pull. The timestamp always advances; the
// instance's LastSyncActorID is only persisted when actorChanged is true.
func (s *InstanceService) UpdateSyncMetadata(ctx context.Context, inst *models.EnrolmentInstance, actorChanged bool) error {
	syncedAt := s.now()
	var actor *string
	if actorChanged {
		actor = inst.LastSyncActorID
	}
	if err := s.instances.UpdateSyncMetadata(ctx, inst.ID, syncedAt, actor); err != nil {
		return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to update sync metadata")
	}
	inst.LastSyncAt = &syncedAt
	return nil
}

// UpdateSessionMetadata copies registry display data onto the instance.
func (s *InstanceService) UpdateSessionMetadata(ctx context.Context, inst *models.EnrolmentInstance, session *models.RosterSession) error {
	if session == nil {
		return nil
	}
	if session.TrainingName != "" {
		inst.TrainingName = session.TrainingName
	}
	if session.SessionName != "" {
		inst.SessionName = session.SessionName
	}
	inst.SessionStart = session.StartDate
	inst.SessionEnd = session.EndDate
	if err := s.instances.UpdateSessionMetadata(ctx, inst); err != nil {
		return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to update session metadata")
	}
	return nil
}

// SetEnabled enables or disables periodic synchronization of an instance.
func (s *InstanceService) SetEnabled(ctx context.Context, id string, enabled bool) (*models.EnrolmentInstance, error) {
	inst, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	status := models.InstanceStatusDisabled
	if enabled {
		status = models.InstanceStatusEnabled
	}
	if err := s.instances.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to update instance status")
	}
	inst.Status = status
	return inst, nil
}

// DeleteInstance removes an instance. Group membership and course roles are left intact.
func (s *InstanceService) DeleteInstance(ctx context.Context, id string) error {
	inst, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.instances.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "instance not found")
		}
		return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to delete instance")
	}
	s.invalidateSessions(ctx, inst.CourseID)
	s.logger.Info("sirh instance deleted", zap.String("instance_id", id), zap.String("course_id", inst.CourseID))
	return nil
}

func (s *InstanceService) invalidateSessions(ctx context.Context, courseID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, sessionCachePattern(courseID))
}
