package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sirh-sync/internal/models"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
)

const (
	defaultSessionPageSize = 20
	maxSessionPageSize     = 100
)

type sessionRegistry interface {
	ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.RosterSession, error)
	CountSessions(ctx context.Context, filter models.SessionFilter) (int, error)
}

type courseInstanceLister interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrolmentInstance, error)
}

// SessionConfig tunes the session browser.
type SessionConfig struct {
	DefaultRegistries []string
	PageSize          int
	CacheTTL          time.Duration
}

// SessionService lists registry sessions for a course, flagging the ones already bound.
type SessionService struct {
	registry   sessionRegistry
	instances  courseInstanceLister
	capability Capability
	cache      *CacheService
	cfg        SessionConfig
	logger     *zap.Logger
}

// NewSessionService constructs a SessionService.
func NewSessionService(registry sessionRegistry, instances courseInstanceLister, capability Capability, cache *CacheService, cfg SessionConfig, logger *zap.Logger) *SessionService {
	if cfg.PageSize <= 0 || cfg.PageSize > maxSessionPageSize {
		cfg.PageSize = defaultSessionPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{registry: registry, instances: instances, capability: capability, cache: cache, cfg: cfg, logger: logger}
}

// List returns one page of sessions matching filter. Registry failures are returned to
// the caller, including count failures.
func (s *SessionService) List(ctx context.Context, actor models.Actor, courseID string, filter models.SessionFilter) (*models.SessionPage, error) {
	if courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrMissingKey, "course id is required")
	}
	if err := requireCapability(ctx, s.capability, actor, courseID); err != nil {
		return nil, err
	}
	if len(filter.RegistryCodes) == 0 {
		filter.RegistryCodes = s.cfg.DefaultRegistries
	}
	if len(filter.RegistryCodes) == 0 {
		return nil, appErrors.ErrMissingFilter
	}
	if filter.PageSize <= 0 || filter.PageSize > maxSessionPageSize {
		filter.PageSize = s.cfg.PageSize
	}
	if filter.PageNumber <= 0 {
		filter.PageNumber = 1
	}

	instances, err := s.instances.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to list instances")
	}
	bound := make(map[string]struct{}, len(instances))
	filter.ExcludeInstances = make([]string, 0, len(instances))
	for _, inst := range instances {
		key := inst.Key().SessionKey()
		bound[key] = struct{}{}
		filter.ExcludeInstances = append(filter.ExcludeInstances, key)
	}

	cacheKey := sessionCacheKey(courseID, filter)
	var cached models.SessionPage
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	sessions, err := s.registry.ListSessions(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.registry.CountSessions(ctx, filter)
	if err != nil {
		return nil, err
	}

	for i := range sessions {
		key := models.InstanceKey{
			RegistryID:         sessions[i].RegistryID,
			TrainingExternalID: sessions[i].TrainingExternalID,
			SessionExternalID:  sessions[i].SessionExternalID,
		}.SessionKey()
		_, sessions[i].InstanceExists = bound[key]
	}

	page := &models.SessionPage{
		Sessions: sessions,
		Pagination: models.Pagination{
			Page:       filter.PageNumber,
			PageSize:   filter.PageSize,
			TotalCount: total,
		},
	}
	_ = s.cache.Set(ctx, cacheKey, page, s.cfg.CacheTTL)
	return page, nil
}

func sessionCachePattern(courseID string) string {
	return fmt.Sprintf("sessions:%s:*", courseID)
}

func sessionCacheKey(courseID string, filter models.SessionFilter) string {
	raw, _ := json.Marshal(struct {
		models.SessionFilter
		Bound []string `json:"bound"`
	}{filter, filter.ExcludeInstances})
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("sessions:%s:%s", courseID, hex.EncodeToString(sum[:8]))
}
