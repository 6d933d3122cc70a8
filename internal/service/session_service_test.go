package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sirh-sync/internal/models"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func registrySessions() []models.RosterSession {
	return []models.RosterSession{
		{RegistryID: "AC", TrainingExternalID: "T1", SessionExternalID: "S1", SessionName: "Bound"},
		{RegistryID: "AC", TrainingExternalID: "T1", SessionExternalID: "S2", SessionName: "Free"},
	}
}

func TestSessionListFlagsBoundSessions(t *testing.T) {
	registry := &fakeRegistry{sessions: registrySessions(), total: 42}
	svc := NewSessionService(registry, newFakeInstances(testInstance("")), fakeCapability{allowed: true}, nil, SessionConfig{DefaultRegistries: []string{"AC"}}, nil)

	page, err := svc.List(context.Background(), models.Actor{UserID: "admin"}, "course-1", models.SessionFilter{})
	require.NoError(t, err)

	require.Len(t, page.Sessions, 2)
	assert.True(t, page.Sessions[0].InstanceExists)
	assert.False(t, page.Sessions[1].InstanceExists)
	assert.Equal(t, 42, page.Pagination.TotalCount)
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, defaultSessionPageSize, page.Pagination.PageSize)

	require.Len(t, registry.filters, 1)
	assert.Equal(t, []string{"AC"}, registry.filters[0].RegistryCodes)
	assert.Equal(t, []string{"AC/T1/S1"}, registry.filters[0].ExcludeInstances)
}

func TestSessionListRequiresRegistryCodes(t *testing.T) {
	svc := NewSessionService(&fakeRegistry{}, newFakeInstances(), fakeCapability{allowed: true}, nil, SessionConfig{}, nil)

	_, err := svc.List(context.Background(), models.Actor{UserID: "admin"}, "course-1", models.SessionFilter{})
	assert.True(t, errors.Is(err, appErrors.ErrMissingFilter))

	_, err = svc.List(context.Background(), models.Actor{UserID: "admin"}, "", models.SessionFilter{RegistryCodes: []string{"AC"}})
	assert.True(t, errors.Is(err, appErrors.ErrMissingKey))
}

func TestSessionListChecksCapability(t *testing.T) {
	registry := &fakeRegistry{}
	svc := NewSessionService(registry, newFakeInstances(), fakeCapability{allowed: false}, nil, SessionConfig{DefaultRegistries: []string{"AC"}}, nil)

	_, err := svc.List(context.Background(), models.Actor{UserID: "u1"}, "course-1", models.SessionFilter{})
	assert.True(t, errors.Is(err, appErrors.ErrPermissionDenied))
	assert.Zero(t, registry.calls)
}

func TestSessionListSurfacesRegistryFailures(t *testing.T) {
	unavailable := appErrors.WrapAs(appErrors.ErrRegistryUnavailable, errors.New("timeout"), "")
	svc := NewSessionService(&fakeRegistry{countErr: unavailable}, newFakeInstances(), fakeCapability{allowed: true}, nil, SessionConfig{DefaultRegistries: []string{"AC"}}, nil)

	_, err := svc.List(context.Background(), models.Actor{UserID: "admin"}, "course-1", models.SessionFilter{})
	assert.True(t, errors.Is(err, appErrors.ErrRegistryUnavailable))
}

func TestSessionListUsesCacheUntilInstancesChange(t *testing.T) {
	registry := &fakeRegistry{sessions: registrySessions(), total: 2}
	instances := newFakeInstances()
	cache := NewCacheService(newMemoryCache(), nil, time.Minute, nil, true)
	svc := NewSessionService(registry, instances, fakeCapability{allowed: true}, cache, SessionConfig{DefaultRegistries: []string{"AC"}}, nil)
	ctx := context.Background()
	actor := models.Actor{UserID: "admin"}

	first, err := svc.List(ctx, actor, "course-1", models.SessionFilter{})
	require.NoError(t, err)
	second, err := svc.List(ctx, actor, "course-1", models.SessionFilter{})
	require.NoError(t, err)
	assert.Equal(t, first.Sessions, second.Sessions)
	assert.Equal(t, 1, registry.calls)

	instanceSvc := NewInstanceService(instances, newFakeGroups(), newFakeAccounts(), nil, nil, fakeCapability{allowed: true}, cache, nil, nil)
	_, err = instanceSvc.CreateInstance(ctx, testCreateRequest())
	require.NoError(t, err)

	third, err := svc.List(ctx, actor, "course-1", models.SessionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, registry.calls)
	assert.True(t, third.Sessions[0].InstanceExists)
}

func TestSessionCacheKeyDependsOnFilter(t *testing.T) {
	a := sessionCacheKey("course-1", models.SessionFilter{RegistryCodes: []string{"AC"}, PageNumber: 1})
	b := sessionCacheKey("course-1", models.SessionFilter{RegistryCodes: []string{"AC"}, PageNumber: 2})
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "sessions:course-1:"))
}
