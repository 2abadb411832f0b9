package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/attendance-dashboard-api/pkg/errors"
)

type memoryCacheRepo struct {
	data     map[string][]byte
	getErr   error
	setErr   error
	patterns []string
	ttls     map[string]time.Duration
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCacheRepo) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, 0, nil, false)

	require.NoError(t, svc.Set(context.Background(), "k", 1, 0))
	assert.Empty(t, repo.data)

	var out int
	hit, err := svc.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceRoundTripAndMetrics(t *testing.T) {
	repo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, nil, true)

	var out []string
	hit, err := svc.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(context.Background(), "k", []string{"a"}, 0))
	assert.Equal(t, time.Minute, repo.ttls["k"])

	hit, err = svc.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"a"}, out)
	assert.Equal(t, 0.5, metrics.Snapshot().CacheHitRatio)
}

func TestCacheServiceSurfacesBackendErrors(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, 0, nil, true)

	var out int
	hit, err := svc.Get(context.Background(), "k", &out)
	assert.Error(t, err)
	assert.False(t, hit)
}

func TestCacheServiceInvalidateViewer(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, 0, nil, true)

	require.NoError(t, svc.InvalidateViewer(context.Background(), "u1"))
	assert.Equal(t, []string{"logs:*:u1", "trends:*:u1:*"}, repo.patterns)
	assert.Equal(t, "logs:educator:u1", LogsKey(models.Viewer{UserID: "u1", Role: models.RoleEducator}))
	assert.Equal(t, "trends:student:u1:7d", TrendsKey(models.Viewer{UserID: "u1", Role: models.RoleStudent}, models.TrendRange7d))
}

func TestCacheServiceDropsEducatorEntriesOnProfileUpdate(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(t, "s1", "ada@example.com", "secret1", models.RoleStudent, true)
	auth, _ := newTestAuthService(repo)

	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, 0, nil, true)
	defer auth.OnSessionChange(cache.HandleSessionEvent)()

	profiles := NewProfileService(&mockProfileStore{repo: repo}, auth, nil, nil)
	_, err := profiles.UpdateProfile(context.Background(), "s1", models.UpdateProfileRequest{FirstName: "Augusta", LastName: "King"})
	require.NoError(t, err)

	assert.Equal(t, []string{"logs:*:s1", "trends:*:s1:*", "logs:educator:*", "trends:educator:*"}, cacheRepo.patterns)
}

func TestCacheServiceDropsEntriesOnUserUpdate(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(t, "s1", "ada@example.com", "secret1", models.RoleStudent, true)
	auth, _ := newTestAuthService(repo)

	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, 0, nil, true)
	defer auth.OnSessionChange(cache.HandleSessionEvent)()

	_, err := auth.UpdateUser(context.Background(), "s1", models.UpdateUserRequest{
		Profile: &models.UpdateProfileRequest{FirstName: "Augusta", LastName: "King"},
	})
	require.NoError(t, err)
	assert.Contains(t, cacheRepo.patterns, "logs:educator:*")
	assert.Contains(t, cacheRepo.patterns, "trends:*:s1:*")

	cacheRepo.patterns = nil
	cache.HandleSessionEvent(models.SessionEvent{Type: models.SessionSignedIn, UserID: "s1"})
	assert.Empty(t, cacheRepo.patterns)
}

func TestRememberLoadsOnceThenServesCache(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)
	loads := 0
	load := func() ([]string, error) {
		loads++
		return []string{"Intro to React"}, nil
	}

	value, hit, err := remember(context.Background(), svc, "k", 0, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"Intro to React"}, value)

	value, hit, err = remember(context.Background(), svc, "k", 0, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"Intro to React"}, value)
	assert.Equal(t, 1, loads)
}

func TestRememberBypassesBrokenCache(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.getErr = errors.New("connection refused")
	repo.setErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, 0, nil, true)

	value, hit, err := remember(context.Background(), svc, "k", 0, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, value)

	_, _, err = remember(context.Background(), (*CacheService)(nil), "k", 0, func() (int, error) { return 0, errors.New("db down") })
	assert.EqualError(t, err, "db down")
}
