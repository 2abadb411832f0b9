package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	appErrors "github.com/noah-isme/attendance-dashboard-api/pkg/errors"
)

const cacheInvalidateTimeout = 3 * time.Second

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService orchestrates cache operations and related metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// LogsKey is the cache key of a viewer's attendance log batch.
func LogsKey(viewer models.Viewer) string {
	return fmt.Sprintf("logs:%s:%s", viewer.Role, viewer.UserID)
}

// TrendsKey is the cache key of a viewer's chart series for one range.
func TrendsKey(viewer models.Viewer, rng models.TrendRange) string {
	return fmt.Sprintf("trends:%s:%s:%s", viewer.Role, viewer.UserID, rng)
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// InvalidateViewer drops every cached batch and series belonging to a user.
func (s *CacheService) InvalidateViewer(ctx context.Context, userID string) error {
	if !s.Enabled() {
		return nil
	}
	var firstErr error
	for _, pattern := range []string{"logs:*:" + userID, "trends:*:" + userID + ":*"} {
		if err := s.Invalidate(ctx, pattern); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// InvalidateUser drops the user's own entries and every educator batch and
// series, since those embed student names.
func (s *CacheService) InvalidateUser(ctx context.Context, userID string) error {
	if !s.Enabled() {
		return nil
	}
	firstErr := s.InvalidateViewer(ctx, userID)
	for _, pattern := range []string{"logs:" + string(models.RoleEducator) + ":*", "trends:" + string(models.RoleEducator) + ":*"} {
		if err := s.Invalidate(ctx, pattern); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HandleSessionEvent invalidates cached data of a user whose account or
// profile changed. Subscribe it with AuthService.OnSessionChange.
func (s *CacheService) HandleSessionEvent(event models.SessionEvent) {
	if event.Type != models.SessionUserUpdated || !s.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheInvalidateTimeout)
	defer cancel()
	if err := s.InvalidateUser(ctx, event.UserID); err != nil {
		s.logger.Warn("failed to invalidate cache after user update", zap.String("user_id", event.UserID), zap.Error(err))
	}
}

// Invalidate removes cached values for the provided pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// remember serves key from cache, otherwise runs load and stores its result.
// The bool reports a cache hit. Cache failures only cost the round trip.
func remember[T any](ctx context.Context, cache *CacheService, key string, ttl time.Duration, load func() (T, error)) (T, bool, error) {
	var cached T
	if hit, err := cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, true, nil
	}
	value, err := load()
	if err != nil {
		var zero T
		return zero, false, err
	}
	_ = cache.Set(ctx, key, value, ttl)
	return value, false, nil
}
