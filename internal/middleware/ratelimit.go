package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/attendance-dashboard-api/pkg/errors"
	"github.com/noah-isme/attendance-dashboard-api/pkg/response"
)

// Limiter decides whether a key may make another request.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// TokenBucket is an in-memory per-key limiter refilled at a fixed rate per minute.
// Buckets that have been full for over a minute are evicted.
type TokenBucket struct {
	capacity int
	rate     int
	now      func() time.Time

	mu        sync.Mutex
	state     map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewTokenBucket creates a limiter with capacity tokens and perMinute refill.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if perMinute <= 0 {
		perMinute = 30
	}
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{capacity: capacity, rate: perMinute, now: time.Now, state: make(map[string]*bucket)}
}

// Allow consumes one token for key.
func (l *TokenBucket) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.sweep(now)
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true, nil
	}
	interval := l.interval()
	if refill := int(now.Sub(b.last) / interval); refill > 0 {
		b.tokens += refill
		if b.tokens >= l.capacity {
			b.tokens = l.capacity
			b.last = now
		} else {
			b.last = b.last.Add(time.Duration(refill) * interval)
		}
	}
	if b.tokens <= 0 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

func (l *TokenBucket) interval() time.Duration {
	if d := time.Minute / time.Duration(l.rate); d > 0 {
		return d
	}
	return time.Nanosecond
}

// sweep runs at most once a minute.
func (l *TokenBucket) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < time.Minute {
		return
	}
	l.lastSweep = now
	interval := l.interval()
	for key, b := range l.state {
		fullAt := b.last.Add(time.Duration(l.capacity-b.tokens) * interval)
		if now.Sub(fullAt) > time.Minute {
			delete(l.state, key)
		}
	}
}

// RedisWindow is a fixed one-minute window limiter shared across instances.
type RedisWindow struct {
	client    *redis.Client
	perMinute int
	prefix    string
	now       func() time.Time
}

// NewRedisWindow creates a redis-backed limiter.
func NewRedisWindow(client *redis.Client, perMinute int, prefix string) *RedisWindow {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &RedisWindow{client: client, perMinute: perMinute, prefix: prefix, now: time.Now}
}

// Allow increments the counter of the current minute for key.
func (l *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	window := l.now().UTC().Unix() / 60
	redisKey := fmt.Sprintf("%sratelimit:%s:%d", l.prefix, key, window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	return incr.Val() <= int64(l.perMinute), nil
}

// RateLimit rejects requests once the client IP runs out of budget.
// Limiter failures let the request through.
func RateLimit(limiter Limiter, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			key = "unknown"
		}
		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			response.Error(c, appErrors.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
