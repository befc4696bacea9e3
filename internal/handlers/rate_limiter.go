package handlers

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/platform/requestctx"
)

// RateLimiter decides whether a caller may issue another evaluation in the current window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

type simpleRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]rateEntry
}

type rateEntry struct {
	count int
	reset time.Time
}

// NewMemoryRateLimiter returns a per-process fixed-window limiter, or nil when limiting is disabled.
func NewMemoryRateLimiter(limit int, window time.Duration, clock func() time.Time) RateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &simpleRateLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]rateEntry),
	}
}

func (l *simpleRateLimiter) Allow(_ context.Context, key string) bool {
	key = normalizeRateKey(key)
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || !now.Before(entry.reset) {
		l.store[key] = rateEntry{count: 1, reset: now.Add(l.window)}
		l.pruneExpiredLocked(now)
		return true
	}

	if entry.count >= l.limit {
		return false
	}
	entry.count++
	l.store[key] = entry
	return true
}

func (l *simpleRateLimiter) pruneExpiredLocked(now time.Time) {
	for key, entry := range l.store {
		if !now.Before(entry.reset) {
			delete(l.store, key)
		}
	}
}

// redisRateLimiter shares fixed windows across replicas: INCR on a key per caller and window,
// with the key expiring alongside the window.
type redisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
	clock  func() time.Time
	logger *zap.Logger
}

// NewRedisRateLimiter returns a limiter backed by Redis, or nil when limiting is disabled. Redis
// failures allow the request and are logged.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration, logger *zap.Logger) RateLimiter {
	if client == nil || limit <= 0 || window <= 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "risk:ratelimit"
	}
	return &redisRateLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		clock:  time.Now,
		logger: logger,
	}
}

func (l *redisRateLimiter) Allow(ctx context.Context, key string) bool {
	bucket := l.clock().UnixNano() / int64(l.window)
	redisKey := l.prefix + ":" + normalizeRateKey(key) + ":" + strconv.FormatInt(bucket, 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limiter unavailable; allowing request", zap.Error(err))
		return true
	}
	return incr.Val() <= int64(l.limit)
}

func normalizeRateKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "anonymous"
	}
	return key
}

func callerKey(ctx context.Context) string {
	caller, ok := requestctx.CallerFrom(ctx)
	if !ok {
		return ""
	}
	return caller.Key()
}
