package handlers

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/platform/requestctx"
)

func TestMemoryRateLimiterFixedWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewMemoryRateLimiter(2, time.Minute, func() time.Time { return now })
	ctx := context.Background()

	if !limiter.Allow(ctx, "merchant:a") || !limiter.Allow(ctx, "merchant:a") {
		t.Fatalf("expected first two requests to pass")
	}
	if limiter.Allow(ctx, "merchant:a") {
		t.Fatalf("expected third request in window to be rejected")
	}
	if !limiter.Allow(ctx, "merchant:b") {
		t.Fatalf("expected other callers to have their own window")
	}

	now = now.Add(time.Minute)
	if !limiter.Allow(ctx, "merchant:a") {
		t.Fatalf("expected window reset after a minute")
	}

	impl := limiter.(*simpleRateLimiter)
	if _, ok := impl.store["merchant:b"]; ok {
		t.Fatalf("expected expired entries to be pruned")
	}
}

func TestMemoryRateLimiterDisabled(t *testing.T) {
	if NewMemoryRateLimiter(0, time.Minute, nil) != nil {
		t.Fatalf("expected nil limiter for zero limit")
	}
	if NewMemoryRateLimiter(10, 0, nil) != nil {
		t.Fatalf("expected nil limiter for zero window")
	}
}

func TestRedisRateLimiterSharesCounters(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC)
	clock := func() time.Time { return now }
	first := NewRedisRateLimiter(client, "", 2, time.Minute, nil)
	second := NewRedisRateLimiter(client, "", 2, time.Minute, nil)
	first.(*redisRateLimiter).clock = clock
	second.(*redisRateLimiter).clock = clock
	ctx := context.Background()

	if !first.Allow(ctx, "merchant:a") || !second.Allow(ctx, "merchant:a") {
		t.Fatalf("expected first two requests to pass")
	}
	if first.Allow(ctx, "merchant:a") {
		t.Fatalf("expected counters to be shared across limiters")
	}

	bucket := now.UnixNano() / int64(time.Minute)
	key := "risk:ratelimit:merchant:a:" + strconv.FormatInt(bucket, 10)
	if !srv.Exists(key) {
		t.Fatalf("expected key %s, got %v", key, srv.Keys())
	}
	if ttl := srv.TTL(key); ttl != time.Minute {
		t.Fatalf("expected ttl of one window, got %v", ttl)
	}

	now = now.Add(time.Minute)
	if !first.Allow(ctx, "merchant:a") {
		t.Fatalf("expected a fresh bucket in the next window")
	}
}

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisRateLimiter(client, "test", 1, time.Minute, nil)
	srv.Close()

	for i := 0; i < 3; i++ {
		if !limiter.Allow(context.Background(), "merchant:a") {
			t.Fatalf("expected requests to pass while redis is unavailable")
		}
	}
}

func TestCallerKey(t *testing.T) {
	if got := callerKey(context.Background()); got != "" {
		t.Fatalf("expected empty key without caller, got %q", got)
	}
	ctx := requestctx.WithCaller(context.Background(), requestctx.Caller{RemoteIP: "10.0.0.9"})
	if got := callerKey(ctx); got != "ip:10.0.0.9" {
		t.Fatalf("expected ip key, got %q", got)
	}
	if got := normalizeRateKey(callerKey(context.Background())); got != "anonymous" {
		t.Fatalf("expected anonymous fallback, got %q", got)
	}
}
