package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces token keys when no prefix is configured.
const DefaultKeyPrefix = "risk:token"

// RedisCache shares bearer tokens across processes through Redis. Entries are written with SET EX
// so Redis evicts them on its own once the provider lifetime elapses.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// RedisOptions configures NewRedisClient.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisClient opens a client and verifies connectivity.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("tokencache: redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("tokencache: connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisCache wraps an existing client. An empty prefix falls back to DefaultKeyPrefix.
func NewRedisCache(client redis.UniversalClient, prefix string) (*RedisCache, error) {
	if client == nil {
		return nil, errors.New("tokencache: redis client is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{client: client, prefix: prefix}, nil
}

func (c *RedisCache) key(env string) string {
	return c.prefix + ":" + env
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, env string) (BearerToken, bool, error) {
	payload, err := c.client.Get(ctx, c.key(env)).Bytes()
	if errors.Is(err, redis.Nil) {
		return BearerToken{}, false, nil
	}
	if err != nil {
		return BearerToken{}, false, fmt.Errorf("tokencache: get %s: %w", env, err)
	}

	var token BearerToken
	if err := json.Unmarshal(payload, &token); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		_ = c.client.Del(ctx, c.key(env)).Err()
		return BearerToken{}, false, nil
	}
	return token, true, nil
}

// Put implements Cache.
func (c *RedisCache) Put(ctx context.Context, env string, token BearerToken, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("tokencache: encode token: %w", err)
	}
	if err := c.client.Set(ctx, c.key(env), payload, ttl).Err(); err != nil {
		return fmt.Errorf("tokencache: set %s: %w", env, err)
	}
	return nil
}

// Delete implements Cache.
func (c *RedisCache) Delete(ctx context.Context, env string) error {
	if err := c.client.Del(ctx, c.key(env)).Err(); err != nil {
		return fmt.Errorf("tokencache: delete %s: %w", env, err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("tokencache: ping: %w", err)
	}
	return nil
}
