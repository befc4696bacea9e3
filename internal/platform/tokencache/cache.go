// Package tokencache stores bearer credentials issued by the risk provider, keyed by environment.
package tokencache

import (
	"context"
	"strings"
	"time"
)

// BearerToken is an issued access token together with its effective expiry. ExpiresAt already
// accounts for the refresh buffer so callers treat a token as unusable once now reaches it.
type BearerToken struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Valid reports whether the token carries a value and has not reached its effective expiry.
func (t BearerToken) Valid(now time.Time) bool {
	return strings.TrimSpace(t.AccessToken) != "" && now.Before(t.ExpiresAt)
}

// Cache persists bearer tokens per environment. Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the stored token. The boolean is false when nothing is stored for env.
	Get(ctx context.Context, env string) (BearerToken, bool, error)
	// Put stores the token and schedules eviction after ttl. A non-positive ttl stores nothing.
	Put(ctx context.Context, env string, token BearerToken, ttl time.Duration) error
	// Delete removes any token stored for env.
	Delete(ctx context.Context, env string) error
}
