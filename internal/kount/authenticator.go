package kount

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/domain"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/platform/tokencache"
)

const (
	// TokenBuffer is subtracted from the provider lifetime so tokens are refreshed before the
	// provider starts rejecting them.
	TokenBuffer = 30 * time.Second

	tokenScope            = "k1_integration_api"
	defaultTokenTimeout   = 10 * time.Second
	maxTokenResponseBytes = 1 << 20
)

// AuthenticatorConfig identifies the credentials and environment used for token exchanges.
type AuthenticatorConfig struct {
	Environment Environment
	TokenURL    string
	APIKey      string
	// ClientID is optional. Without it APIKey is treated as an already encoded Basic credential.
	ClientID string
	Cache    tokencache.Cache
}

// Authenticator issues bearer tokens through the OAuth client-credentials grant and caches them
// per environment.
type Authenticator struct {
	env      Environment
	tokenURL string
	apiKey   string
	clientID string
	cache    tokencache.Cache

	client  *http.Client
	logger  *zap.Logger
	clock   func() time.Time
	timeout time.Duration

	flight singleflight.Group
}

// AuthenticatorOption customises an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithAuthHTTPClient overrides the HTTP client used for token exchanges.
func WithAuthHTTPClient(client *http.Client) AuthenticatorOption {
	return func(a *Authenticator) {
		if client != nil {
			a.client = client
		}
	}
}

// WithAuthLogger sets the logger.
func WithAuthLogger(logger *zap.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAuthClock injects a custom time source.
func WithAuthClock(clock func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithTokenTimeout bounds each token exchange.
func WithTokenTimeout(d time.Duration) AuthenticatorOption {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs an Authenticator. A nil cache falls back to a private in-memory
// cache. A missing API key is reported by BearerToken rather than here so the process can start
// and report itself unready.
func NewAuthenticator(cfg AuthenticatorConfig, opts ...AuthenticatorOption) (*Authenticator, error) {
	env := cfg.Environment
	if env == "" {
		env = EnvironmentSandbox
	}
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = DefaultEndpoints(env).TokenURL
	}
	if _, err := url.ParseRequestURI(tokenURL); err != nil {
		return nil, errors.New("kount: token url is invalid")
	}

	cache := cfg.Cache
	if cache == nil {
		cache = tokencache.NewMemoryCache()
	}

	a := &Authenticator{
		env:      env,
		tokenURL: tokenURL,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		clientID: strings.TrimSpace(cfg.ClientID),
		cache:    cache,
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:   zap.NewNop(),
		clock:    time.Now,
		timeout:  defaultTokenTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Environment reports the environment tokens are issued for.
func (a *Authenticator) Environment() Environment {
	return a.env
}

// Configured reports whether credentials are present.
func (a *Authenticator) Configured() bool {
	return a != nil && a.apiKey != ""
}

// BearerToken returns a cached token while it is within its buffered lifetime and otherwise
// performs one token exchange. Concurrent misses in this process share a single exchange.
func (a *Authenticator) BearerToken(ctx context.Context) (string, error) {
	if !a.Configured() {
		return "", &domain.AuthenticationError{Message: "api key is not configured"}
	}
	if token, ok := a.cached(ctx); ok {
		return token, nil
	}

	// The shared exchange outlives any single caller; each caller still honours its own ctx.
	shared := context.WithoutCancel(ctx)
	ch := a.flight.DoChan(string(a.env), func() (any, error) {
		if token, ok := a.cached(shared); ok {
			return token, nil
		}
		return a.exchange(shared)
	})
	select {
	case <-ctx.Done():
		return "", &domain.AuthenticationError{Message: "token request abandoned", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next BearerToken call performs an exchange.
func (a *Authenticator) Invalidate(ctx context.Context) error {
	return a.cache.Delete(ctx, string(a.env))
}

func (a *Authenticator) cached(ctx context.Context) (string, bool) {
	token, ok, err := a.cache.Get(ctx, string(a.env))
	if err != nil {
		a.logger.Warn("kount token cache read failed", zap.String("environment", string(a.env)), zap.Error(err))
		return "", false
	}
	if !ok || !token.Valid(a.clock()) {
		return "", false
	}
	return token.AccessToken, true
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
	TokenType   string      `json:"token_type"`
}

func (a *Authenticator) exchange(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", tokenScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &domain.AuthenticationError{Message: "build token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	a.setBasicAuth(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", &domain.AuthenticationError{Message: "token request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return "", &domain.AuthenticationError{StatusCode: resp.StatusCode, Message: "read token response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.logger.Warn("kount token exchange rejected",
			zap.String("environment", string(a.env)),
			zap.Int("status", resp.StatusCode),
		)
		return "", &domain.AuthenticationError{
			StatusCode: resp.StatusCode,
			Message:    providerErrorMessage(body, "token exchange rejected"),
			Body:       string(body),
		}
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &domain.AuthenticationError{StatusCode: resp.StatusCode, Message: "decode token response", Body: string(body), Err: err}
	}
	accessToken := strings.TrimSpace(payload.AccessToken)
	if accessToken == "" {
		return "", &domain.AuthenticationError{StatusCode: resp.StatusCode, Message: "token response missing access_token", Body: string(body)}
	}

	var lifetime time.Duration
	if seconds, err := payload.ExpiresIn.Float64(); err == nil && seconds > 0 {
		lifetime = time.Duration(seconds * float64(time.Second))
	}

	now := a.clock()
	token := tokencache.BearerToken{AccessToken: accessToken, ExpiresAt: now.Add(lifetime - TokenBuffer)}
	if lifetime <= 0 {
		a.logger.Warn("kount token response missing expires_in; token will not be cached",
			zap.String("environment", string(a.env)))
	} else if err := a.cache.Put(ctx, string(a.env), token, lifetime); err != nil {
		a.logger.Warn("kount token cache write failed", zap.String("environment", string(a.env)), zap.Error(err))
	}

	a.logger.Debug("kount token issued",
		zap.String("environment", string(a.env)),
		zap.Time("expires_at", token.ExpiresAt),
	)
	return accessToken, nil
}

func (a *Authenticator) setBasicAuth(req *http.Request) {
	if a.clientID != "" {
		req.SetBasicAuth(a.clientID, a.apiKey)
		return
	}
	credential := strings.TrimSpace(strings.TrimPrefix(a.apiKey, "Basic "))
	req.Header.Set("Authorization", "Basic "+credential)
}

// providerErrorMessage extracts an OAuth style error description from body when present.
func providerErrorMessage(body []byte, fallback string) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallback
	}
	for _, key := range []string{"error_description", "errorSummary", "message", "error"} {
		if v, ok := payload[key].(string); ok && strings.TrimSpace(v) != "" {
			return fallback + ": " + strings.TrimSpace(v)
		}
	}
	return fallback
}
