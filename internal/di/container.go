package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/handlers"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/kount"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/platform/config"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/platform/events"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/platform/observability"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/platform/tokencache"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/services"
)

const rateLimitWindow = time.Minute

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Risk   services.RiskService
	System services.SystemService
}

// Infrastructure exposes the shared clients assembled for the services.
type Infrastructure struct {
	TokenCache  tokencache.Cache
	Redis       redis.UniversalClient
	Events      *events.PubSubEvaluationPublisher
	RateLimiter handlers.RateLimiter
}

// Container wires provider clients, caches, publishers and services for runtime use.
type Container struct {
	Config   config.Config
	Services Services
	Infra    Infrastructure
	Build    services.BuildInfo

	closers []func(context.Context) error
}

// Option customises container construction.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	build      services.BuildInfo
	httpClient *http.Client
	redis      redis.UniversalClient
	pubsub     *pubsub.Client
	clock      func() time.Time
}

// WithLogger sets the base logger handed to every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBuildInfo sets the metadata reported by health endpoints.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *options) {
		o.build = info
	}
}

// WithHTTPClient overrides the client used for provider token and order calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithRedisClient supplies an existing Redis client instead of dialing TokenCache.Redis.Addr.
// The container does not close injected clients.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		o.redis = client
	}
}

// WithPubSubClient supplies an existing Pub/Sub client instead of creating one for
// Events.ProjectID. The container does not close injected clients.
func WithPubSubClient(client *pubsub.Client) Option {
	return func(o *options) {
		o.pubsub = client
	}
}

// WithClock overrides the time source used by caches and services.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies from cfg. Resources opened here are released
// by Close, also when construction fails midway.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	o := options{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c := &Container{Config: cfg, Build: o.build}
	if c.Build.Environment == "" {
		c.Build.Environment = cfg.Kount.Environment
	}
	if c.Build.StartedAt.IsZero() {
		c.Build.StartedAt = o.clock().UTC()
	}

	if err := c.build(ctx, o); err != nil {
		_ = c.Close(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, o options) error {
	cfg := c.Config
	logger := o.logger

	env, err := kount.ParseEnvironment(cfg.Kount.Environment)
	if err != nil {
		return err
	}
	endpoints := kount.ResolveEndpoints(env, cfg.Kount.TokenURL, cfg.Kount.APIBaseURL)

	if err := c.buildTokenCache(ctx, o); err != nil {
		return err
	}

	authOpts := []kount.AuthenticatorOption{
		kount.WithAuthLogger(logger.Named("kount.auth")),
		kount.WithAuthClock(o.clock),
		kount.WithTokenTimeout(cfg.Kount.TokenTimeout),
	}
	clientOpts := []kount.ClientOption{
		kount.WithClientLogger(logger.Named("kount.client")),
		kount.WithRequestTimeout(cfg.Kount.RequestTimeout),
	}
	if o.httpClient != nil {
		authOpts = append(authOpts, kount.WithAuthHTTPClient(o.httpClient))
		clientOpts = append(clientOpts, kount.WithHTTPClient(o.httpClient))
	}

	authenticator, err := kount.NewAuthenticator(kount.AuthenticatorConfig{
		Environment: env,
		TokenURL:    endpoints.TokenURL,
		APIKey:      cfg.Kount.APIKey,
		ClientID:    cfg.Kount.ClientID,
		Cache:       c.Infra.TokenCache,
	}, authOpts...)
	if err != nil {
		return fmt.Errorf("build kount authenticator: %w", err)
	}
	if !authenticator.Configured() {
		logger.Warn("kount api key not configured; evaluations will fail until it is set")
	}

	client, err := kount.NewClient(endpoints.APIBaseURL, authenticator, clientOpts...)
	if err != nil {
		return fmt.Errorf("build kount client: %w", err)
	}

	if err := c.buildEvents(ctx, o); err != nil {
		return err
	}

	deps := services.RiskServiceDeps{
		Mapper:      kount.NewMapper(kount.WithMapperClock(o.clock)),
		Client:      client,
		Credentials: authenticator,
		Environment: string(env),
		Clock:       o.clock,
		Logger:      logger.Named("risk"),
	}
	if c.Infra.Events != nil {
		deps.Events = c.Infra.Events
	}
	risk, err := services.NewRiskService(deps)
	if err != nil {
		return fmt.Errorf("build risk service: %w", err)
	}
	c.Services.Risk = risk

	c.Infra.RateLimiter = c.buildRateLimiter(o)

	system, err := services.NewSystemService(services.SystemServiceDeps{
		Probes: c.probes(),
		Clock:  o.clock,
		Build:  c.Build,
	})
	if err != nil {
		return fmt.Errorf("build system service: %w", err)
	}
	c.Services.System = system
	return nil
}

func (c *Container) buildTokenCache(ctx context.Context, o options) error {
	cfg := c.Config.TokenCache
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", config.TokenCacheMemory:
		c.Infra.TokenCache = tokencache.NewMemoryCache(tokencache.WithClock(o.clock))
		return nil
	case config.TokenCacheRedis:
	default:
		return fmt.Errorf("unsupported token cache backend %q", cfg.Backend)
	}

	client := o.redis
	if client == nil {
		dialed, err := tokencache.NewRedisClient(ctx, tokencache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		c.closers = append(c.closers, func(context.Context) error { return dialed.Close() })
		client = dialed
	}

	cache, err := tokencache.NewRedisCache(client, cfg.Redis.KeyPrefix)
	if err != nil {
		return err
	}
	c.Infra.Redis = client
	c.Infra.TokenCache = cache
	return nil
}

func (c *Container) buildEvents(ctx context.Context, o options) error {
	cfg := c.Config.Events
	topicID := strings.TrimSpace(cfg.Topic)
	if topicID == "" {
		return nil
	}

	client := o.pubsub
	if client == nil {
		created, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return created.Close() })
		client = created
	}

	publisher, err := events.NewPubSubEvaluationPublisher(client.Topic(topicID))
	if err != nil {
		return err
	}
	c.closers = append(c.closers, func(context.Context) error {
		publisher.Stop()
		return nil
	})
	c.Infra.Events = publisher
	return nil
}

func (c *Container) buildRateLimiter(o options) handlers.RateLimiter {
	limit := c.Config.RateLimits.EvaluatePerMinute
	if c.Infra.Redis != nil {
		prefix := strings.TrimSuffix(c.Config.TokenCache.Redis.KeyPrefix, ":token")
		if prefix != "" {
			prefix += ":ratelimit"
		}
		return handlers.NewRedisRateLimiter(c.Infra.Redis, prefix, limit, rateLimitWindow, o.logger.Named("ratelimit"))
	}
	return handlers.NewMemoryRateLimiter(limit, rateLimitWindow, o.clock)
}

func (c *Container) probes() []services.HealthProbe {
	probes := []services.HealthProbe{services.CredentialProbe(c.Services.Risk)}

	if cache, ok := c.Infra.TokenCache.(*tokencache.RedisCache); ok {
		probes = append(probes, services.HealthProbe{
			Name:     "token_cache",
			Critical: true,
			Check: func(ctx context.Context) (string, error) {
				if err := cache.Ping(ctx); err != nil {
					return "", err
				}
				return "redis reachable", nil
			},
		})
	}

	if publisher := c.Infra.Events; publisher != nil {
		probes = append(probes, services.HealthProbe{
			Name: "pubsub",
			Check: func(ctx context.Context) (string, error) {
				if err := publisher.CheckTopic(ctx); err != nil {
					return "", err
				}
				return "topic reachable", nil
			},
		})
	}
	return probes
}

// Router assembles the HTTP router with health endpoints and the evaluation routes. Global
// middleware runs in the order given.
func (c *Container) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	health := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(c.Build),
		handlers.WithHealthSystemService(c.Services.System),
	)
	risk := handlers.NewRiskHandlers(c.Services.Risk, handlers.WithRiskRateLimiter(c.Infra.RateLimiter))

	return handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(health),
		handlers.WithRiskRoutes(risk.Routes),
		handlers.WithRiskMiddlewares(observability.CallerMiddleware()),
	)
}

// Close releases resources opened by the container in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
