package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Kount.Environment != "sandbox" {
		t.Errorf("expected sandbox environment, got %s", cfg.Kount.Environment)
	}
	if cfg.Kount.TokenTimeout != 10*time.Second {
		t.Errorf("unexpected token timeout: %s", cfg.Kount.TokenTimeout)
	}
	if cfg.Kount.RequestTimeout != 15*time.Second {
		t.Errorf("unexpected request timeout: %s", cfg.Kount.RequestTimeout)
	}
	if cfg.Kount.APIKey != "" || cfg.Kount.TokenURL != "" || cfg.Kount.APIBaseURL != "" {
		t.Errorf("expected empty credentials and endpoints, got %+v", cfg.Kount)
	}
	if cfg.TokenCache.Backend != TokenCacheMemory {
		t.Errorf("expected memory token cache, got %s", cfg.TokenCache.Backend)
	}
	if cfg.TokenCache.Redis.KeyPrefix != defaultRedisKeyPrefix {
		t.Errorf("unexpected redis key prefix %s", cfg.TokenCache.Redis.KeyPrefix)
	}
	if cfg.RateLimits.EvaluatePerMinute != 600 {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.EvaluatePerMinute)
	}
	if cfg.Events.Topic != "" {
		t.Errorf("expected events disabled, got topic %s", cfg.Events.Topic)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                "9090",
		"API_SERVER_READ_TIMEOUT":        "20s",
		"API_SERVER_WRITE_TIMEOUT":       "25s",
		"API_SERVER_IDLE_TIMEOUT":        "2m",
		"KOUNT_ENVIRONMENT":              " Production ",
		"KOUNT_API_KEY":                  "secret://kount/api-key",
		"KOUNT_CLIENT_ID":                "client-123",
		"KOUNT_TOKEN_URL":                "https://login.example.com/token",
		"KOUNT_API_BASE_URL":             "https://api.example.com/commerce/v2",
		"KOUNT_TOKEN_TIMEOUT":            "5s",
		"KOUNT_REQUEST_TIMEOUT":          "8s",
		"KOUNT_TOKEN_CACHE":              "redis",
		"REDIS_ADDR":                     "127.0.0.1:6379",
		"REDIS_PASSWORD":                 "secret://redis/password",
		"REDIS_DB":                       "3",
		"REDIS_KEY_PREFIX":               "kount:bearer",
		"API_EVENTS_TOPIC":               "risk-evaluations",
		"API_TRACE_PROJECT_ID":           "risk-prod",
		"API_RATELIMIT_EVALUATE_PER_MIN": "120",
	}

	secrets := map[string]string{
		"secret://kount/api-key":  "kount-key",
		"secret://redis/password": "redis-pass",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Kount.Environment != "production" {
		t.Errorf("expected normalised production environment, got %q", cfg.Kount.Environment)
	}
	if cfg.Kount.APIKey != "kount-key" {
		t.Errorf("expected resolved api key, got %s", cfg.Kount.APIKey)
	}
	if cfg.Kount.ClientID != "client-123" {
		t.Errorf("expected plain client id, got %s", cfg.Kount.ClientID)
	}
	if cfg.Kount.TokenURL != "https://login.example.com/token" || cfg.Kount.APIBaseURL != "https://api.example.com/commerce/v2" {
		t.Errorf("unexpected endpoints %+v", cfg.Kount)
	}
	if cfg.Kount.TokenTimeout != 5*time.Second || cfg.Kount.RequestTimeout != 8*time.Second {
		t.Errorf("unexpected timeouts %s / %s", cfg.Kount.TokenTimeout, cfg.Kount.RequestTimeout)
	}
	if cfg.TokenCache.Backend != TokenCacheRedis {
		t.Errorf("expected redis token cache, got %s", cfg.TokenCache.Backend)
	}
	if cfg.TokenCache.Redis.Password != "redis-pass" {
		t.Errorf("expected resolved redis password, got %s", cfg.TokenCache.Redis.Password)
	}
	if cfg.TokenCache.Redis.DB != 3 || cfg.TokenCache.Redis.KeyPrefix != "kount:bearer" {
		t.Errorf("unexpected redis config %+v", cfg.TokenCache.Redis)
	}
	if cfg.Events.ProjectID != "risk-prod" {
		t.Errorf("expected events project to default to trace project, got %s", cfg.Events.ProjectID)
	}
	if cfg.RateLimits.EvaluatePerMinute != 120 {
		t.Errorf("unexpected rate limit %d", cfg.RateLimits.EvaluatePerMinute)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nexport KOUNT_CLIENT_ID=\"dot-client\"\n# comment\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Kount.ClientID != "dot-client" {
		t.Errorf("expected client id from dotenv, got %s", cfg.Kount.ClientID)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	env := map[string]string{
		"KOUNT_ENVIRONMENT":              "staging",
		"KOUNT_TOKEN_CACHE":              "redis",
		"KOUNT_REQUEST_TIMEOUT":          "-1s",
		"API_EVENTS_TOPIC":               "risk-evaluations",
		"API_RATELIMIT_EVALUATE_PER_MIN": "-5",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	validationErr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	want := map[string]bool{
		"Kount.Environment":            true,
		"Kount.RequestTimeout":         true,
		"TokenCache.Redis.Addr":        true,
		"Events.ProjectID":             true,
		"RateLimits.EvaluatePerMinute": true,
	}
	fields := validationErr.Fields()
	if len(fields) != len(want) {
		t.Fatalf("unexpected invalid fields %v", fields)
	}
	for _, field := range fields {
		if !want[field] {
			t.Fatalf("unexpected invalid field %s in %v", field, fields)
		}
	}
}

func TestLoadRejectsUnknownCacheBackend(t *testing.T) {
	env := map[string]string{"KOUNT_TOKEN_CACHE": "memcached"}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fields := validationErr.Fields(); len(fields) != 1 || fields[0] != "TokenCache.Backend" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"KOUNT_API_KEY": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Errorf("expected unconfigured resolver cause, got %v", err)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "KOUNT_ENVIRONMENT=sandbox\nAPI_SECRETS_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("KOUNT_ENVIRONMENT", "production")
	t.Setenv("API_SECRETS_PROJECT_ID", "risk-secrets")

	overrides := map[string]string{
		"KOUNT_ENVIRONMENT": "override",
		"KOUNT_API_KEY":     "secret://kount/api-key",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["KOUNT_ENVIRONMENT"]; got != "override" {
		t.Fatalf("expected override environment, got %s", got)
	}
	if got := values["API_SECRETS_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRETS_PROJECT_ID"]; got != "risk-secrets" {
		t.Fatalf("expected system env project, got %s", got)
	}
	if got := values["KOUNT_API_KEY"]; got != "secret://kount/api-key" {
		t.Fatalf("expected override api key reference, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(map[string]string{}),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Kount.APIKey"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Kount.APIKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Kount.APIKey" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(map[string]string{"KOUNT_API_KEY": "   "}),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Kount.APIKey"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"KOUNT_API_KEY": "sm://kount/api-key",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://kount/api-key" {
			return "legacy-key", nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
		WithRequiredSecrets("Kount.APIKey"),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Kount.APIKey != "legacy-key" {
		t.Fatalf("expected legacy secret, got %s", cfg.Kount.APIKey)
	}
}
