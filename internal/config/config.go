package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	DBMaxConns     int
	DBMinConns     int
	AutoMigrate    bool
	MigrationsPath string

	CartTTL           time.Duration
	CatalogCacheTTL   time.Duration
	CatalogMaxLimit   int
	IdempotencyTTL    time.Duration
	LockTTL           time.Duration
	LockRetryBackoff  time.Duration
	LockMaxWait       time.Duration
	InvoiceMaxRetries int

	FinalizeRateLimit  int
	FinalizeRateWindow time.Duration
	// FinalizeRateStrategy is "fixed" (ulule counter) or "sliding" (sorted-set window).
	FinalizeRateStrategy string

	QueueName        string
	QueueConcurrency int
	QueueMaxRetry    int
	RelayInterval    time.Duration
	RelayBatch       int

	LedgerURL           string
	LedgerSecret        string
	LedgerTimeout       time.Duration
	LedgerRetryAttempts int
	LedgerRetryBase     time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		DBMaxConns:     parseInt(k.String("DB_MAX_CONNS"), 0),
		DBMinConns:     parseInt(k.String("DB_MIN_CONNS"), 0),
		AutoMigrate:    parseBool(k.String("AUTO_MIGRATE")),
		MigrationsPath: strings.TrimSpace(k.String("MIGRATIONS_PATH")),

		CartTTL:           parseDuration(k.String("CART_TTL"), "12h"),
		CatalogCacheTTL:   parseDuration(k.String("CATALOG_CACHE_TTL"), "10m"),
		CatalogMaxLimit:   parseInt(k.String("CATALOG_MAX_LIMIT"), 100),
		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		LockTTL:           parseDuration(k.String("LOCK_TTL"), "15s"),
		LockRetryBackoff:  parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		LockMaxWait:       parseDuration(k.String("LOCK_MAX_WAIT"), "5s"),
		InvoiceMaxRetries: parseInt(k.String("INVOICE_MAX_RETRIES"), 3),

		FinalizeRateLimit:    parseInt(k.String("FINALIZE_RATE_LIMIT"), 30),
		FinalizeRateWindow:   parseDuration(k.String("FINALIZE_RATE_WINDOW"), "1m"),
		FinalizeRateStrategy: strings.ToLower(valueOrDefault(k.String("FINALIZE_RATE_STRATEGY"), "fixed")),

		QueueName:        valueOrDefault(k.String("QUEUE_NAME"), "billing"),
		QueueConcurrency: parseInt(k.String("QUEUE_CONCURRENCY"), 5),
		QueueMaxRetry:    parseInt(k.String("QUEUE_MAX_RETRY"), 10),
		RelayInterval:    parseDuration(k.String("OUTBOX_RELAY_INTERVAL"), "5s"),
		RelayBatch:       parseInt(k.String("OUTBOX_RELAY_BATCH"), 100),

		LedgerURL:           strings.TrimSpace(k.String("LEDGER_URL")),
		LedgerSecret:        k.String("LEDGER_SECRET"),
		LedgerTimeout:       parseDuration(k.String("LEDGER_TIMEOUT"), "5s"),
		LedgerRetryAttempts: parseInt(k.String("LEDGER_RETRY_ATTEMPTS"), 3),
		LedgerRetryBase:     parseDuration(k.String("LEDGER_RETRY_BASE"), "200ms"),
		BreakerMinRequests:  parseInt(k.String("LEDGER_BREAKER_MIN_REQUESTS"), 5),
		BreakerFailureRatio: parseFloat(k.String("LEDGER_BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("LEDGER_BREAKER_OPEN_FOR"), "30s"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.InvoiceMaxRetries < 0 {
		return nil, errors.New("INVOICE_MAX_RETRIES must not be negative")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
