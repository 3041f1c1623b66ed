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
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	PublicBaseURL      string
	MaxBodyBytes       int64
	MigrateOnStart     bool

	QuoteValidity      time.Duration
	PricingConcurrency int
	TaxRates           string
	PriceCacheTTL      time.Duration

	ShippingFlatFee         decimal.Decimal
	ShippingFlatMaxUnits    int
	ShippingPerUnitRate     decimal.Decimal
	ShippingPerUnitMaxUnits int
	ShippingNegotiatedRate  decimal.NullDecimal
	ShippingCountries       []string

	RateLimitStore   string
	RateLimitMax     int
	RateLimitPDFMax  int
	RateLimitWindow  time.Duration
	RateLimitMaxKeys int

	PriceStoreTimeout    time.Duration
	CustomerStoreTimeout time.Duration
	RendererTimeout      time.Duration
	AuditTimeout         time.Duration
	BreakerMinRequests   int
	BreakerFailureRatio  float64
	BreakerOpenFor       time.Duration

	RendererMode   string
	RendererURL    string
	CompanyName    string
	DocumentTTL    time.Duration
	IdempotencyTTL time.Duration

	AuditEnabled      bool
	AuditQueue        string
	WorkerConcurrency int
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
		PublicBaseURL:      strings.TrimRight(strings.TrimSpace(k.String("PUBLIC_BASE_URL")), "/"),
		MaxBodyBytes:       int64(parseInt(k.String("HTTP_MAX_BODY_BYTES"), 1<<20)),
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START")),

		QuoteValidity:      parseDuration(k.String("QUOTE_VALIDITY"), "720h"),
		PricingConcurrency: parseInt(k.String("PRICING_CONCURRENCY"), 8),
		TaxRates:           strings.TrimSpace(k.String("TAX_RATES")),
		PriceCacheTTL:      parseDuration(k.String("PRICE_CACHE_TTL"), "5m"),

		ShippingFlatMaxUnits:    parseInt(k.String("SHIPPING_FLAT_MAX_UNITS"), 5),
		ShippingPerUnitMaxUnits: parseInt(k.String("SHIPPING_PER_UNIT_MAX_UNITS"), 20),
		ShippingCountries:       splitAndTrim(valueOrDefault(k.String("SHIPPING_COUNTRIES"), "US,CA")),

		RateLimitStore:   strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_STORE"), "memory")),
		RateLimitMax:     parseInt(k.String("RATE_LIMIT_MAX"), 60),
		RateLimitPDFMax:  parseInt(k.String("RATE_LIMIT_PDF_MAX"), 10),
		RateLimitWindow:  parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMaxKeys: parseInt(k.String("RATE_LIMIT_MAX_KEYS"), 10000),

		PriceStoreTimeout:    parseDuration(k.String("PRICE_STORE_TIMEOUT"), "2s"),
		CustomerStoreTimeout: parseDuration(k.String("CUSTOMER_STORE_TIMEOUT"), "2s"),
		RendererTimeout:      parseDuration(k.String("RENDERER_TIMEOUT"), "10s"),
		AuditTimeout:         parseDuration(k.String("AUDIT_ENQUEUE_TIMEOUT"), "250ms"),
		BreakerMinRequests:   parseInt(k.String("BREAKER_MIN_REQUESTS"), 5),
		BreakerFailureRatio:  parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:       parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),

		RendererMode:   strings.ToLower(valueOrDefault(k.String("RENDERER_MODE"), "local")),
		RendererURL:    strings.TrimSpace(k.String("RENDERER_URL")),
		CompanyName:    valueOrDefault(k.String("QUOTE_COMPANY_NAME"), "Cabinet Quotes"),
		DocumentTTL:    parseDuration(k.String("DOCUMENT_TTL"), "24h"),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		AuditEnabled:      parseBoolDefault(k.String("AUDIT_ENABLED"), true),
		AuditQueue:        valueOrDefault(k.String("AUDIT_QUEUE"), "audit"),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),
	}

	var err error
	if cfg.ShippingFlatFee, err = parseDecimal("SHIPPING_FLAT_FEE", k.String("SHIPPING_FLAT_FEE"), "75"); err != nil {
		return nil, err
	}
	if cfg.ShippingPerUnitRate, err = parseDecimal("SHIPPING_PER_UNIT_RATE", k.String("SHIPPING_PER_UNIT_RATE"), "15"); err != nil {
		return nil, err
	}
	if raw := strings.TrimSpace(k.String("SHIPPING_NEGOTIATED_RATE")); raw != "" {
		rate, err := parseDecimal("SHIPPING_NEGOTIATED_RATE", raw, "")
		if err != nil {
			return nil, err
		}
		cfg.ShippingNegotiatedRate = decimal.NewNullDecimal(rate)
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	switch cfg.RateLimitStore {
	case "memory", "redis", "limiter-memory", "limiter-redis":
	default:
		return nil, fmt.Errorf("RATE_LIMIT_STORE %q is not one of memory, redis, limiter-memory, limiter-redis", cfg.RateLimitStore)
	}
	if strings.Contains(cfg.RateLimitStore, "redis") && cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required for RATE_LIMIT_STORE=%s", cfg.RateLimitStore)
	}
	switch cfg.RendererMode {
	case "local":
	case "remote":
		if cfg.RendererURL == "" {
			return nil, errors.New("RENDERER_URL is required when RENDERER_MODE=remote")
		}
	default:
		return nil, fmt.Errorf("RENDERER_MODE %q is not one of local, remote", cfg.RendererMode)
	}
	if cfg.QuoteValidity <= 0 {
		return nil, errors.New("QUOTE_VALIDITY must be positive")
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
		return strings.TrimSpace(value)
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

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseDecimal(key, value, fallback string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		raw = fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
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
