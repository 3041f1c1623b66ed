package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/cabinet-quote/internal/audit"
	"github.com/noah-isme/cabinet-quote/internal/cache"
	"github.com/noah-isme/cabinet-quote/internal/config"
	"github.com/noah-isme/cabinet-quote/internal/health"
	"github.com/noah-isme/cabinet-quote/internal/pricing"
	"github.com/noah-isme/cabinet-quote/internal/quote"
	"github.com/noah-isme/cabinet-quote/internal/ratelimit"
	"github.com/noah-isme/cabinet-quote/internal/render"
	"github.com/noah-isme/cabinet-quote/internal/resilience"
	"github.com/noah-isme/cabinet-quote/internal/shipping"
	"github.com/noah-isme/cabinet-quote/internal/store"
	"github.com/noah-isme/cabinet-quote/internal/tax"
)

// Dependencies enumerates the collaborators shared by the API and its
// handlers. Everything but the stores may be nil.
type Dependencies struct {
	DB         *pgxpool.Pool
	Redis      *redis.Client
	TaskClient *asynq.Client

	Prices    pricing.PriceSource
	Customers quote.CustomerStore
	Audit     quote.AuditSink
	Builder   render.Builder
	Documents render.DocumentStore
	Counter   ratelimit.Counter
	Validator *validator.Validate
	Logger    zerolog.Logger
}

// NewRedis connects to Redis with tracing and optional metrics attached.
func NewRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewDependencies builds the Postgres and Redis backed collaborators. rdb
// may be nil, in which case caching, idempotency and the audit queue are off
// and documents are kept in memory.
func NewDependencies(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, logger zerolog.Logger) (Dependencies, error) {
	deps := Dependencies{
		DB:        pool,
		Redis:     rdb,
		Customers: store.CustomerStore{DB: pool},
		Validator: quote.NewValidator(),
		Logger:    logger,
	}
	deps.Prices = store.CachedPrices{Next: store.PriceStore{DB: pool}, Cache: cache.New(rdb, cfg.PriceCacheTTL)}

	builder, err := NewBuilder(cfg, logger)
	if err != nil {
		return Dependencies{}, err
	}
	deps.Builder = builder

	if rdb != nil {
		deps.Documents = render.RedisDocumentStore{Client: rdb}
		if cfg.AuditEnabled {
			deps.TaskClient = asynq.NewClientFromRedisClient(rdb)
			deps.Audit = audit.Enqueuer{Client: deps.TaskClient, Queue: cfg.AuditQueue, Enabled: true}
		}
	} else {
		deps.Documents = render.NewMemoryDocumentStore()
		if cfg.AuditEnabled {
			logger.Warn().Msg("audit enabled without redis, calculations will not be audited")
		}
	}

	counter, err := NewRateCounter(cfg, rdb)
	if err != nil {
		return Dependencies{}, err
	}
	deps.Counter = counter
	return deps, nil
}

// Close releases the task client. The pool and Redis client belong to the caller.
func (d Dependencies) Close() error {
	if d.TaskClient != nil {
		return d.TaskClient.Close()
	}
	return nil
}

// NewBuilder selects the local maroto renderer or the remote rendering service.
func NewBuilder(cfg *config.Config, logger zerolog.Logger) (render.Builder, error) {
	switch cfg.RendererMode {
	case "", "local":
		return render.MarotoRenderer{CompanyName: cfg.CompanyName}, nil
	case "remote":
		return render.RemoteRenderer{
			URL: cfg.RendererURL,
			HTTP: resilience.HTTPClient{
				Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
				Breaker:     NewBreaker(cfg, logger).WithTarget("renderer"),
				BaseBackoff: 200 * time.Millisecond,
				MaxAttempts: 3,
				Jitter:      0.2,
				Timeout:     cfg.RendererTimeout,
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown renderer mode %q", cfg.RendererMode)
	}
}

// NewRateCounter picks the rate limit counter named by RATE_LIMIT_STORE.
func NewRateCounter(cfg *config.Config, rdb *redis.Client) (ratelimit.Counter, error) {
	const prefix = "ratelimit"
	switch cfg.RateLimitStore {
	case "", "memory":
		return ratelimit.NewMemoryCounter(cfg.RateLimitMaxKeys), nil
	case "limiter-memory":
		return ratelimit.NewLimiterMemoryCounter(prefix, time.Minute), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("rate limit store %q needs redis", cfg.RateLimitStore)
		}
		return ratelimit.NewRedisCounter(rdb, prefix), nil
	case "limiter-redis":
		if rdb == nil {
			return nil, fmt.Errorf("rate limit store %q needs redis", cfg.RateLimitStore)
		}
		return ratelimit.NewLimiterRedisCounter(rdb, prefix)
	default:
		return nil, fmt.Errorf("unknown rate limit store %q", cfg.RateLimitStore)
	}
}

// NewBreaker returns a breaker tuned from configuration.
func NewBreaker(cfg *config.Config, logger zerolog.Logger) *resilience.Breaker {
	return resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).WithLogger(logger)
}

// NewService assembles the quote pipeline from deps.
func NewService(cfg *config.Config, deps Dependencies) (*quote.Service, error) {
	table := tax.DefaultTable()
	if cfg.TaxRates != "" {
		overrides, err := tax.ParseTable(cfg.TaxRates)
		if err != nil {
			return nil, fmt.Errorf("TAX_RATES: %w", err)
		}
		table = table.Merge(overrides)
	}

	estimator, err := shipping.NewEstimator(shipping.Schedule{
		FlatFee:         cfg.ShippingFlatFee,
		FlatMaxUnits:    cfg.ShippingFlatMaxUnits,
		PerUnitRate:     cfg.ShippingPerUnitRate,
		PerUnitMaxUnits: cfg.ShippingPerUnitMaxUnits,
		NegotiatedRate:  cfg.ShippingNegotiatedRate,
		Countries:       cfg.ShippingCountries,
	})
	if err != nil {
		return nil, err
	}

	var renderer quote.Renderer
	if deps.Builder != nil && deps.Documents != nil {
		renderer = render.StoringRenderer{
			Builder: deps.Builder,
			Store:   deps.Documents,
			BaseURL: cfg.PublicBaseURL,
			TTL:     cfg.DocumentTTL,
		}
	}

	return quote.NewService(quote.Config{
		Prices:        deps.Prices,
		Customers:     deps.Customers,
		Tax:           tax.NewCalculator(table),
		Shipping:      estimator,
		Renderer:      renderer,
		Audit:         deps.Audit,
		Validator:     deps.Validator,
		Validity:      cfg.QuoteValidity,
		Concurrency:   cfg.PricingConcurrency,
		PriceGuard:    resilience.NewGuard("price_store", cfg.PriceStoreTimeout, NewBreaker(cfg, deps.Logger)),
		CustomerGuard: resilience.NewGuard("customer_store", cfg.CustomerStoreTimeout, NewBreaker(cfg, deps.Logger)),
		RenderGuard:   resilience.NewGuard("renderer", cfg.RendererTimeout, NewBreaker(cfg, deps.Logger)),
		AuditGuard:    resilience.NewGuard("audit_queue", cfg.AuditTimeout, NewBreaker(cfg, deps.Logger)),
	})
}

// Probes lists the readiness checks for the configured backends.
func (d Dependencies) Probes(dbTimeout, redisTimeout time.Duration) []health.Probe {
	var probes []health.Probe
	if d.DB != nil {
		probes = append(probes, health.Probe{Name: "db", Timeout: dbTimeout, Check: d.DB.Ping})
	}
	if d.Redis != nil {
		probes = append(probes, health.Probe{
			Name:     "redis",
			Timeout:  redisTimeout,
			Optional: true,
			Check:    func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() },
		})
	}
	return probes
}
