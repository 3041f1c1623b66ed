package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/cabinet-quote/internal/common"
	"github.com/noah-isme/cabinet-quote/internal/config"
	"github.com/noah-isme/cabinet-quote/internal/health"
	"github.com/noah-isme/cabinet-quote/internal/obs"
	"github.com/noah-isme/cabinet-quote/internal/quote"
	"github.com/noah-isme/cabinet-quote/internal/ratelimit"
	"github.com/noah-isme/cabinet-quote/internal/render"
	"github.com/noah-isme/cabinet-quote/internal/security"
)

// RouterOptions toggles the observability middleware.
type RouterOptions struct {
	Metrics *obs.HTTPMetrics
	Tracing bool
	// Probes feed /health/ready.
	Probes []health.Probe
}

// NewRouter mounts the quote API, document downloads, health and metrics.
func NewRouter(cfg *config.Config, deps Dependencies, svc *quote.Service, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: deps.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production", TrustForwardedProto: true, NoStore: true}.Middleware)

	if opts.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{Probes: opts.Probes}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	quotes := &quote.Handler{Svc: svc}
	documents := render.Handler{Store: deps.Documents}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}

	limit := func(route string, max int) func(http.Handler) http.Handler {
		return ratelimit.Handler{
			Counter: deps.Counter,
			Config:  ratelimit.Config{Route: route, Window: cfg.RateLimitWindow, Max: max},
		}.Middleware
	}

	r.Route("/api/v1/quotes", func(q chi.Router) {
		q.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
		q.Group(func(g chi.Router) {
			g.Use(limit("quotes", cfg.RateLimitMax))
			g.Post("/validate", quotes.Validate)
			g.Post("/calculate", quotes.Calculate)
			g.Post("/breakdown", quotes.Breakdown)
		})
		q.Group(func(g chi.Router) {
			g.Use(limit("pdf", cfg.RateLimitPDFMax))
			g.Use(idem.Middleware)
			g.Post("/pdf", quotes.PDF)
			g.Post("/calculate-and-pdf", quotes.CalculateAndPDF)
		})
		if deps.Documents != nil {
			q.With(limit("download", cfg.RateLimitMax)).Get("/pdf/{id}", documents.Download)
		}
	})

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
