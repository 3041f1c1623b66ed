package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteCalculationsTotal counts quote pipeline runs by operation and result.
	QuoteCalculationsTotal *prometheus.CounterVec
	// QuoteStageFailuresTotal counts pipeline failures by stage and error code.
	QuoteStageFailuresTotal *prometheus.CounterVec
	// QuoteCalculationDuration records pipeline latency in milliseconds.
	QuoteCalculationDuration *prometheus.HistogramVec
	// QuoteRenderTotal counts document renders by template and result.
	QuoteRenderTotal *prometheus.CounterVec
	// RateLimitRejectedTotal counts requests refused by the rate limiter.
	RateLimitRejectedTotal *prometheus.CounterVec
	// RateLimitUntrackedTotal counts requests admitted because the counter was full.
	RateLimitUntrackedTotal prometheus.Counter
	// AuditEventsTotal counts audit enqueue and persist outcomes.
	AuditEventsTotal *prometheus.CounterVec
	// DBQueryDuration records Postgres query latency by statement verb.
	DBQueryDuration *prometheus.HistogramVec
)

func init() {
	// zero-value collectors so callers never observe nil before registration
	initDomainCollectors("")
}

func initDomainCollectors(namespace string) {
	QuoteCalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quote_calculations_total",
		Help:      "Count of quote pipeline runs by operation and result.",
	}, []string{"operation", "result"})
	QuoteStageFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quote_stage_failures_total",
		Help:      "Count of quote pipeline failures by stage and code.",
	}, []string{"stage", "code"})
	QuoteCalculationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "quote_calculation_duration_ms",
		Help:      "Latency of quote pipeline runs in milliseconds.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"operation"})
	QuoteRenderTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quote_render_total",
		Help:      "Count of quote document renders by template and result.",
	}, []string{"template", "result"})
	RateLimitRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratelimit_rejected_total",
		Help:      "Count of requests rejected by the rate limiter.",
	}, []string{"route"})
	RateLimitUntrackedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratelimit_untracked_total",
		Help:      "Requests admitted without tracking because the counter was full.",
	})
	AuditEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quote_audit_events_total",
		Help:      "Count of quote audit events by phase and result.",
	}, []string{"phase", "result"})
	DBQueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "db_query_duration_ms",
		Help:      "Latency of Postgres queries in milliseconds.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000},
	}, []string{"operation", "result"})
}

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		initDomainCollectors(namespace)

		QuoteCalculationsTotal = register(reg, QuoteCalculationsTotal)
		QuoteStageFailuresTotal = register(reg, QuoteStageFailuresTotal)
		QuoteCalculationDuration = register(reg, QuoteCalculationDuration)
		QuoteRenderTotal = register(reg, QuoteRenderTotal)
		RateLimitRejectedTotal = register(reg, RateLimitRejectedTotal)
		RateLimitUntrackedTotal = register(reg, RateLimitUntrackedTotal)
		AuditEventsTotal = register(reg, AuditEventsTotal)
		DBQueryDuration = register(reg, DBQueryDuration)
	})
}
