package obs

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceNamespace groups the quote API and its worker in trace backends.
const ServiceNamespace = "cabinet"

// DefaultUntracedPaths are polled endpoints whose root spans are dropped.
var DefaultUntracedPaths = []string{"/health/live", "/health/ready", "/metrics"}

// TracingConfig controls tracer provider initialisation.
type TracingConfig struct {
	ServiceName   string
	Endpoint      string
	Exporter      string
	SamplingRatio float64
	Environment   string
	Version       string
	// UntracedPaths overrides DefaultUntracedPaths when non-nil.
	UntracedPaths []string
}

// InitTracer installs the global tracer provider and propagators. The
// returned function flushes and stops the provider.
func InitTracer(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	exp, err := newSpanExporter(ctx, cfg)
	if err != nil || exp == nil {
		return func(context.Context) error { return nil }, err
	}
	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	paths := cfg.UntracedPaths
	if paths == nil {
		paths = DefaultUntracedPaths
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(NewSampler(cfg.SamplingRatio, paths)),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// newSpanExporter returns nil when tracing export is switched off.
func newSpanExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch kind := strings.ToLower(strings.TrimSpace(cfg.Exporter)); kind {
	case "none", "off":
		return nil, nil
	case "", "otlp":
		var opts []otlptracehttp.Option
		if ep := strings.TrimSpace(cfg.Endpoint); ep != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(ep))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", kind)
	}
}

func serviceResource(ctx context.Context, cfg TracingConfig) (*resource.Resource, error) {
	v := strings.TrimSpace(cfg.Version)
	if v == "" {
		v = "dev"
	}
	return resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceNamespaceKey.String(ServiceNamespace),
			semconv.ServiceVersionKey.String(v),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
}

// NewSampler samples ratio of new traces, follows the parent's decision for
// propagated ones, and drops root spans for the given request paths.
func NewSampler(ratio float64, untraced []string) sdktrace.Sampler {
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	skip := make(map[string]struct{}, len(untraced))
	for _, p := range untraced {
		skip[p] = struct{}{}
	}
	return sdktrace.ParentBased(pathSampler{skip: skip, next: sdktrace.TraceIDRatioBased(ratio)})
}

// otelhttp sets one of these at span start depending on the semconv version.
var pathKeys = []attribute.Key{"url.path", "http.target"}

type pathSampler struct {
	skip map[string]struct{}
	next sdktrace.Sampler
}

func (s pathSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for _, kv := range p.Attributes {
		for _, k := range pathKeys {
			if kv.Key != k {
				continue
			}
			if _, ok := s.skip[kv.Value.AsString()]; ok {
				return sdktrace.SamplingResult{
					Decision:   sdktrace.Drop,
					Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
				}
			}
		}
	}
	return s.next.ShouldSample(p)
}

func (s pathSampler) Description() string {
	return fmt.Sprintf("PathFilter{%d paths}/%s", len(s.skip), s.next.Description())
}
