package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestSamplerDropsPolledPaths(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(NewSampler(1, DefaultUntracedPaths)),
		sdktrace.WithSpanProcessor(rec),
	)
	tracer := tp.Tracer("test")
	ctx := context.Background()

	_, ready := tracer.Start(ctx, "GET", trace.WithAttributes(attribute.String("url.path", "/health/ready")))
	ready.End()
	_, scrape := tracer.Start(ctx, "GET", trace.WithAttributes(attribute.String("http.target", "/metrics")))
	scrape.End()
	_, quote := tracer.Start(ctx, "POST", trace.WithAttributes(attribute.String("url.path", "/api/v1/quotes/calculate")))
	quote.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "POST", ended[0].Name())
}

func TestInitTracerDisabledExporter(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracingConfig{ServiceName: "cabinet-quote-api", Exporter: "off"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = InitTracer(context.Background(), TracingConfig{Exporter: "zipkin"})
	require.ErrorContains(t, err, "unsupported tracing exporter")
}
