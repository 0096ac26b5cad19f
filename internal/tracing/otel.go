// Package tracing configures OpenTelemetry for ragctx and provides span
// helpers for the embed, store and assemble stages. When no OTLP endpoint is
// configured the global no-op tracer is used and spans cost nothing.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every ragctx span.
const TracerName = "github.com/54b3r/ragctx-go"

// Config configures the tracer provider.
type Config struct {
	// ServiceName defaults to "ragctx".
	ServiceName string
	// ServiceVersion is reported as service.version.
	ServiceVersion string
	// Endpoint is the OTLP gRPC endpoint (host:port). Empty disables export.
	Endpoint string
	// Insecure disables TLS towards the collector.
	Insecure bool
	// SampleRate is the ratio of traces kept, from 0 to 1. Defaults to 1.
	SampleRate float64
}

// ConfigFromEnv reads OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE,
// OTEL_SERVICE_NAME and OTEL_TRACES_SAMPLER_ARG.
func ConfigFromEnv(version string) *Config {
	cfg := &Config{
		ServiceName:    os.Getenv("OTEL_SERVICE_NAME"),
		ServiceVersion: version,
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:       os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
		SampleRate:     1,
	}
	if v := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SampleRate = f
		}
	}
	return cfg
}

// Provider owns the SDK tracer provider, if one was installed.
type Provider struct {
	sdk *sdktrace.TracerProvider
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool { return p != nil && p.sdk != nil }

// Shutdown flushes pending spans. It is a no-op when export is disabled.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}

// Init installs a global tracer provider exporting over OTLP gRPC. With an
// empty endpoint nothing is installed and the returned Provider is inert.
func Init(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return &Provider{}, nil
	}
	name := cfg.ServiceName
	if name == "" {
		name = "ragctx"
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tracing: create OTLP exporter: %w", err)
	}

	res := resource.NewSchemaless(
		semconv.ServiceName(name),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Provider{sdk: tp}, nil
}

// Stage names recorded under ragctx.stage.
const (
	StageEmbed    = "embed"
	StageStore    = "store"
	StageAssemble = "assemble"
)

func start(ctx context.Context, name, stage string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("ragctx.stage", stage))
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
}

// StartAssembleSpan starts the span wrapping one context assembly.
func StartAssembleSpan(ctx context.Context, topK, tokenBudget int) (context.Context, trace.Span) {
	return start(ctx, "context.assemble", StageAssemble, trace.SpanKindInternal,
		attribute.Int("ragctx.top_k", topK),
		attribute.Int("ragctx.token_budget", tokenBudget),
	)
}

// StartEmbedSpan starts a span for one embedding call.
func StartEmbedSpan(ctx context.Context, texts int) (context.Context, trace.Span) {
	return start(ctx, "embedding.embed", StageEmbed, trace.SpanKindClient,
		attribute.Int("ragctx.embed.texts", texts),
	)
}

// StartStoreSpan starts a span for one vector store operation.
func StartStoreSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return start(ctx, "vectorstore."+op, StageStore, trace.SpanKindClient,
		attribute.String("ragctx.store.op", op),
	)
}

// RecordAssembly sets the outcome attributes of an assembly span.
func RecordAssembly(span trace.Span, matches, used, length int, tooLong, degraded bool) {
	span.SetAttributes(
		attribute.Int("ragctx.matches", matches),
		attribute.Int("ragctx.matches_used", used),
		attribute.Int("ragctx.length", length),
		attribute.Bool("ragctx.too_long", tooLong),
		attribute.Bool("ragctx.degraded", degraded),
	)
}

// RecordError records err on span and marks it failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
