package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// InitTracerProvider bootstraps a minimal OpenTelemetry TracerProvider for
// the gateway process. The gateway never ships its own OTLP exporter
// dependency decision here — callers register an exporter-backed
// SpanProcessor via opts when one is configured; with none, spans are
// created but never exported (useful for tests and process-only runs).
func InitTracerProvider(serviceName string, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName))
	allOpts := append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)
	tp := sdktrace.NewTracerProvider(allOpts...)
	otel.SetTracerProvider(tp)
	return tp
}

// Tracer is the package-wide tracer name used across the gateway's
// publish/consume/route spans.
const Tracer = "github.com/arc-self/safeclaw-gateway"

// StartSpan is a small convenience wrapper so callers don't need to import
// otel directly just to name a span.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(Tracer).Start(ctx, name)
}

// InjectTraceContext embeds the active span's trace/span IDs into a string
// metadata map, the way privacy-service's injectTraceContext embeds them
// into an outbox payload before publish.
func InjectTraceContext(ctx context.Context, metadata map[string]string) map[string]string {
	span := trace.SpanFromContext(ctx)
	sc := span.SpanContext()
	if !sc.IsValid() {
		return metadata
	}
	if metadata == nil {
		metadata = make(map[string]string, 2)
	}
	metadata["trace_id"] = sc.TraceID().String()
	metadata["span_id"] = sc.SpanID().String()
	return metadata
}

// ExtractTraceContext reconstructs a span context from metadata previously
// populated by InjectTraceContext, mirroring
// audit-service's globalExtractTraceContext.
func ExtractTraceContext(ctx context.Context, metadata map[string]string) context.Context {
	traceIDHex, ok := metadata["trace_id"]
	if !ok {
		return ctx
	}
	spanIDHex, ok := metadata["span_id"]
	if !ok {
		return ctx
	}
	traceID, err := trace.TraceIDFromHex(traceIDHex)
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(spanIDHex)
	if err != nil {
		return ctx
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithSpanContext(ctx, sc)
}
