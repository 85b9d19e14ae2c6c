package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span is the minimal span surface the core needs: attach attributes, record
// an error, and end. Modeled on the teacher's NoOpSpan / TracingHandler in
// internal/api/websocket/server.go, which decouples the WebSocket and bus
// code from any particular tracer implementation.
type Span interface {
	SetAttributes(kv ...attribute.KeyValue)
	RecordError(err error)
	End()
}

// StartSpanFunc starts a span and returns the derived context plus the span.
type StartSpanFunc func(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span)

// otelSpan adapts an otel trace.Span to the narrower Span interface.
type otelSpan struct{ s trace.Span }

func (o otelSpan) SetAttributes(kv ...attribute.KeyValue) { o.s.SetAttributes(kv...) }
func (o otelSpan) RecordError(err error) {
	if err != nil {
		o.s.RecordError(err)
	}
}
func (o otelSpan) End() { o.s.End() }

// NewTracerStartFunc builds a StartSpanFunc backed by the named tracer from
// an otel no-op TracerProvider, so spans are never recorded or exported; it
// does not consult the global TracerProvider. This is a zero-cost no-op,
// matching the teacher's default.
func NewTracerStartFunc(tracerName string) StartSpanFunc {
	tracer := trace.NewNoopTracerProvider().Tracer(tracerName)
	return func(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
		ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
		return ctx, otelSpan{s: span}
	}
}

// TracingHandler is a thin helper so callers don't need to import otel
// directly; it's held by the command bus and the diffusion progress relay.
type TracingHandler struct {
	start   StartSpanFunc
	metrics MetricsClient
	logger  Logger
}

// NewTracingHandler constructs a handler around a span-start function.
func NewTracingHandler(start StartSpanFunc, metrics MetricsClient, logger Logger) *TracingHandler {
	return &TracingHandler{start: start, metrics: metrics, logger: logger}
}

// StartSpan begins a span for name, always returning a usable Span even if
// no tracer is configured.
func (h *TracingHandler) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
	if h == nil || h.start == nil {
		return ctx, noopSpan{}
	}
	return h.start(ctx, name, attrs...)
}

type noopSpan struct{}

func (noopSpan) SetAttributes(...attribute.KeyValue) {}
func (noopSpan) RecordError(error)                   {}
func (noopSpan) End()                                {}
