// Package observability provides opt-in observability for the expression
// engine: structured logging via slog, metrics and tracing via
// OpenTelemetry. Every feature has a no-op implementation, so hosts that
// embed the engine without an OTel pipeline pay nothing.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the engine tracer instance, backed by the global OTel tracer
// provider.
var tracer = otel.Tracer("vexpr")

// SpanManager handles trace span lifecycle around expression compilation
// and evaluation. Use NewSpanManager() for OTel tracing or
// NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartCompileSpan starts a span covering parse, bind and backend
	// compilation of one expression.
	StartCompileSpan(ctx context.Context, exprID string) (context.Context, trace.Span)

	// StartEvalSpan starts a span for one evaluation. Child of the compile
	// span when evaluation triggers lazy staging.
	StartEvalSpan(ctx context.Context, exprID, backend string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartCompileSpan(ctx context.Context, exprID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "vexpr.compile",
		trace.WithAttributes(
			attribute.String("expr.id", exprID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartEvalSpan(ctx context.Context, exprID, backend string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "vexpr.eval",
		trace.WithAttributes(
			attribute.String("expr.id", exprID),
			attribute.String("backend", backend),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
