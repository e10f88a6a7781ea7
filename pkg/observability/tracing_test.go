package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest installs a tracer provider with an in-memory span
// recorder and rebinds the package tracer to it.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	originalProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("vexpr")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		tracer = otel.Tracer("vexpr")
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}
	return exporter, cleanup
}

func TestStartCompileSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()
	_, span := sm.StartCompileSpan(context.Background(), "expr-1")
	require.NotNil(t, span)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "vexpr.compile", spans[0].Name)

	var exprID string
	for _, attr := range spans[0].Attributes {
		if attr.Key == "expr.id" {
			exprID = attr.Value.AsString()
		}
	}
	assert.Equal(t, "expr-1", exprID)
}

func TestStartEvalSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()
	_, span := sm.StartEvalSpan(context.Background(), "expr-1", "jit")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "vexpr.eval", spans[0].Name)

	var backend string
	for _, attr := range spans[0].Attributes {
		if attr.Key == "backend" {
			backend = attr.Value.AsString()
		}
	}
	assert.Equal(t, "jit", backend)
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	_, span := sm.StartCompileSpan(context.Background(), "ok")
	sm.EndSpanWithError(span, nil)

	_, span = sm.StartCompileSpan(context.Background(), "bad")
	sm.EndSpanWithError(span, errors.New("two diagnostics"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "two diagnostics", spans[1].Status.Description)

	// nil span is tolerated.
	sm.EndSpanWithError(nil, errors.New("ignored"))
}

func TestAddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()
	ctx, span := sm.StartEvalSpan(context.Background(), "e", "interpreter")
	sm.AddSpanEvent(ctx, "cache.hit")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "cache.hit", spans[0].Events[0].Name)

	// Without a recording span in context this is a no-op.
	sm.AddSpanEvent(context.Background(), "dropped")
}

func TestNoopImplementations(t *testing.T) {
	ctx := context.Background()

	var sm SpanManager = NoopSpanManager{}
	ctx2, span := sm.StartCompileSpan(ctx, "x")
	assert.Equal(t, ctx, ctx2)
	sm.EndSpanWithError(span, errors.New("ignored"))
	sm.AddSpanEvent(ctx, "ignored")

	var mr MetricsRecorder = NoopMetrics{}
	mr.RecordCompile(ctx, "jit", true, 0, 0)
	mr.RecordEval(ctx, "jit", 0)
	mr.RecordCacheAccess(ctx, true)
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	d := done()
	assert.GreaterOrEqual(t, d.Nanoseconds(), int64(0))
}
