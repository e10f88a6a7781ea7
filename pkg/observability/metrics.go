package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records engine metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordCompile records one compilation (parse + bind + backend
	// lowering) with its outcome and diagnostic count.
	RecordCompile(ctx context.Context, backend string, valid bool, errorCount int, duration time.Duration)

	// RecordEval records one evaluation with its duration.
	RecordEval(ctx context.Context, backend string, duration time.Duration)

	// RecordCacheAccess records a compiled-expression cache lookup.
	RecordCacheAccess(ctx context.Context, hit bool)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	compiles       metric.Int64Counter
	compileErrors  metric.Int64Counter
	compileLatency metric.Float64Histogram
	evals          metric.Int64Counter
	evalLatency    metric.Float64Histogram
	cacheAccesses  metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily initializes the default OTel metrics instance.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("vexpr")

	compiles, err := meter.Int64Counter("vexpr.compiles",
		metric.WithDescription("Number of expression compilations"),
	)
	if err != nil {
		return nil, err
	}

	compileErrors, err := meter.Int64Counter("vexpr.compile.errors",
		metric.WithDescription("Number of parse and bind diagnostics reported"),
	)
	if err != nil {
		return nil, err
	}

	compileLatency, err := meter.Float64Histogram("vexpr.compile.latency_ms",
		metric.WithDescription("Compilation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	evals, err := meter.Int64Counter("vexpr.evals",
		metric.WithDescription("Number of expression evaluations"),
	)
	if err != nil {
		return nil, err
	}

	evalLatency, err := meter.Float64Histogram("vexpr.eval.latency_ms",
		metric.WithDescription("Evaluation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheAccesses, err := meter.Int64Counter("vexpr.cache.accesses",
		metric.WithDescription("Compiled-expression cache lookups"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		compiles:       compiles,
		compileErrors:  compileErrors,
		compileLatency: compileLatency,
		evals:          evals,
		evalLatency:    evalLatency,
		cacheAccesses:  cacheAccesses,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordCompile(ctx context.Context, backend string, valid bool, errorCount int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("backend", backend),
		attribute.Bool("valid", valid),
	}
	m.compiles.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.compileLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if errorCount > 0 {
		m.compileErrors.Add(ctx, int64(errorCount), metric.WithAttributes(attrs...))
	}
}

func (m *otelMetrics) RecordEval(ctx context.Context, backend string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("backend", backend),
	}
	m.evals.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.evalLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

func (m *otelMetrics) RecordCacheAccess(ctx context.Context, hit bool) {
	m.cacheAccesses.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

// TimedOperation measures the duration of an operation. Returns a function
// that, when called, returns the elapsed time.
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
