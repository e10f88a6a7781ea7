package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest installs a meter provider with a manual reader.
func setupMetricsTest(t *testing.T) (*sdkmetric.ManualReader, func()) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	originalProvider := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	cleanup := func() {
		otel.SetMeterProvider(originalProvider)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	}
	return reader, cleanup
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecordCompile(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCompile(ctx, "jit", true, 0, 3*time.Millisecond)
	m.RecordCompile(ctx, "interpreter", false, 2, time.Millisecond)

	rm := collectMetrics(t, reader)

	compiles := findMetric(rm, "vexpr.compiles")
	require.NotNil(t, compiles)
	sum, ok := compiles.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	errs := findMetric(rm, "vexpr.compile.errors")
	require.NotNil(t, errs)
	esum, ok := errs.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.NotEmpty(t, esum.DataPoints)
	assert.Equal(t, int64(2), esum.DataPoints[0].Value)

	assert.NotNil(t, findMetric(rm, "vexpr.compile.latency_ms"))
}

func TestRecordEval(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		m.RecordEval(ctx, "jit", time.Microsecond)
	}

	rm := collectMetrics(t, reader)
	evals := findMetric(rm, "vexpr.evals")
	require.NotNil(t, evals)
	sum, ok := evals.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.NotEmpty(t, sum.DataPoints)
	assert.Equal(t, int64(5), sum.DataPoints[0].Value)
}

func TestRecordCacheAccess(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCacheAccess(ctx, true)
	m.RecordCacheAccess(ctx, true)
	m.RecordCacheAccess(ctx, false)

	rm := collectMetrics(t, reader)
	accesses := findMetric(rm, "vexpr.cache.accesses")
	require.NotNil(t, accesses)
	sum, ok := accesses.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)
}

func TestNewMetricsRecorderUsesProvider(t *testing.T) {
	_, cleanup := setupMetricsTest(t)
	defer cleanup()

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)
	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "expected real metrics recorder")
}
