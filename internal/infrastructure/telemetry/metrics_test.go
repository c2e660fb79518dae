package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"

	"github.com/cartsync/backend/internal/infrastructure/telemetry"
)

// newManualMeter returns a meter whose data can be collected on demand
func newManualMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

// sumFor returns the counter value for the data point carrying attrs
func sumFor(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)

	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := telemetry.MetricsConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		ServiceName:       "cartsync-test",
	}

	mp, err := telemetry.NewMeterProvider(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.ForceFlush(ctx))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestNewMeterProvider_Enabled(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	cfg := telemetry.MetricsConfig{
		Enabled:           true,
		CollectorEndpoint: "localhost:14317",
		ExportInterval:    time.Second,
		ServiceName:       "cartsync-test",
		Insecure:          true,
	}

	// the gRPC exporter connects lazily, so creation succeeds without a collector
	mp, err := telemetry.NewMeterProvider(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, mp.IsEnabled())

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = mp.Shutdown(shutdownCtx)
}

func TestCounter(t *testing.T) {
	reader, provider := newManualMeter(t)
	meter := provider.Meter("test")

	counter, err := telemetry.NewCounter(meter, "test_total", "test counter", "{items}")
	require.NoError(t, err)

	ctx := context.Background()
	counter.Inc(ctx, telemetry.AttrKind.String("a"))
	counter.Add(ctx, 4, telemetry.AttrKind.String("a"))
	counter.Inc(ctx, telemetry.AttrKind.String("b"))

	m := collect(t, reader)["test_total"]
	assert.Equal(t, int64(5), sumFor(t, m, telemetry.AttrKind.String("a")))
	assert.Equal(t, int64(1), sumFor(t, m, telemetry.AttrKind.String("b")))
}

func TestHistogram(t *testing.T) {
	reader, provider := newManualMeter(t)
	meter := provider.Meter("test")

	h, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "test_duration_seconds",
		Description: "test histogram",
		Unit:        "s",
		Boundaries:  []float64{0.1, 1, 10},
	})
	require.NoError(t, err)

	ctx := context.Background()
	h.Record(ctx, 0.05)
	h.RecordDuration(ctx, 2*time.Second)

	m := collect(t, reader)["test_duration_seconds"]
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)

	dp := hist.DataPoints[0]
	assert.Equal(t, uint64(2), dp.Count)
	assert.InDelta(t, 2.05, dp.Sum, 1e-9)
	assert.Equal(t, []float64{0.1, 1, 10}, dp.Bounds)
	assert.Equal(t, []uint64{1, 0, 1, 0}, dp.BucketCounts)
}

func TestHistogram_NoBoundaries(t *testing.T) {
	_, provider := newManualMeter(t)

	h, err := telemetry.NewHistogram(provider.Meter("test"), telemetry.HistogramOpts{
		Name: "plain_histogram",
		Unit: "s",
	})
	require.NoError(t, err)
	assert.NotNil(t, h)
}
