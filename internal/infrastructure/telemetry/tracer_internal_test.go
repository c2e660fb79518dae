package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		name     string
		ratio    float64
		wantDesc string
		decision sdktrace.SamplingDecision
	}{
		{"Always", 1.0, "AlwaysOnSampler", sdktrace.RecordAndSample},
		{"Above one", 2.0, "AlwaysOnSampler", sdktrace.RecordAndSample},
		{"Never", 0, "AlwaysOffSampler", sdktrace.Drop},
		{"Negative", -1, "AlwaysOffSampler", sdktrace.Drop},
		{"Ratio", 0.25, "TraceIDRatioBased{0.25}", sdktrace.RecordAndSample},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler := samplerFor(tt.ratio)
			assert.Contains(t, sampler.Description(), "ParentBased")
			assert.Contains(t, sampler.Description(), "root:"+tt.wantDesc)

			// a zero trace ID falls under every positive ratio
			result := sampler.ShouldSample(sdktrace.SamplingParameters{
				TraceID: trace.TraceID{},
				Name:    "reconcile",
			})
			assert.Equal(t, tt.decision, result.Decision)
		})
	}
}

func TestNewResource(t *testing.T) {
	res, err := newResource("cartsync-test")
	require.NoError(t, err)

	var name, version string
	for _, kv := range res.Attributes() {
		switch kv.Key {
		case "service.name":
			name = kv.Value.AsString()
		case "service.version":
			version = kv.Value.AsString()
		}
	}
	assert.Equal(t, "cartsync-test", name)
	assert.Equal(t, ServiceVersion, version)
}
