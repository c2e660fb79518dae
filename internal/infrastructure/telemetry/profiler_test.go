package telemetry_test

import (
	"sync"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cartsync/backend/internal/infrastructure/telemetry"
)

func TestNewProfiler_Disabled(t *testing.T) {
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         false,
		ServerAddress:   "http://localhost:4040",
		ApplicationName: "cartsync-test",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, profiler.IsEnabled())
	assert.NoError(t, profiler.Stop())
}

func TestNewProfiler_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     telemetry.ProfilerConfig
		wantErr error
	}{
		{"Missing server address", telemetry.ProfilerConfig{Enabled: true, ApplicationName: "cartsync"}, telemetry.ErrProfilerAddressRequired},
		{"Missing application name", telemetry.ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, telemetry.ErrProfilerNameRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiler, err := telemetry.NewProfiler(tt.cfg, zaptest.NewLogger(t))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, profiler)
		})
	}
}

func TestNewProfiler_EnabledIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// pyroscope uploads in the background, so start succeeds without a server
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         true,
		ServerAddress:   "http://localhost:4040",
		ApplicationName: "cartsync-test",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, profiler.IsEnabled())
	assert.NoError(t, profiler.Stop())
}

func TestProfiler_StopConcurrent(t *testing.T) {
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, profiler.Stop())
		}()
	}
	wg.Wait()
}

func TestDefaultProfileTypes(t *testing.T) {
	assert.Contains(t, telemetry.DefaultProfileTypes, pyroscope.ProfileCPU)
	assert.NotContains(t, telemetry.DefaultProfileTypes, pyroscope.ProfileMutexCount)
}
