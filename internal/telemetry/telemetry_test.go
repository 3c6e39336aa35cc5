package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebikes/stationtraffic/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "stationtraffic-api",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	})

	require.NoError(t, err)
	assert.NotNil(t, provider)
	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)

	// Noop provider should have nil TracerProvider and MeterProvider
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)

	// Shutdown should not error
	err = provider.Shutdown(ctx)
	assert.NoError(t, err)
}

func TestProvider_Shutdown_NilProviders(t *testing.T) {
	provider := &telemetry.Provider{}
	err := provider.Shutdown(context.Background())
	assert.NoError(t, err)
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "")

	cfg, err := telemetry.ConfigFromEnv("stationtraffic-api", "dev", "local")
	require.NoError(t, err)

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "stationtraffic-api", cfg.ServiceName)
	assert.Equal(t, telemetry.DefaultOTLPEndpoint, cfg.OTLPEndpoint)
	assert.Equal(t, 1.0, cfg.SampleRatio)
	assert.Equal(t, 15*time.Second, cfg.ExportInterval)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg, err := telemetry.ConfigFromEnv("stationtraffic-worker", "dev", "production")
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 0.25, cfg.SampleRatio)
}

func TestConfigFromEnv_InvalidSampleRatio(t *testing.T) {
	for _, v := range []string{"1.5", "-0.1", "half"} {
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", v)
		_, err := telemetry.ConfigFromEnv("svc", "dev", "test")
		assert.Error(t, err, v)
	}
}

func TestConfig_Sampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{ratio: 1, want: "AlwaysOnSampler"},
		{ratio: 0, want: "AlwaysOffSampler"},
		{ratio: 0.5, want: "TraceIDRatioBased{0.5}"},
	}

	for _, tt := range tests {
		cfg := telemetry.Config{SampleRatio: tt.ratio}
		assert.Contains(t, cfg.Sampler().Description(), tt.want)
	}
}
