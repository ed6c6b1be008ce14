package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), Config{ServiceName: "lofi-relay"})
	require.NoError(t, err)
	assert.Same(t, before, otel.GetTracerProvider())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, shutdown(ctx))
}

func TestSetup_InstallsProvider(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	// non-routable address: nothing is exported, shutdown still has to return cleanly
	shutdown, err := Setup(context.Background(), Config{
		Endpoint:    "http://192.0.2.1:4318",
		ServiceName: "lofi-relay",
		Version:     "test",
		SampleRatio: 0.5,
	})
	require.NoError(t, err)
	assert.NotSame(t, before, otel.GetTracerProvider())
	require.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
