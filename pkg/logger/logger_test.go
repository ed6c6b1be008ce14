package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cwrk-planet/lofi-relay/pkg/logger"
)

func TestDetectEnv(t *testing.T) {
	t.Setenv("RELAY_ENV", "")
	t.Setenv("APP_ENV", "")
	assert.Equal(t, logger.EnvDev, logger.DetectEnv())

	t.Setenv("APP_ENV", "staging")
	assert.Equal(t, logger.EnvStage, logger.DetectEnv())

	t.Setenv("RELAY_ENV", "production")
	assert.Equal(t, logger.EnvProd, logger.DetectEnv())

	assert.Equal(t, logger.EnvStage, logger.ParseEnv(" preprod "))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("whatever"))
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service: "demo",
		Version: "v0.0.1",
		Env:     logger.EnvDev,
		Backend: logger.BackendStd,
		Level:   slog.LevelDebug,
		Output:  &buf,
	})

	slog.Info("Hello world")

	out := buf.String()
	assert.False(t, strings.HasPrefix(out, "{"), "expected text output, got %s", out)
	assert.Contains(t, out, "Hello world")
	assert.Contains(t, out, "service=demo")
	assert.Contains(t, out, "env=dev")
}

func TestInit_ProdStd_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service: "demo",
		Env:     logger.EnvProd,
		Backend: logger.BackendStd,
		Output:  &buf,
	})

	slog.Warn("careful", "k", "v")

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m), buf.String())
	assert.Equal(t, "careful", m["msg"])
	assert.Equal(t, "demo", m["service"])
	assert.Equal(t, "v", m["k"])
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service:          "demo",
		Version:          "1.2.3",
		Env:              logger.EnvProd,
		Backend:          logger.BackendZap,
		Level:            slog.LevelInfo,
		SampleInitial:    100000,
		SampleThereafter: 100000,
		Output:           &buf,
	})

	slog.Info("booted", slog.String("k", "v"))
	slog.Debug("filtered out")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, buf.String())

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "booted", m["msg"])
	assert.Equal(t, "demo", m["service"])
	assert.Equal(t, "prod", m["env"])
	assert.Equal(t, "1.2.3", m["version"])
	assert.Equal(t, "INFO", m["level"])
	assert.Equal(t, "v", m["k"])
}

func TestFromCtx_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service: "demo",
		Env:     logger.EnvProd,
		Backend: logger.BackendStd,
		Output:  &buf,
	})

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.FromCtx(ctx).Info("with trace")
	span.End()

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m), buf.String())
	assert.Equal(t, span.SpanContext().TraceID().String(), m["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), m["span_id"])
	assert.Equal(t, "with trace", m["msg"])
}

func TestFromCtx_NoSpan(t *testing.T) {
	assert.Empty(t, logger.AttrsFromCtx(context.Background()))
	assert.NotNil(t, logger.FromCtx(context.Background()))
}
