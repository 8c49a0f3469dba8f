package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(t *testing.T) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
}

func TestTraceContextHandler_Handle_WithValidSpan(t *testing.T) {
	newRecordingTracer(t)

	var buf bytes.Buffer
	handler := NewTraceContextHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log := slog.New(handler)

	ctx, span := otel.Tracer("test").Start(context.Background(), "test-span")
	defer span.End()

	log.InfoContext(ctx, "test message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	traceID, _ := entry["trace_id"].(string)
	assert.NotEmpty(t, traceID)
	assert.NotEqual(t, "00000000000000000000000000000000", traceID)
	spanID, _ := entry["span_id"].(string)
	assert.NotEmpty(t, spanID)
	assert.Equal(t, "test message", entry["msg"])
}

func TestTraceContextHandler_Handle_WithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	handler := NewTraceContextHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log := slog.New(handler)

	log.Info("test message without span")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
	assert.Equal(t, "test message without span", entry["msg"])
}

func TestTraceContextHandler_WithAttrs_PreservesTraceContext(t *testing.T) {
	newRecordingTracer(t)

	var buf bytes.Buffer
	handler := NewTraceContextHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log := slog.New(handler).With("service", "docqa-test")

	ctx, span := otel.Tracer("test").Start(context.Background(), "test-span")
	defer span.End()

	log.InfoContext(ctx, "with attrs")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "docqa-test", entry["service"])
	assert.Contains(t, entry, "trace_id")
	assert.Contains(t, entry, "span_id")
}

func TestTraceContextHandler_Enabled(t *testing.T) {
	handler := NewTraceContextHandler(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo}))

	assert.True(t, handler.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelError))
	assert.False(t, handler.Enabled(context.Background(), slog.LevelDebug))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}
