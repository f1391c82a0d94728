package otelx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	cfg, err := ConfigFromEnv("admin-service")
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "admin-service", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRatio)
	assert.True(t, cfg.Insecure)
}

func TestResourceAttrs(t *testing.T) {
	attrs := resourceAttrs(Config{ServiceName: "notification-service", Environment: "staging"})
	assert.Len(t, attrs, 2)

	attrs = resourceAttrs(Config{ServiceName: "notification-service", Environment: "staging", Release: "1.4.0"})
	require.Len(t, attrs, 3)
	assert.Equal(t, "1.4.0", attrs[2].Value.AsString())
}

func TestTraceContextRoundTrip(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	tp, ts := TraceContextStrings(ctx)
	require.NotEmpty(t, tp)

	restored := trace.SpanContextFromContext(ContextWithTraceContext(context.Background(), tp, ts))
	assert.Equal(t, traceID, restored.TraceID())
}
