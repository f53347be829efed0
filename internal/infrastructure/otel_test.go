package infrastructure

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpanHelpers(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "installer.install")
	AddSpanEvent(ctx, "download.retry", map[string]interface{}{
		"attempt":  2,
		"delay_ms": int64(500),
		"final":    false,
		"error":    "connection reset",
	})
	RecordError(ctx, errors.New("disk full"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	got := ended[0]
	assert.Equal(t, codes.Error, got.Status().Code)
	assert.Equal(t, "disk full", got.Status().Description)

	events := got.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "download.retry", events[0].Name)
	assert.Contains(t, events[0].Attributes, attribute.Int("attempt", 2))
	assert.Contains(t, events[0].Attributes, attribute.Int64("delay_ms", 500))
	assert.Contains(t, events[0].Attributes, attribute.Bool("final", false))
	assert.Equal(t, "exception", events[1].Name)
}

func TestSpanHelpersWithoutSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		AddSpanEvent(context.Background(), "ignored", map[string]interface{}{"k": "v"})
		RecordError(context.Background(), errors.New("ignored"))
	})
}
