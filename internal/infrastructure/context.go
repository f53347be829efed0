package infrastructure

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// GenerateTraceID creates a new unique trace ID using UUID v4
func GenerateTraceID() string {
	return uuid.New().String()
}

// EnsureTraceID ensures the context has a trace ID, generating one if needed
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) == "" {
		return WithTraceID(ctx, GenerateTraceID())
	}
	return ctx
}

// DetachedContext returns a background context that keeps the trace ID of ctx.
// Background workers use it so they outlive the request that started them.
func DetachedContext(ctx context.Context) context.Context {
	detached := context.Background()
	if traceID := GetTraceID(ctx); traceID != "" {
		detached = WithTraceID(detached, traceID)
	}
	return detached
}

// WithComponent creates a logger with a component field
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = GetLogger()
	}
	return logger.With(slog.String("component", component))
}
