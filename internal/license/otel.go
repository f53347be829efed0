package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
)

const TracerName = "license-manager"

// LicenseMetrics holds the license manager instruments
type LicenseMetrics struct {
	AuthAttempts   metric.Int64Counter
	AuthDenials    metric.Int64Counter
	AuthDuration   metric.Float64Histogram
	DeviceBindings metric.Int64Counter

	KeyValidations metric.Int64Counter
	KeyRotations   metric.Int64Counter
	KeyRejections  metric.Int64Counter
}

// InitializeLicenseMetrics creates all license metrics
func InitializeLicenseMetrics(meter metric.Meter) (*LicenseMetrics, error) {
	metrics := &LicenseMetrics{}
	var err error

	metrics.AuthAttempts, err = meter.Int64Counter(
		"license_auth_attempts_total",
		metric.WithDescription("Total number of login attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth attempts counter: %w", err)
	}

	metrics.AuthDenials, err = meter.Int64Counter(
		"license_auth_denials_total",
		metric.WithDescription("Total number of refused logins by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth denials counter: %w", err)
	}

	metrics.AuthDuration, err = meter.Float64Histogram(
		"license_auth_duration_seconds",
		metric.WithDescription("Login duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth duration histogram: %w", err)
	}

	metrics.DeviceBindings, err = meter.Int64Counter(
		"license_device_bindings_total",
		metric.WithDescription("Total number of accounts bound to a device"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create device bindings counter: %w", err)
	}

	metrics.KeyValidations, err = meter.Int64Counter(
		"license_key_validations_total",
		metric.WithDescription("Total number of serial key checks"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create key validations counter: %w", err)
	}

	metrics.KeyRotations, err = meter.Int64Counter(
		"license_key_rotations_total",
		metric.WithDescription("Total number of consumed and rotated serial keys"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create key rotations counter: %w", err)
	}

	metrics.KeyRejections, err = meter.Int64Counter(
		"license_key_rejections_total",
		metric.WithDescription("Total number of rejected serial keys"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create key rejections counter: %w", err)
	}

	return metrics, nil
}

// TraceAuthentication wraps a login with a span and records its metrics
func (m *Manager) TraceAuthentication(ctx context.Context, fn func(context.Context) error) error {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "license.authenticate",
		trace.WithAttributes(
			attribute.String("license.operation", "authenticate"),
			attribute.String("component", "license_manager"),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	m.recordAuthMetrics(ctx, duration, err)

	span.SetAttributes(
		attribute.Float64("license.duration_ms", float64(duration.Milliseconds())),
		attribute.Bool("license.success", err == nil),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("license.error_type", denialReason(err)))
	} else {
		span.SetStatus(codes.Ok, "Authenticated")
	}
	return err
}

// TraceKeyRotation wraps a serial key check with a span and records its metrics
func (m *Manager) TraceKeyRotation(ctx context.Context, displayName string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "license.rotate_key",
		trace.WithAttributes(
			attribute.String("license.operation", "rotate_key"),
			attribute.String("mod.name", displayName),
		),
	)
	defer span.End()

	err := fn(ctx)
	m.recordKeyMetrics(ctx, displayName, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "Serial key rotated")
	}
	return err
}

func (m *Manager) recordAuthMetrics(ctx context.Context, duration time.Duration, err error) {
	if m.metrics == nil {
		return
	}

	m.metrics.AuthAttempts.Add(ctx, 1)
	m.metrics.AuthDuration.Record(ctx, duration.Seconds())
	if err != nil {
		m.metrics.AuthDenials.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", denialReason(err))))
	}
}

func (m *Manager) recordDeviceBinding(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	m.metrics.DeviceBindings.Add(ctx, 1)
}

func (m *Manager) recordKeyMetrics(ctx context.Context, displayName string, err error) {
	if m.metrics == nil {
		return
	}

	labels := metric.WithAttributes(attribute.String("mod", displayName))
	m.metrics.KeyValidations.Add(ctx, 1, labels)

	switch {
	case err == nil:
		m.metrics.KeyRotations.Add(ctx, 1, labels)
	case errors.Is(err, apperrors.ErrSerialKeyInvalid):
		m.metrics.KeyRejections.Add(ctx, 1, labels)
	}
}
