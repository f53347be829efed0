package installer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

const TracerName = "artifact-installer"

// InstallerMetrics holds the installer instruments
type InstallerMetrics struct {
	InstallsTotal    metric.Int64Counter
	InstallDuration  metric.Float64Histogram
	BytesDownloaded  metric.Int64Counter
	RetrievalRetries metric.Int64Counter
	UninstallsTotal  metric.Int64Counter
}

// InitializeInstallerMetrics creates all installer metrics
func InitializeInstallerMetrics(meter metric.Meter) (*InstallerMetrics, error) {
	metrics := &InstallerMetrics{}
	var err error

	metrics.InstallsTotal, err = meter.Int64Counter(
		"installer_installs_total",
		metric.WithDescription("Total number of installations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create installs counter: %w", err)
	}

	metrics.InstallDuration, err = meter.Float64Histogram(
		"installer_install_duration_seconds",
		metric.WithDescription("Installation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create install duration histogram: %w", err)
	}

	metrics.BytesDownloaded, err = meter.Int64Counter(
		"installer_bytes_downloaded_total",
		metric.WithDescription("Total bytes of accepted artifacts"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create bytes counter: %w", err)
	}

	metrics.RetrievalRetries, err = meter.Int64Counter(
		"installer_retrieval_retries_total",
		metric.WithDescription("Total number of retried downloads"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retries counter: %w", err)
	}

	metrics.UninstallsTotal, err = meter.Int64Counter(
		"installer_uninstalls_total",
		metric.WithDescription("Total number of uninstallations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create uninstalls counter: %w", err)
	}

	return metrics, nil
}

func (i *Installer) recordInstall(ctx context.Context, phase domain.InstallPhase, size int64, duration time.Duration) {
	if i.metrics == nil {
		return
	}
	outcome := metric.WithAttributes(attribute.String("outcome", string(phase)))
	i.metrics.InstallsTotal.Add(ctx, 1, outcome)
	i.metrics.InstallDuration.Record(ctx, duration.Seconds(), outcome)
	if size > 0 {
		i.metrics.BytesDownloaded.Add(ctx, size)
	}
}

func (i *Installer) recordRetry(ctx context.Context) {
	if i.metrics == nil {
		return
	}
	i.metrics.RetrievalRetries.Add(ctx, 1)
}

func (i *Installer) recordUninstall(ctx context.Context, phase domain.InstallPhase) {
	if i.metrics == nil {
		return
	}
	i.metrics.UninstallsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(phase))))
}
