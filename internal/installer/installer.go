package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Lynx96-creator/ets2-mod-api/internal/config"
	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
	"github.com/Lynx96-creator/ets2-mod-api/internal/infrastructure"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

const retryMultiplier = 2.0

// Result describes a completed installation
type Result struct {
	Phase domain.InstallPhase // PhaseInstalled or PhaseInstalledUnprotected
	Path  string
	Size  int64

	// ProtectionErr is set with PhaseInstalledUnprotected. It matches
	// apperrors.ErrProtectionFailed.
	ProtectionErr error
}

// Installer downloads, verifies and places artifacts in the install root
type Installer struct {
	cfg       config.InstallConfig
	fetcher   Fetcher
	protector FileProtector
	logger    *slog.Logger
	metrics   *InstallerMetrics
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures an Installer
type Option func(*Installer)

// WithMetrics records installer metrics
func WithMetrics(metrics *InstallerMetrics) Option {
	return func(i *Installer) { i.metrics = metrics }
}

// NewInstaller creates an installer for cfg
func NewInstaller(cfg config.InstallConfig, fetcher Fetcher, protector FileProtector, logger *slog.Logger, opts ...Option) *Installer {
	if protector == nil {
		protector = NoopProtector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	i := &Installer{
		cfg:       cfg,
		fetcher:   fetcher,
		protector: protector,
		logger:    logger.With(slog.String("component", "installer")),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// PathFor returns the artifact path of an internal name
func (i *Installer) PathFor(internalName string) (string, error) {
	name := strings.TrimSpace(internalName)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", apperrors.NewValidationError(fmt.Sprintf("invalid internal name %q", internalName), nil)
	}
	return filepath.Join(i.cfg.InstallRoot, name+i.cfg.ArtifactExtension), nil
}

// IsInstalled reports whether the artifact of an internal name is present
func (i *Installer) IsInstalled(internalName string) bool {
	path, err := i.PathFor(internalName)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Install places the artifact of entry. progress may be nil.
//
// An existing artifact is replaced. Nothing is written to the destination
// unless the download completes and passes the size check.
func (i *Installer) Install(ctx context.Context, entry domain.CatalogEntry, progress func(Progress)) (Result, error) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "installer.install",
		trace.WithAttributes(
			attribute.String("mod.name", entry.DisplayName),
			attribute.String("mod.internal_name", entry.InternalName),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := i.install(ctx, entry, newProgressReporter(progress, i.cfg.ProgressInterval))
	duration := time.Since(start)

	if err != nil {
		i.recordInstall(ctx, domain.PhaseFailed, 0, duration)
		infrastructure.RecordError(ctx, err)
		i.logger.ErrorContext(ctx, "Installation failed",
			slog.String("mod", entry.DisplayName),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return Result{}, err
	}

	i.recordInstall(ctx, result.Phase, result.Size, duration)
	span.SetAttributes(attribute.Int64("artifact.size", result.Size))
	span.SetStatus(codes.Ok, string(result.Phase))
	i.logger.InfoContext(ctx, "Installation completed",
		slog.String("mod", entry.DisplayName),
		slog.String("path", result.Path),
		slog.Int64("size", result.Size),
		slog.String("phase", string(result.Phase)),
		slog.Duration("duration", duration))
	return result, nil
}

func (i *Installer) install(ctx context.Context, entry domain.CatalogEntry, rep *progressReporter) (Result, error) {
	rep.enter(domain.PhasePreparing, percentPreparing)

	path, err := i.PathFor(entry.InternalName)
	if err != nil {
		return Result{}, err
	}
	contentID, err := ExtractContentID(entry.Locator)
	if err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Result{}, apperrors.NewStorageError("failed to create install directory", err)
	}
	if err := i.removeExisting(ctx, path); err != nil {
		return Result{}, err
	}

	rep.enter(domain.PhaseRetrieving, percentRetrieving)
	staged, size, err := i.retrieve(ctx, contentID, path, rep)
	if err != nil {
		return Result{}, err
	}

	rep.enter(domain.PhaseVerifying, percentVerifying)
	if size < i.cfg.MinArtifactSize {
		os.Remove(staged)
		return Result{}, apperrors.Wrap(apperrors.ErrArtifactTooSmall,
			fmt.Sprintf("received %d bytes, expected at least %d", size, i.cfg.MinArtifactSize), nil)
	}

	rep.enter(domain.PhaseFinalizing, percentFinalizing)
	if err := os.Rename(staged, path); err != nil {
		os.Remove(staged)
		return Result{}, apperrors.NewStorageError("failed to move artifact into place", err)
	}

	result := Result{Phase: domain.PhaseInstalled, Path: path, Size: size}
	if err := i.protector.Protect(path); err != nil {
		result.Phase = domain.PhaseInstalledUnprotected
		result.ProtectionErr = apperrors.Wrap(apperrors.ErrProtectionFailed, "could not protect artifact", err)
		i.logger.WarnContext(ctx, "Artifact installed without protection",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}

	rep.enter(result.Phase, percentDone)
	return result, nil
}

// removeExisting unprotects and deletes a previous artifact at path
func (i *Installer) removeExisting(ctx context.Context, path string) error {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return i.deleteArtifact(ctx, path, "existing artifact")
}

// deleteArtifact unprotects and removes path. When the removal fails the
// protection is applied again, so the artifact is never left present and
// unprotected.
func (i *Installer) deleteArtifact(ctx context.Context, path, what string) error {
	if err := i.protector.Unprotect(path); err != nil {
		return apperrors.Wrap(apperrors.ErrProtectionFailed, "could not unprotect "+what, err)
	}
	if err := os.Remove(path); err != nil {
		removeErr := apperrors.NewStorageError("failed to remove "+what, err)
		if perr := i.protector.Protect(path); perr != nil {
			i.logger.ErrorContext(ctx, "Artifact left unprotected after failed removal",
				slog.String("path", path),
				slog.String("error", perr.Error()))
			return errors.Join(removeErr, fmt.Errorf("failed to restore protection on %s: %w", path, perr))
		}
		return removeErr
	}
	return nil
}

// retrieve downloads contentID into a staging file beside dest, retrying
// retrieval failures when configured to
func (i *Installer) retrieve(ctx context.Context, contentID, dest string, rep *progressReporter) (string, int64, error) {
	var lastErr error
	for attempt := 1; attempt <= i.cfg.RetryAttempts; attempt++ {
		staged, size, err := i.download(ctx, contentID, dest, rep)
		if err == nil {
			return staged, size, nil
		}
		lastErr = err

		if !errors.Is(err, apperrors.ErrRetrievalFailed) || attempt >= i.cfg.RetryAttempts {
			break
		}

		delay := i.retryDelay(attempt)
		i.logger.WarnContext(ctx, "Retrying download",
			slog.String("content_id", contentID),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", i.cfg.RetryAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		i.recordRetry(ctx)
		infrastructure.AddSpanEvent(ctx, "download.retry", map[string]interface{}{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})

		if err := i.sleep(ctx, delay); err != nil {
			return "", 0, apperrors.Wrap(apperrors.ErrRetrievalFailed, "download cancelled", err)
		}
	}
	return "", 0, lastErr
}

// download performs one retrieval under the download deadline
func (i *Installer) download(ctx context.Context, contentID, dest string, rep *progressReporter) (string, int64, error) {
	if i.cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.DownloadTimeout)
		defer cancel()
	}

	body, total, err := i.fetcher.Fetch(ctx, contentID)
	if err != nil {
		return "", 0, apperrors.Wrap(apperrors.ErrRetrievalFailed, retrievalMessage(ctx, "could not start download"), err)
	}
	defer body.Close()

	base := strings.TrimSuffix(filepath.Base(dest), filepath.Ext(dest))
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+base+"-*.part")
	if err != nil {
		return "", 0, apperrors.NewStorageError("failed to create staging file", err)
	}

	written, err := io.Copy(&progressWriter{w: tmp, total: total, reporter: rep}, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, apperrors.Wrap(apperrors.ErrRetrievalFailed, retrievalMessage(ctx, "download interrupted"), err)
	}
	return tmp.Name(), written, nil
}

func retrievalMessage(ctx context.Context, fallback string) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "download timed out"
	}
	return fallback
}

func (i *Installer) retryDelay(attempt int) time.Duration {
	delay := time.Duration(float64(i.cfg.RetryInitialDelay) * math.Pow(retryMultiplier, float64(attempt-1)))
	if i.cfg.RetryMaxDelay > 0 && delay > i.cfg.RetryMaxDelay {
		delay = i.cfg.RetryMaxDelay
	}
	return delay
}

// Uninstall unprotects and deletes the artifact of an internal name. It
// reports false when there was nothing to remove.
func (i *Installer) Uninstall(ctx context.Context, internalName string) (bool, error) {
	path, err := i.PathFor(internalName)
	if err != nil {
		return false, err
	}

	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		i.recordUninstall(ctx, domain.PhaseNotFound)
		return false, nil
	}

	if err := i.deleteArtifact(ctx, path, "artifact"); err != nil {
		i.recordUninstall(ctx, domain.PhaseFailed)
		return false, err
	}

	i.recordUninstall(ctx, domain.PhaseRemoved)
	i.logger.InfoContext(ctx, "Artifact removed", slog.String("path", path))
	return true, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
