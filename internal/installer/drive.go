package installer

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
)

// DriveFetcher downloads files through the Drive API with service account
// credentials. It reaches files that are shared with the service account
// rather than publicly.
type DriveFetcher struct {
	service *drive.Service
	logger  *slog.Logger
}

// NewDriveFetcher creates a fetcher authenticated with a credentials file
func NewDriveFetcher(ctx context.Context, credentialsFile string, logger *slog.Logger) (*DriveFetcher, error) {
	service, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return NewDriveFetcherWithService(service, logger), nil
}

// NewDriveFetcherWithService wraps an existing Drive service
func NewDriveFetcherWithService(service *drive.Service, logger *slog.Logger) *DriveFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DriveFetcher{
		service: service,
		logger:  logger.With(slog.String("component", "drive_fetcher")),
	}
}

// Fetch implements Fetcher
func (f *DriveFetcher) Fetch(ctx context.Context, contentID string) (io.ReadCloser, int64, error) {
	resp, err := f.service.Files.Get(contentID).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, 0, apperrors.NewNetworkError("drive download of "+contentID+" failed", err)
	}
	f.logger.DebugContext(ctx, "Drive download started",
		slog.String("content_id", contentID),
		slog.Int64("content_length", resp.ContentLength))
	return resp.Body, resp.ContentLength, nil
}
