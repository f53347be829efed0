package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lynx96-creator/ets2-mod-api/internal/catalog"
	"github.com/Lynx96-creator/ets2-mod-api/internal/config"
	"github.com/Lynx96-creator/ets2-mod-api/internal/infrastructure"
	"github.com/Lynx96-creator/ets2-mod-api/internal/installer"
	"github.com/Lynx96-creator/ets2-mod-api/internal/license"
	"github.com/Lynx96-creator/ets2-mod-api/internal/security"
	"github.com/Lynx96-creator/ets2-mod-api/internal/session"
	"github.com/Lynx96-creator/ets2-mod-api/internal/store"
	ws "github.com/Lynx96-creator/ets2-mod-api/internal/websocket"
)

// Services is the dependency graph shared by the HTTP agent and the CLI
type Services struct {
	Config    *config.Config
	Logger    *slog.Logger
	OTel      *infrastructure.OTelProviders
	Store     store.RecordStore
	Device    license.Fingerprinter
	License   *license.Manager
	Catalog   *catalog.Resolver
	Installer *installer.Installer
	Hub       *ws.Hub
	Sessions  *session.Coordinator
	Tokens    *security.TokenIssuer
}

// Option adjusts how services are built
type Option func(*buildOptions)

type buildOptions struct {
	records store.RecordStore
	device  license.Fingerprinter
	fetcher installer.Fetcher
}

// WithStore uses records instead of opening the configured driver
func WithStore(records store.RecordStore) Option {
	return func(o *buildOptions) { o.records = records }
}

// WithFingerprinter replaces the MAC address based device fingerprint
func WithFingerprinter(device license.Fingerprinter) Option {
	return func(o *buildOptions) { o.device = device }
}

// WithFetcher replaces the configured artifact fetcher
func WithFetcher(fetcher installer.Fetcher) Option {
	return func(o *buildOptions) { o.fetcher = fetcher }
}

// NewServices builds every service from cfg
func NewServices(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Services, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	s := &Services{
		Config: cfg,
		Logger: logger,
		OTel:   providers,
		Store:  o.records,
		Device: o.device,
		Tokens: security.NewTokenIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer),
	}

	if s.Store == nil {
		if s.Store, err = store.Open(ctx, cfg.Store, logger); err != nil {
			return nil, fmt.Errorf("failed to open record store: %w", err)
		}
	}
	if s.Device == nil {
		s.Device = security.NewFingerprintManager(logger)
	}

	licenseMetrics, err := license.InitializeLicenseMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize license metrics: %w", err)
	}
	s.License = license.NewManager(s.Store, s.Device, logger, license.WithMetrics(licenseMetrics))
	s.Catalog = catalog.NewResolver(s.License, s.Store, logger)

	fetcher := o.fetcher
	if fetcher == nil {
		if fetcher, err = newFetcher(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}
	installerMetrics, err := installer.InitializeInstallerMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize installer metrics: %w", err)
	}
	s.Installer = installer.NewInstaller(cfg.Install, fetcher, installer.NewFileProtector(cfg.Install.Protect), logger,
		installer.WithMetrics(installerMetrics))

	hubMetrics, err := ws.InitializeHubMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize websocket metrics: %w", err)
	}
	s.Hub = ws.NewHub(logger, hubMetrics)

	s.Sessions = session.NewCoordinator(s.License, s.Catalog, s.Installer, logger,
		session.WithBroadcaster(s.Hub),
		session.WithRefresh(s.refreshMods))

	return s, nil
}

// newFetcher creates the artifact fetcher selected by cfg.Install.Fetcher
func newFetcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (installer.Fetcher, error) {
	switch cfg.Install.Fetcher {
	case config.FetcherDrive:
		fetcher, err := installer.NewDriveFetcher(ctx, cfg.Store.CredentialsFile, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create drive fetcher: %w", err)
		}
		return fetcher, nil
	default:
		// the installer applies DownloadTimeout per attempt
		return installer.NewHTTPFetcher(&http.Client{}, cfg.Install.DownloadBaseURL, logger), nil
	}
}

// refreshMods pushes the account's current mod list to its event clients
func (s *Services) refreshMods(ctx context.Context, email, reason string) {
	views, err := s.Catalog.ModViews(ctx, email, s.Installer.IsInstalled)
	if err != nil {
		s.Logger.WarnContext(ctx, "mod list refresh failed",
			slog.String("reason", reason),
			slog.String("error", err.Error()))
		views = nil
	}
	s.Hub.PublishRefresh(ctx, email, reason, views)
}

// StoreReady checks that the record store answers
func (s *Services) StoreReady(ctx context.Context) error {
	_, err := s.Store.ListCatalogEntries(ctx)
	return err
}

// Close flushes telemetry
func (s *Services) Close(ctx context.Context) error {
	return s.OTel.Shutdown(ctx)
}
