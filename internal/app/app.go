package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lynx96-creator/ets2-mod-api/internal/config"
	"github.com/Lynx96-creator/ets2-mod-api/internal/infrastructure"
	"github.com/Lynx96-creator/ets2-mod-api/internal/middleware"
	handlers "github.com/Lynx96-creator/ets2-mod-api/internal/transport/http"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts"
)

// Application is the HTTP agent: the services plus the server exposing them
type Application struct {
	*Services
	Router http.Handler
	Server *http.Server
}

// NewApplication loads the configuration, initializes logging and builds the
// application
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	services, err := NewServices(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(services)
}

// New builds the router and server around services
func New(services *Services) (*Application, error) {
	cfg := services.Config
	logger := services.Logger

	telemetry, err := middleware.NewOTelMiddleware(services.OTel)
	if err != nil {
		return nil, err
	}

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, logger)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Query: handlers.NewQueryHandler(services.Catalog, logger),
		Agent: handlers.NewAgentHandler(services.License, services.Tokens, services.Catalog,
			services.Installer, services.Sessions, services.Hub, logger),
		Health: handlers.NewHealthHandler(map[string]handlers.ReadinessCheck{
			"store": services.StoreReady,
		}, logger),
		Metrics:     services.OTel.PrometheusHTTP,
		Tokens:      services.Tokens,
		QueryAPIKey: cfg.Server.QueryAPIKey,
		RateLimiter: limiter,
		Telemetry:   telemetry,
		Logger:      logger,
	})

	return &Application{
		Services: services,
		Router:   router,
		Server: &http.Server{
			Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}, nil
}

// Run serves until ctx is cancelled or the server fails, then shuts down
func (a *Application) Run(ctx context.Context) error {
	a.Hub.Start()

	a.Logger.InfoContext(ctx, "Starting mod agent",
		slog.String("version", contracts.Version),
		slog.String("address", a.Server.Addr),
		slog.String("store", a.Config.Store.Driver),
		slog.String("install_root", a.Config.Install.InstallRoot))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops accepting requests, waits for in-flight sessions and stops
// the event hub
func (a *Application) Shutdown(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down mod agent")

	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	start := time.Now()
	if err := a.Sessions.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for sessions: %w", err))
	}
	a.Logger.InfoContext(ctx, "Sessions drained", slog.Duration("waited", time.Since(start)))

	a.Hub.Stop()

	if err := a.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	a.Logger.InfoContext(ctx, "Shutdown complete")
	return errors.Join(errs...)
}
