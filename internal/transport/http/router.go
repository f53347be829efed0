package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/Lynx96-creator/ets2-mod-api/internal/middleware"
)

// RouterConfig collects the handlers and guards the router mounts
type RouterConfig struct {
	Query   *QueryHandler
	Agent   *AgentHandler
	Health  *HealthHandler
	Metrics http.Handler // optional Prometheus handler

	Tokens      middleware.TokenParser
	QueryAPIKey string
	RateLimiter *middleware.RateLimiter    // optional
	Telemetry   *middleware.OTelMiddleware // optional

	Logger *slog.Logger
}

// NewRouter builds the full route tree
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.Telemetry != nil {
		r.Use(cfg.Telemetry.Handler)
	}
	r.Use(middleware.StructuredLogger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Handler)
	}

	r.Get("/healthz", cfg.Health.Health)
	r.Get("/readyz", cfg.Health.Ready)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	// compatibility path of the original query service
	r.With(middleware.APIKey(cfg.QueryAPIKey, cfg.Logger)).Get("/get_mods", cfg.Query.GetMods)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/version", cfg.Health.Version)
		r.With(middleware.APIKey(cfg.QueryAPIKey, cfg.Logger)).Get("/mods", cfg.Query.GetMods)
		r.Post("/session", cfg.Agent.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.SessionAuth(cfg.Tokens, cfg.Logger))

			r.Get("/me/mods", cfg.Agent.ListMods)
			r.Post("/mods/{name}/install", cfg.Agent.Install)
			r.Delete("/mods/{name}", cfg.Agent.Uninstall)
			r.Get("/sessions", cfg.Agent.ListSessions)
			r.Get("/events", cfg.Agent.Events)
		})
	})

	return r
}
