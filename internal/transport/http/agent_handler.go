package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
	"github.com/Lynx96-creator/ets2-mod-api/internal/middleware"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

const tracerName = "agent-handler"

// LoginRequest is the body of POST /api/session
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=256"`
}

// LoginResponse carries the session token
type LoginResponse struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InstallRequest is the body of POST /api/mods/{name}/install
type InstallRequest struct {
	SerialKey string `json:"serial_key" validate:"required,max=256"`
}

// SessionStarted acknowledges an accepted install or uninstall
type SessionStarted struct {
	Status string `json:"status"`
	Target string `json:"target"`
}

// AgentHandler serves the local agent API used by presentation clients
type AgentHandler struct {
	auth      Authenticator
	tokens    TokenIssuer
	catalog   Catalog
	installed InstallState
	sessions  Sessions
	events    EventStream
	validator *requestValidator
	logger    *slog.Logger
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(auth Authenticator, tokens TokenIssuer, catalog Catalog, installed InstallState, sessions Sessions, events EventStream, logger *slog.Logger) *AgentHandler {
	return &AgentHandler{
		auth:      auth,
		tokens:    tokens,
		catalog:   catalog,
		installed: installed,
		sessions:  sessions,
		events:    events,
		validator: newRequestValidator(),
		logger:    logger.With(slog.String("handler", "agent")),
	}
}

// Login handles POST /api/session
func (h *AgentHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "agent_handler.login")
	defer span.End()

	var req LoginRequest
	if err := h.validator.bind(w, r, &req); err != nil {
		apperrors.RenderError(w, r, err)
		return
	}

	sess, err := h.auth.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		span.RecordError(err)
		h.logger.WarnContext(ctx, "login rejected", slog.String("error", err.Error()))
		apperrors.RenderError(w, r, err)
		return
	}

	token, issued, err := h.tokens.Issue(sess.Email, sess.Fingerprint)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue session token", slog.String("error", err.Error()))
		apperrors.RenderError(w, r, err)
		return
	}

	render.JSON(w, r, LoginResponse{
		Token:     token,
		Email:     issued.Email,
		ExpiresAt: issued.ExpiresAt,
	})
}

// ListMods handles GET /api/me/mods
func (h *AgentHandler) ListMods(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	views, err := h.catalog.ModViews(r.Context(), sess.Email, h.installed.IsInstalled)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list mods", slog.String("error", err.Error()))
		apperrors.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, views)
}

// Install handles POST /api/mods/{name}/install
func (h *AgentHandler) Install(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "agent_handler.install",
		trace.WithAttributes(attribute.String("mod.name", name)))
	defer span.End()

	var req InstallRequest
	if err := h.validator.bind(w, r, &req); err != nil {
		apperrors.RenderError(w, r, err)
		return
	}

	if _, err := h.sessions.StartInstall(ctx, sess, name, req.SerialKey); err != nil {
		span.RecordError(err)
		h.logger.InfoContext(ctx, "install not started",
			slog.String("mod", name),
			slog.String("error", err.Error()))
		apperrors.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, SessionStarted{Status: "started", Target: name})
}

// Uninstall handles DELETE /api/mods/{name}
func (h *AgentHandler) Uninstall(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	entry, err := h.catalog.Lookup(r.Context(), sess.Email, name)
	if err != nil {
		apperrors.RenderError(w, r, err)
		return
	}

	if _, err := h.sessions.StartUninstall(r.Context(), sess, entry.InternalName); err != nil {
		h.logger.InfoContext(r.Context(), "uninstall not started",
			slog.String("mod", name),
			slog.String("error", err.Error()))
		apperrors.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, SessionStarted{Status: "started", Target: name})
}

// ListSessions handles GET /api/sessions. Only the caller's sessions are listed.
func (h *AgentHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	out := []domain.SessionSnapshot{}
	for _, snap := range h.sessions.Active() {
		if strings.EqualFold(snap.Email, sess.Email) {
			out = append(out, snap)
		}
	}
	render.JSON(w, r, out)
}

// Events handles GET /api/events
func (h *AgentHandler) Events(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.events.ServeWS(w, r, sess.Email); err != nil {
		// the upgrader has already written the response
		h.logger.WarnContext(r.Context(), "event stream not attached", slog.String("error", err.Error()))
	}
}

func (h *AgentHandler) session(w http.ResponseWriter, r *http.Request) (domain.Session, bool) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		apperrors.RenderError(w, r, apperrors.ErrUnauthorized)
	}
	return sess, ok
}
