package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

// QueryHandler serves the read-only entitlement query
type QueryHandler struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(catalog Catalog, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{
		catalog: catalog,
		logger:  logger.With(slog.String("handler", "query")),
	}
}

// GetMods handles GET /api/mods?email= and the legacy /get_mods.
// It returns the visible entries including locators and serial keys.
func (h *QueryHandler) GetMods(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		render.Render(w, r, apperrors.NewErrorResponse(apperrors.MissingParameter("Email parameter is required.")))
		return
	}

	mods, err := h.catalog.VisibleMods(r.Context(), email)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to resolve visible mods",
			slog.String("error", err.Error()))
		apperrors.RenderError(w, r, err)
		return
	}
	if mods == nil {
		mods = []domain.CatalogEntry{}
	}
	render.JSON(w, r, mods)
}
