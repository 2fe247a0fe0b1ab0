package menus

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
)

// Handler serves the sidebar endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers menu routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAuthenticated)
	r.Get("/", h.tree)
	r.Get("/{id}/access", h.access)
}

func (h *Handler) tree(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.service.Tree(r.Context(), rbac.PrincipalFromContext(r.Context()))
	if err != nil {
		h.logger.Error("build menu tree failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": nodes})
}

type accessResponse struct {
	MenuID string          `json:"menuId"`
	Access rbac.MenuAccess `json:"access"`
	Rule   rbac.Rule       `json:"rule"`
}

func (h *Handler) access(w http.ResponseWriter, r *http.Request) {
	menuID := chi.URLParam(r, "id")
	access, decision, err := h.service.Access(r.Context(), rbac.PrincipalFromContext(r.Context()), menuID)
	if err != nil {
		if httpx.StatusFor(err) == http.StatusInternalServerError {
			h.logger.Error("menu access failed", slog.String("menu", menuID), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accessResponse{MenuID: menuID, Access: access, Rule: decision.Rule})
}
