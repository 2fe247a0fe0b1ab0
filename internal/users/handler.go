package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/internal/shared"
)

const resourceEmployee = "employee"

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAuthenticated)
	r.Get("/", h.listUsers)
	r.With(h.rbac.RequireAccess(resourceEmployee, "view", h.loadUser)).Get("/{id}", h.getUser)
	r.With(h.rbac.RequireAccess(resourceEmployee, "edit", h.loadUser)).Put("/{id}/roles", h.assignRoles)
}

func (h *Handler) loadUser(r *http.Request) (*rbac.ResourceData, error) {
	return h.service.ResourceData(r.Context(), chi.URLParam(r, "id"))
}

type listResponse struct {
	Items      []Summary         `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// listUsers shows every account to callers with unscoped or global access
// and narrows branch-scoped callers to their own cabang.
func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	filters := shared.ParseListFilters(r)

	decision := rbac.CheckAccess(p, resourceEmployee, "view", nil)
	if !decision.Granted {
		decision = rbac.CheckAccess(p, resourceEmployee, "view", &rbac.ResourceData{CabangID: p.CabangID()})
		if !decision.Granted {
			h.record("employee_list", decision)
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
			return
		}
		filters.CabangID = p.CabangID()
	}
	h.record("employee_list", decision)

	items, page, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, Pagination: page})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

type assignRolesRequest struct {
	Roles []RoleAssignment `json:"roles" validate:"required,min=1,max=12,dive"`
}

func (h *Handler) assignRoles(w http.ResponseWriter, r *http.Request) {
	var req assignRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	actor := rbac.PrincipalFromContext(r.Context())
	if !rbac.IsAdmin(actor) {
		for _, role := range req.Roles {
			if !rbac.HasRole(actor, role.Code) {
				h.record("role_grant", rbac.CheckRole(actor, role.Code))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "cannot grant a role above your own")
				return
			}
		}
	}

	userID := chi.URLParam(r, "id")
	assigned, err := h.service.AssignRoles(r.Context(), actor.ID(), userID, req.Roles)
	if err != nil {
		if httpx.StatusFor(err) == http.StatusInternalServerError {
			h.logger.Error("assign roles failed", slog.String("user", userID), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": userID, "roles": assigned})
}

func (h *Handler) record(check string, d rbac.Decision) {
	if h.rbac.Recorder != nil {
		h.rbac.Recorder.RecordDecision(check, d)
	}
}
