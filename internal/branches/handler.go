package branches

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/internal/shared"
)

const resourceBranch = "branch"

// Handler serves branch endpoints.
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

// MountRoutes registers branch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAuthenticated)
	r.Get("/", h.list)
	r.With(h.rbac.RequireAccess(resourceBranch, "create", nil)).Post("/", h.create)
	r.With(h.rbac.RequireAccess(resourceBranch, "view", h.loadBranch)).Get("/{id}", h.show)
	r.With(h.rbac.RequireAccess(resourceBranch, "edit", h.loadBranch)).Put("/{id}", h.update)
}

func (h *Handler) loadBranch(r *http.Request) (*rbac.ResourceData, error) {
	return h.service.ResourceData(r.Context(), chi.URLParam(r, "id"))
}

type listResponse struct {
	Items      []Branch          `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// list returns every branch to callers with unscoped or global access and
// only the caller's own cabang to branch-scoped callers.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	filters := shared.ParseListFilters(r)

	decision := rbac.CheckAccess(p, resourceBranch, "view", nil)
	if !decision.Granted {
		decision = rbac.CheckAccess(p, resourceBranch, "view", &rbac.ResourceData{ID: p.CabangID()})
		h.record(decision)
		if !decision.Granted {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
			return
		}
		filters.CabangID = p.CabangID()
	} else {
		h.record(decision)
	}

	items, page, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list branches failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, Pagination: page})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	branch, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, branch)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form BranchForm
	if !h.decode(w, r, &form) {
		return
	}
	created, err := h.service.Create(r.Context(), form)
	if err != nil {
		h.fail(w, "create branch failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var form BranchForm
	if !h.decode(w, r, &form) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.service.Update(r.Context(), id, form); err != nil {
		h.fail(w, "update branch failed", err)
		return
	}
	branch, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "reload branch failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, branch)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) record(d rbac.Decision) {
	if h.rbac.Recorder != nil {
		h.rbac.Recorder.RecordDecision("branch_list", d)
	}
}
