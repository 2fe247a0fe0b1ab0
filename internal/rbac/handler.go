package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
)

// Handler exposes the evaluator to the SPA guard components.
type Handler struct {
	logger    *slog.Logger
	recorder  Recorder
	rbac      Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, recorder Recorder, rbac Middleware) *Handler {
	return &Handler{logger: logger, recorder: recorder, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers access routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated)
		r.Get("/me", h.me)
		r.Post("/check", h.checkAccess)
		r.Post("/roles", h.checkRoles)
		r.Post("/permissions", h.checkPermissions)
	})
	r.Get("/hierarchy", h.hierarchy)
}

// PrincipalView is the JSON shape of a session user.
type PrincipalView struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Name        string   `json:"name"`
	CabangID    string   `json:"cabangId,omitempty"`
	Roles       []Role   `json:"roles"`
	PrimaryRole string   `json:"primaryRole,omitempty"`
	HighestRole string   `json:"highestRole,omitempty"`
	Permissions []string `json:"permissions"`
	IsAdmin     bool     `json:"isAdmin"`
}

// NewPrincipalView renders the normalized session user.
func NewPrincipalView(p *Principal) PrincipalView {
	view := PrincipalView{
		ID:          p.ID(),
		Username:    p.Username(),
		Name:        p.Name(),
		CabangID:    p.CabangID(),
		Roles:       p.Roles(),
		HighestRole: p.HighestRole(),
		Permissions: p.Permissions(),
		IsAdmin:     IsAdmin(p),
	}
	if primary, ok := p.PrimaryRole(); ok {
		view.PrimaryRole = primary.Code
	}
	if view.Roles == nil {
		view.Roles = []Role{}
	}
	if view.Permissions == nil {
		view.Permissions = []string{}
	}
	return view
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, NewPrincipalView(PrincipalFromContext(r.Context())))
}

type accessRequest struct {
	Resource     string        `json:"resource" validate:"required,max=64"`
	Action       string        `json:"action" validate:"required,max=32"`
	ResourceData *ResourceData `json:"resourceData"`
}

func (h *Handler) checkAccess(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if !h.decode(w, r, &req) {
		return
	}
	decision := CheckAccess(PrincipalFromContext(r.Context()), req.Resource, req.Action, req.ResourceData)
	h.record("access", decision)
	httpx.JSON(w, http.StatusOK, decision)
}

type rolesRequest struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,required"`
}

func (h *Handler) checkRoles(w http.ResponseWriter, r *http.Request) {
	var req rolesRequest
	if !h.decode(w, r, &req) {
		return
	}
	decision := CheckRole(PrincipalFromContext(r.Context()), req.Roles...)
	h.record("role", decision)
	httpx.JSON(w, http.StatusOK, decision)
}

type permissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,min=1,dive,required"`
	Mode        string   `json:"mode" validate:"omitempty,oneof=any all"`
}

func (h *Handler) checkPermissions(w http.ResponseWriter, r *http.Request) {
	var req permissionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := PrincipalFromContext(r.Context())
	var granted bool
	if req.Mode == "all" {
		granted = HasAllPermissions(p, req.Permissions...)
	} else {
		granted = HasPermission(p, req.Permissions...)
	}
	decision := deny(RuleNoMatch)
	if granted {
		decision = grant(RulePermission)
	}
	h.record("permission_"+defaultMode(req.Mode), decision)
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) hierarchy(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": RoleHierarchy()})
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

func (h *Handler) record(check string, d Decision) {
	if h.recorder != nil {
		h.recorder.RecordDecision(check, d)
	}
	if !d.Granted && h.logger != nil {
		h.logger.Debug("access check denied", slog.String("check", check), slog.String("rule", string(d.Rule)))
	}
}

func defaultMode(mode string) string {
	if mode == "" {
		return "any"
	}
	return mode
}
