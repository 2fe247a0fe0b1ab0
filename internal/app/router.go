package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/samudra-erp/samudra-erp/internal/audit"
	"github.com/samudra-erp/samudra-erp/internal/auth"
	"github.com/samudra-erp/samudra-erp/internal/branches"
	"github.com/samudra-erp/samudra-erp/internal/menus"
	"github.com/samudra-erp/samudra-erp/internal/observability"
	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/internal/roles"
	"github.com/samudra-erp/samudra-erp/internal/users"
	"github.com/samudra-erp/samudra-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Middleware      MiddlewareConfig
	AuthHandler     *auth.Handler
	AccessHandler   *rbac.Handler
	UsersHandler    *users.Handler
	RolesHandler    *roles.Handler
	MenusHandler    *menus.Handler
	BranchesHandler *branches.Handler
	AuditHandler    *audit.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Samudra defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(params.Middleware) {
			r.Use(mw)
		}
		r.Use(chimw.Logger)

		r.Route("/api", func(r chi.Router) {
			r.Route("/auth", params.AuthHandler.MountRoutes)
			r.Route("/access", params.AccessHandler.MountRoutes)
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.RolesHandler != nil {
				r.Route("/roles", params.RolesHandler.MountRoutes)
			}
			if params.MenusHandler != nil {
				r.Route("/menus", params.MenusHandler.MountRoutes)
			}
			if params.BranchesHandler != nil {
				r.Route("/branches", params.BranchesHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit", params.AuditHandler.MountRoutes)
			}
			r.NotFound(func(w http.ResponseWriter, r *http.Request) {
				httpx.Problem(w, http.StatusNotFound, "Not Found", "")
			})
		})
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
