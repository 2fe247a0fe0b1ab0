package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
)

const (
	// DefaultLoginPath receives unauthenticated navigations.
	DefaultLoginPath = "/login"
	// DefaultUnauthorizedPath receives denied navigations.
	DefaultUnauthorizedPath = "/unauthorized"
)

// ResourceLoader resolves the record a request targets for scoped checks.
type ResourceLoader func(r *http.Request) (*ResourceData, error)

// Middleware wires route guards around the evaluator. The session user is
// read from the request context (see ContextWithPrincipal).
type Middleware struct {
	Logger           *slog.Logger
	Recorder         Recorder
	LoginPath        string
	UnauthorizedPath string
}

// RequireAuthenticated only lets requests with a session user through.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			m.unauthenticated(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	return m.guard("permission_any", func(p *Principal, _ *http.Request) (Decision, error) {
		if len(required) == 0 || HasPermission(p, required...) {
			return grant(RulePermission), nil
		}
		return deny(RuleNoMatch), nil
	})
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	return m.guard("permission_all", func(p *Principal, _ *http.Request) (Decision, error) {
		if len(required) == 0 || HasAllPermissions(p, required...) {
			return grant(RulePermission), nil
		}
		return deny(RuleNoMatch), nil
	})
}

// RequireRole ensures the current user ranks at or above one of the roles.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return m.guard("role", func(p *Principal, _ *http.Request) (Decision, error) {
		return CheckRole(p, roles...), nil
	})
}

// RequireAccess ensures the current user may perform action on resource. The
// loader may be nil for routes without a concrete record.
func (m Middleware) RequireAccess(resource, action string, load ResourceLoader) func(http.Handler) http.Handler {
	return m.guard("access", func(p *Principal, r *http.Request) (Decision, error) {
		var data *ResourceData
		if load != nil {
			loaded, err := load(r)
			if err != nil {
				return Decision{}, err
			}
			data = loaded
		}
		return CheckAccess(p, resource, action, data), nil
	})
}

type checkFunc func(p *Principal, r *http.Request) (Decision, error)

func (m Middleware) guard(check string, fn checkFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				m.record(check, deny(RuleNoUser))
				m.unauthenticated(w, r)
				return
			}
			decision, err := fn(p, r)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac load resource", slog.String("check", check), slog.Any("error", err))
				}
				if errors.Is(err, httpx.ErrNotFound) {
					httpx.RespondError(w, err)
					return
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			m.record(check, decision)
			if decision.Granted {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Debug("rbac denied",
					slog.String("check", check),
					slog.String("rule", string(decision.Rule)),
					slog.String("user", p.ID()),
					slog.String("path", r.URL.Path))
			}
			m.forbidden(w, r)
		})
	}
}

func (m Middleware) record(check string, d Decision) {
	if m.Recorder != nil {
		m.Recorder.RecordDecision(check, d)
	}
}

func (m Middleware) unauthenticated(w http.ResponseWriter, r *http.Request) {
	if WantsJSON(r) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	target := m.LoginPath
	if target == "" {
		target = DefaultLoginPath
	}
	if r.Method == http.MethodGet {
		target += "?" + url.Values{"next": {r.URL.RequestURI()}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (m Middleware) forbidden(w http.ResponseWriter, r *http.Request) {
	if WantsJSON(r) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
		return
	}
	target := m.UnauthorizedPath
	if target == "" {
		target = DefaultUnauthorizedPath
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// WantsJSON reports whether the caller is an API client rather than a navigation.
func WantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
