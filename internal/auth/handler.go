package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/internal/session"
)

// SnapshotProvider reloads and drops cached session snapshots.
type SnapshotProvider interface {
	Refresh(ctx context.Context, userID string) (session.Snapshot, error)
	Invalidate(ctx context.Context, userID string) error
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *session.Manager
	csrf           *session.CSRF
	provider       SnapshotProvider
	tokens         *TokenIssuer
	loginLimit     int
	validator      *validator.Validate
}

// HandlerConfig groups Handler dependencies.
type HandlerConfig struct {
	Logger         *slog.Logger
	Service        *Service
	SessionManager *session.Manager
	CSRF           *session.CSRF
	Provider       SnapshotProvider
	Tokens         *TokenIssuer
	LoginLimit     int
}

// NewHandler constructs a Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        cfg.Service,
		sessionManager: cfg.SessionManager,
		csrf:           cfg.CSRF,
		provider:       cfg.Provider,
		tokens:         cfg.Tokens,
		loginLimit:     cfg.LoginLimit,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.csrfToken)
	r.Group(func(r chi.Router) {
		if h.loginLimit > 0 {
			r.Use(httprate.Limit(h.loginLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "too many login attempts")
				})))
		}
		r.Post("/login", h.handleLogin)
	})
	r.Post("/logout", h.handleLogout)
	r.Post("/refresh", h.handleRefresh)
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type tokenResponse struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expiresAt"`
	CSRFToken string             `json:"csrfToken,omitempty"`
	User      rbac.PrincipalView `json:"user"`
}

func (h *Handler) csrfToken(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	token, err := h.csrf.EnsureToken(sess)
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	ctx := r.Context()
	cred, err := h.service.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			h.logger.Error("authenticate", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid username or password")
		return
	}

	snap, err := h.provider.Refresh(ctx, cred.ID)
	if err != nil {
		h.logger.Error("load session snapshot", slog.String("user", cred.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	if !snap.IsAuthenticated {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid username or password")
		return
	}

	var csrfToken string
	if sess := session.FromContext(ctx); sess != nil {
		if err := h.sessionManager.Renew(ctx, sess); err != nil {
			h.logger.Error("renew session", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
			return
		}
		sess.SetUser(cred.ID)
		sess.Delete(session.CSRFSessionKey)
		csrfToken, _ = h.csrf.EnsureToken(sess)
	} else {
		h.logger.Warn("session missing during login")
	}

	if err := h.service.RecordLogin(ctx, cred.ID); err != nil {
		h.logger.Warn("record login", slog.String("user", cred.ID), slog.Any("error", err))
	}

	h.logger.Info("user logged in", slog.String("user", cred.ID), slog.String("role", snap.User.HighestRole()))
	h.respondToken(w, snap.User, csrfToken)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if p := rbac.PrincipalFromContext(ctx); p != nil {
		if err := h.provider.Invalidate(ctx, p.ID()); err != nil {
			h.logger.Warn("invalidate snapshot", slog.String("user", p.ID()), slog.Any("error", err))
		}
	}
	if sess := session.FromContext(ctx); sess != nil {
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := rbac.PrincipalFromContext(ctx)
	if p == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	snap, err := h.provider.Refresh(ctx, p.ID())
	if err != nil {
		h.logger.Error("refresh snapshot", slog.String("user", p.ID()), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	if !snap.IsAuthenticated {
		if sess := session.FromContext(ctx); sess != nil {
			h.sessionManager.Destroy(sess)
		}
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "account no longer active")
		return
	}
	h.respondToken(w, snap.User, "")
}

func (h *Handler) respondToken(w http.ResponseWriter, p *rbac.Principal, csrfToken string) {
	token, expires, err := h.tokens.Issue(p.ID(), p.CabangID())
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expires,
		CSRFToken: csrfToken,
		User:      rbac.NewPrincipalView(p),
	})
}
