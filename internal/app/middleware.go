package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/samudra-erp/samudra-erp/internal/auth"
	"github.com/samudra-erp/samudra-erp/internal/observability"
	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/internal/session"
)

// SnapshotSource resolves the session snapshot for a user id.
type SnapshotSource interface {
	Snapshot(ctx context.Context, userID string) (session.Snapshot, error)
}

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *session.Manager
	CSRF           *session.CSRF
	Snapshots      SnapshotSource
	Tokens         *auth.TokenIssuer
	Metrics        *observability.Metrics
}

type bearerContextKey struct{}

type responseWriterWithCommit struct {
	http.ResponseWriter
	sess          *session.Session
	manager       *session.Manager
	ctx           context.Context
	logger        *slog.Logger
	headerWritten bool
}

func (w *responseWriterWithCommit) WriteHeader(statusCode int) {
	if !w.headerWritten {
		w.headerWritten = true
		if err := w.manager.Commit(w.ctx, w.ResponseWriter, w.sess); err != nil {
			w.logger.Error("commit session", slog.Any("error", err))
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWithCommit) Write(data []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(data)
}

// MiddlewareStack installs the Samudra middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		FeaturePolicy:         "none",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		cors.Handler(corsOptions(cfg.Config)),
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return append(middlewares,
		SessionMiddleware(cfg),
		PrincipalMiddleware(cfg),
		CSRFMiddleware(cfg),
	)
}

func corsOptions(cfg *Config) cors.Options {
	origins := []string{"http://localhost:5173"}
	if cfg != nil && len(cfg.CORSAllowedOrigins) > 0 {
		origins = cfg.CORSAllowedOrigins
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", session.CSRFHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// SessionMiddleware loads the cookie session and commits it before the
// first byte of the response.
func SessionMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess, err := cfg.SessionManager.Load(ctx, r)
			if err != nil {
				cfg.Logger.Error("failed to load session", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			ctx = session.ContextWithSession(ctx, sess)
			wrapped := &responseWriterWithCommit{
				ResponseWriter: w,
				sess:           sess,
				manager:        cfg.SessionManager,
				ctx:            ctx,
				logger:         cfg.Logger,
			}
			next.ServeHTTP(wrapped, r.WithContext(ctx))
			if !wrapped.headerWritten {
				wrapped.WriteHeader(http.StatusOK)
			}
		})
	}
}

// PrincipalMiddleware resolves the session user from a bearer token or the
// cookie session and stores the snapshot on the request context. Requests
// whose user cannot be resolved continue anonymously.
func PrincipalMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var userID string
			if raw := auth.BearerToken(r); raw != "" && cfg.Tokens != nil {
				claims, err := cfg.Tokens.Verify(raw)
				if err != nil {
					cfg.Logger.Debug("reject bearer token", slog.Any("error", err))
					httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
					return
				}
				userID = claims.Subject
				ctx = context.WithValue(ctx, bearerContextKey{}, true)
			} else if sess := session.FromContext(ctx); sess != nil {
				userID = sess.User()
			}

			if userID == "" {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			snap, err := cfg.Snapshots.Snapshot(ctx, userID)
			switch {
			case err != nil:
				cfg.Metrics.RecordSnapshot("error")
				cfg.Logger.Error("load session snapshot", slog.String("user", userID), slog.Any("error", err))
			case snap.IsAuthenticated:
				cfg.Metrics.RecordSnapshot("authenticated")
				ctx = session.ContextWithSnapshot(ctx, snap)
				ctx = rbac.ContextWithPrincipal(ctx, snap.User)
			default:
				cfg.Metrics.RecordSnapshot("anonymous")
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CSRFMiddleware verifies the session token on unsafe methods. Bearer
// authenticated requests carry no ambient credentials and are exempt.
func CSRFMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if bearer, _ := r.Context().Value(bearerContextKey{}).(bool); bearer {
				next.ServeHTTP(w, r)
				return
			}
			err := cfg.CSRF.VerifyToken(session.FromContext(r.Context()), r.Header.Get(session.CSRFHeader))
			if err != nil {
				level := slog.LevelWarn
				if errors.Is(err, session.ErrCSRFTokenMissing) {
					level = slog.LevelDebug
				}
				cfg.Logger.Log(r.Context(), level, "csrf validation failed", slog.String("path", r.URL.Path))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "invalid csrf token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
