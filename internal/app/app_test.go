package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samudra-erp/samudra-erp/internal/auth"
	"github.com/samudra-erp/samudra-erp/internal/observability"
	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/internal/session"
	_ "github.com/samudra-erp/samudra-erp/internal/testing/guard"
)

type mapLoader map[string]rbac.User

func (m mapLoader) Record(ctx context.Context, userID string) (rbac.User, error) {
	user, ok := m[userID]
	if !ok {
		return rbac.User{}, httpx.ErrNotFound
	}
	return user, nil
}

type harness struct {
	handler http.Handler
	manager *session.Manager
	csrf    *session.CSRF
	tokens  *auth.TokenIssuer
	metrics *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	loader := mapLoader{
		"u1": {ID: "u1", Username: "budi", Name: "Budi", CabangID: "jkt",
			Roles: []rbac.Role{{Code: rbac.RoleKasir, IsPrimary: true}}, Permissions: []string{"view_stt"}},
	}
	manager := session.NewManager(client, "samudra_session", "session-secret", time.Hour, false)
	csrf := session.NewCSRF("csrf-secret")
	provider := session.NewProvider(client, loader, session.NewMenuMemo(client, time.Hour), time.Minute, nil)
	tokens := auth.NewTokenIssuer("jwt-secret-0123456789", "samudra-erp", time.Hour)
	metrics := observability.NewMetrics()
	access := rbac.Middleware{Recorder: metrics}

	handler := NewRouter(RouterParams{
		Middleware: MiddlewareConfig{
			SessionManager: manager,
			CSRF:           csrf,
			Snapshots:      provider,
			Tokens:         tokens,
			Metrics:        metrics,
		},
		AuthHandler:   auth.NewHandler(auth.HandlerConfig{SessionManager: manager, CSRF: csrf, Provider: provider, Tokens: tokens}),
		AccessHandler: rbac.NewHandler(nil, metrics, access),
		Metrics:       metrics,
	})
	return &harness{handler: handler, manager: manager, csrf: csrf, tokens: tokens, metrics: metrics}
}

// loginCookie persists a session for userID and returns its cookie and csrf token.
func (h *harness) loginCookie(t *testing.T, userID string) (*http.Cookie, string) {
	t.Helper()
	ctx := context.Background()
	sess, err := h.manager.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser(userID)
	token, err := h.csrf.EnsureToken(sess)
	require.NoError(t, err)
	res := httptest.NewRecorder()
	require.NoError(t, h.manager.Commit(ctx, res, sess))
	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0], token
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	h.handler.ServeHTTP(res, req)
	return res
}

func checkBody() *strings.Reader {
	return strings.NewReader(`{"resource":"stt","action":"view"}`)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	res := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok"}`, res.Body.String())
}

func TestAnonymousRequestIsUnauthorized(t *testing.T) {
	h := newHarness(t)
	res := h.do(httptest.NewRequest(http.MethodGet, "/api/access/me", nil))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestBearerTokenResolvesPrincipal(t *testing.T) {
	h := newHarness(t)
	token, _, err := h.tokens.Issue("u1", "jkt")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/access/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := h.do(req)
	require.Equal(t, http.StatusOK, res.Code)

	var view rbac.PrincipalView
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &view))
	assert.Equal(t, "u1", view.ID)
	assert.Equal(t, rbac.RoleKasir, view.PrimaryRole)
	assert.Equal(t, []string{"view_stt"}, view.Permissions)
}

func TestInvalidBearerTokenRejected(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/api/access/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, h.do(req).Code)
}

func TestBearerForUnknownUserIsAnonymous(t *testing.T) {
	h := newHarness(t)
	token, _, err := h.tokens.Issue("ghost", "")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/access/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, h.do(req).Code)
}

func TestCookieSessionRequiresCSRFOnUnsafeMethods(t *testing.T) {
	h := newHarness(t)
	cookie, csrfToken := h.loginCookie(t, "u1")

	get := httptest.NewRequest(http.MethodGet, "/api/access/me", nil)
	get.AddCookie(cookie)
	assert.Equal(t, http.StatusOK, h.do(get).Code)

	missing := httptest.NewRequest(http.MethodPost, "/api/access/check", checkBody())
	missing.AddCookie(cookie)
	assert.Equal(t, http.StatusForbidden, h.do(missing).Code)

	wrong := httptest.NewRequest(http.MethodPost, "/api/access/check", checkBody())
	wrong.AddCookie(cookie)
	wrong.Header.Set(session.CSRFHeader, "forged")
	assert.Equal(t, http.StatusForbidden, h.do(wrong).Code)

	ok := httptest.NewRequest(http.MethodPost, "/api/access/check", checkBody())
	ok.AddCookie(cookie)
	ok.Header.Set(session.CSRFHeader, csrfToken)
	res := h.do(ok)
	require.Equal(t, http.StatusOK, res.Code)
	var decision rbac.Decision
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &decision))
	assert.Equal(t, rbac.Decision{Granted: true, Rule: rbac.RuleResource}, decision)
}

func TestBearerRequestsSkipCSRF(t *testing.T) {
	h := newHarness(t)
	token, _, err := h.tokens.Issue("u1", "jkt")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/access/check", checkBody())
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, h.do(req).Code)
}

func TestSessionCookieIssuedOnFirstVisit(t *testing.T) {
	h := newHarness(t)
	res := h.do(httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil))
	require.Equal(t, http.StatusOK, res.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.NotEmpty(t, body["csrfToken"])

	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "samudra_session", cookies[0].Name)
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "csrf")
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("SESSION_SECRET", "session")
	t.Setenv("JWT_SECRET", "short")
	_, err = LoadConfig()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("SNAPSHOT_TTL", "5m")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.SnapshotTTL)
	assert.Equal(t, "samudra-erp", cfg.JWTIssuer)
	assert.False(t, cfg.IsProduction())
}

func TestCORSPreflightAllowsConfiguredOrigin(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/access/check", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", session.CSRFHeader)
	res := h.do(req)
	assert.Equal(t, "http://localhost:5173", res.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", res.Header().Get("Access-Control-Allow-Credentials"))

	other := httptest.NewRequest(http.MethodOptions, "/api/access/check", nil)
	other.Header.Set("Origin", "https://evil.example")
	other.Header.Set("Access-Control-Request-Method", http.MethodPost)
	assert.Empty(t, h.do(other).Header().Get("Access-Control-Allow-Origin"))
}

func TestGuardEnablesTestMode(t *testing.T) {
	assert.True(t, InTestMode())
}
