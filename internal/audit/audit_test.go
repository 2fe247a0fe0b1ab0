package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/internal/shared"
)

type stubRepo struct {
	rows       []TimelineRow
	lastOffset int
	lastLimit  int
	lastFilter TimelineFilters
}

func (s *stubRepo) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	s.lastFilter, s.lastOffset, s.lastLimit = filters, offset, limit
	end := min(offset+limit, len(s.rows))
	if offset >= end {
		return nil, nil
	}
	return s.rows[offset:end], nil
}

func (s *stubRepo) All(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	s.lastFilter = filters
	return s.rows, nil
}

func sampleRows() []TimelineRow {
	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	return []TimelineRow{
		{At: at, Actor: "usr-direktur", Action: "assign_roles", Entity: "user", EntityID: "u1", Meta: map[string]any{"roles": []any{"kasir"}}},
		{At: at.Add(-time.Hour), Actor: "usr-direktur", Action: "set_permissions", Entity: "role", EntityID: "kasir"},
		{At: at.Add(-2 * time.Hour), Action: "create", Entity: "branch", EntityID: "cab-jkt"},
	}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubRepo{rows: sampleRows()}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.Equal(t, PagingInfo{Page: 1, PageSize: 2, HasNext: true, NextPage: 2}, result.Paging)
	assert.Equal(t, 0, repo.lastOffset)
	assert.Equal(t, 3, repo.lastLimit)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
	assert.Equal(t, PagingInfo{Page: 2, PageSize: 2, PrevPage: 1}, result.Paging)
}

func TestServiceTimelineCapsPageSize(t *testing.T) {
	repo := &stubRepo{}
	result, err := NewService(repo).Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize+1, repo.lastLimit)
	assert.NotNil(t, result.Rows)
}

func TestWriteCSV(t *testing.T) {
	body, err := WriteCSV(sampleRows())
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"at", "actor_id", "action", "entity", "entity_id", "meta"}, records[0])
	assert.Equal(t, []string{"2026-03-10T10:00:00Z", "usr-direktur", "assign_roles", "user", "u1", `{"roles":["kasir"]}`}, records[1])
	assert.Equal(t, "", records[3][1])
}

func newRouter(t *testing.T, repo *stubRepo, perms ...string) http.Handler {
	t.Helper()
	h := NewHandler(nil, NewService(repo), rbac.Middleware{})
	h.now = func() time.Time { return time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := rbac.NewPrincipal(rbac.User{ID: "u9", Roles: []rbac.Role{{Code: rbac.RoleManager, IsPrimary: true}}, Permissions: perms})
			next.ServeHTTP(w, req.WithContext(rbac.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/api/audit", h.MountRoutes)
	return r
}

func TestHandlerTimeline(t *testing.T) {
	repo := &stubRepo{rows: sampleRows()}
	router := newRouter(t, repo, shared.PermViewAudit)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/audit/?entity=user&page_size=1", nil))
	require.Equal(t, http.StatusOK, res.Code)

	var body Result
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Len(t, body.Rows, 1)
	assert.True(t, body.Paging.HasNext)
	assert.Equal(t, "user", repo.lastFilter.Entity)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), repo.lastFilter.To)
	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), repo.lastFilter.From)
}

func TestHandlerRejectsBadFilters(t *testing.T) {
	router := newRouter(t, &stubRepo{}, shared.PermViewAudit)
	for _, q := range []string{"from=2026-03-20&to=2026-03-01", "from=2025-01-01&to=2026-03-01", "to=yesterday", "page=0", "page_size=x"} {
		res := httptest.NewRecorder()
		router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/audit/?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, res.Code, q)
	}
}

func TestHandlerRequiresPermission(t *testing.T) {
	router := newRouter(t, &stubRepo{}, "view_branch_stts")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/audit/", nil))
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestHandlerExportCSV(t *testing.T) {
	router := newRouter(t, &stubRepo{rows: sampleRows()}, shared.PermAdminAccess)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/audit/export.csv", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "text/csv; charset=utf-8", res.Header().Get("Content-Type"))
	assert.Equal(t, 4, strings.Count(res.Body.String(), "\n"))
}
