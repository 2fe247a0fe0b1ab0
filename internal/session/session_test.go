package session_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/internal/session"
	_ "github.com/samudra-erp/samudra-erp/internal/testing/guard"
)

type stubLoader struct {
	mu    sync.Mutex
	users map[string]rbac.User
	calls atomic.Int32
	delay time.Duration
}

func (s *stubLoader) Record(ctx context.Context, userID string) (rbac.User, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return rbac.User{}, httpx.ErrNotFound
	}
	return user, nil
}

func (s *stubLoader) set(user rbac.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestManagerRoundTrip(t *testing.T) {
	_, client := newRedis(t)
	manager := session.NewManager(client, "samudra_session", "secret", time.Hour, false)
	ctx := context.Background()

	sess, err := manager.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser("u1")
	sess.Set("k", "v")

	res := httptest.NewRecorder()
	require.NoError(t, manager.Commit(ctx, res, sess))
	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sess.ID, cookies[0].Value)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	loaded, err := manager.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "u1", loaded.User())
	assert.Equal(t, "v", loaded.Get("k"))
}

func TestManagerDoesNotResurrectUnknownID(t *testing.T) {
	_, client := newRedis(t)
	manager := session.NewManager(client, "samudra_session", "secret", time.Hour, false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "samudra_session", Value: "forged"})
	sess, err := manager.Load(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, "forged", sess.ID)
	assert.Empty(t, sess.User())
}

func TestManagerRenewAndDestroy(t *testing.T) {
	mr, client := newRedis(t)
	manager := session.NewManager(client, "samudra_session", "secret", time.Hour, false)
	ctx := context.Background()

	sess, err := manager.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, manager.Commit(ctx, httptest.NewRecorder(), sess))
	oldID := sess.ID

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "samudra_session", Value: oldID})
	sess, err = manager.Load(ctx, req)
	require.NoError(t, err)
	require.NoError(t, manager.Renew(ctx, sess))
	assert.NotEqual(t, oldID, sess.ID)
	assert.False(t, mr.Exists("session:"+oldID))

	require.NoError(t, manager.Commit(ctx, httptest.NewRecorder(), sess))
	assert.True(t, mr.Exists("session:"+sess.ID))

	manager.Destroy(sess)
	res := httptest.NewRecorder()
	require.NoError(t, manager.Commit(ctx, res, sess))
	assert.False(t, mr.Exists("session:"+sess.ID))
	require.Len(t, res.Result().Cookies(), 1)
	assert.Equal(t, -1, res.Result().Cookies()[0].MaxAge)
}

func TestCSRFTokens(t *testing.T) {
	_, client := newRedis(t)
	manager := session.NewManager(client, "samudra_session", "secret", time.Hour, false)
	sess, err := manager.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	csrf := session.NewCSRF("csrfsecret")
	assert.ErrorIs(t, csrf.VerifyToken(sess, "anything"), session.ErrCSRFTokenMissing)

	token, err := csrf.EnsureToken(sess)
	require.NoError(t, err)
	again, err := csrf.EnsureToken(sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, csrf.VerifyToken(sess, token))
	assert.ErrorIs(t, csrf.VerifyToken(sess, token+"x"), session.ErrCSRFTokenMismatch)
	assert.ErrorIs(t, csrf.VerifyToken(sess, ""), session.ErrCSRFTokenMissing)
}

func TestProviderSnapshotCachesRecord(t *testing.T) {
	mr, client := newRedis(t)
	loader := &stubLoader{users: map[string]rbac.User{
		"u1": {ID: "u1", Username: "budi", Role: rbac.RoleKasir, Permissions: []string{"view_stt"}},
	}}
	provider := session.NewProvider(client, loader, session.NewMenuMemo(client, time.Hour), time.Minute, nil)
	ctx := context.Background()

	snap, err := provider.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.True(t, snap.IsAuthenticated)
	assert.Equal(t, "budi", snap.User.Username())
	assert.True(t, rbac.HasPermission(snap.User, "view_stt"))
	assert.True(t, mr.Exists("snapshot:u1"))

	_, err = provider.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, loader.calls.Load())
}

func TestProviderUnknownUserIsUnauthenticated(t *testing.T) {
	_, client := newRedis(t)
	provider := session.NewProvider(client, &stubLoader{users: map[string]rbac.User{}}, nil, time.Minute, nil)

	snap, err := provider.Snapshot(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, snap.IsAuthenticated)
	assert.Nil(t, snap.User)

	snap, err = provider.Snapshot(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, snap.IsAuthenticated)
}

func TestProviderCoalescesConcurrentLoads(t *testing.T) {
	_, client := newRedis(t)
	loader := &stubLoader{
		users: map[string]rbac.User{"u1": {ID: "u1", Role: rbac.RoleStaff}},
		delay: 50 * time.Millisecond,
	}
	provider := session.NewProvider(client, loader, nil, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := provider.Snapshot(context.Background(), "u1")
			assert.NoError(t, err)
			assert.True(t, snap.IsAuthenticated)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, loader.calls.Load())
}

func TestProviderRefreshSwapsRecordAndClearsMemo(t *testing.T) {
	mr, client := newRedis(t)
	loader := &stubLoader{users: map[string]rbac.User{
		"u1": {ID: "u1", Role: rbac.RoleStaff, Permissions: []string{"view_stt"}},
	}}
	memo := session.NewMenuMemo(client, time.Hour)
	provider := session.NewProvider(client, loader, memo, time.Minute, nil)
	ctx := context.Background()

	first, err := provider.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, memo.Store(ctx, "u1", first.User.Version(), map[string]rbac.MenuAccess{"m1": {CanView: true}}))

	loader.set(rbac.User{ID: "u1", Role: rbac.RoleManager, Permissions: []string{"view_stt", "edit_stt"}})
	snap, err := provider.Refresh(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rbac.HasPermission(snap.User, "edit_stt"))
	assert.True(t, rbac.HasRole(snap.User, rbac.RoleManager))
	assert.False(t, mr.Exists("menu_access:u1"))
	assert.EqualValues(t, 2, loader.calls.Load())
}

func TestProviderHydratesMenuMemo(t *testing.T) {
	_, client := newRedis(t)
	loader := &stubLoader{users: map[string]rbac.User{"u1": {ID: "u1", Permissions: []string{"view_stt"}}}}
	memo := session.NewMenuMemo(client, time.Hour)
	provider := session.NewProvider(client, loader, memo, time.Minute, nil)
	ctx := context.Background()

	first, err := provider.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, first.User.Version())

	stored := map[string]rbac.MenuAccess{"m1": {CanView: true, CanEdit: true}}
	require.NoError(t, memo.Store(ctx, "u1", first.User.Version(), stored))

	snap, err := provider.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.User.Version(), snap.User.Version())
	access, decision := rbac.CheckMenuAccess(snap.User, rbac.Menu{ID: "m1", Code: "stt"})
	assert.Equal(t, rbac.RuleMenuCache, decision.Rule)
	assert.Equal(t, stored["m1"], access)
}

func TestMenuMemoLifecycle(t *testing.T) {
	mr, client := newRedis(t)
	memo := session.NewMenuMemo(client, time.Minute)
	ctx := context.Background()

	empty, err := memo.Load(ctx, "u1", "v1")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, memo.Store(ctx, "u1", "v1", map[string]rbac.MenuAccess{"m1": {CanView: true}}))
	require.NoError(t, memo.Store(ctx, "u1", "v1", map[string]rbac.MenuAccess{"m2": {CanCreate: true}}))
	require.NoError(t, memo.Store(ctx, "u2", "v1", map[string]rbac.MenuAccess{"m1": {}}))
	assert.Equal(t, time.Minute, mr.TTL("menu_access:u1"))

	loaded, err := memo.Load(ctx, "u1", "v1")
	require.NoError(t, err)
	assert.Equal(t, map[string]rbac.MenuAccess{"m1": {CanView: true}, "m2": {CanCreate: true}}, loaded)

	users, err := memo.Users(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, users)

	require.NoError(t, memo.Clear(ctx, "u1"))
	assert.False(t, mr.Exists("menu_access:u1"))
}

func TestMenuMemoIsScopedToSnapshotVersion(t *testing.T) {
	_, client := newRedis(t)
	memo := session.NewMenuMemo(client, time.Minute)
	ctx := context.Background()

	tests := []struct {
		name   string
		stores []string
		load   string
		want   map[string]rbac.MenuAccess
	}{
		{
			name:   "same version merges",
			stores: []string{"v1", "v1"},
			load:   "v1",
			want:   map[string]rbac.MenuAccess{"m-v1-0": {CanView: true}, "m-v1-1": {CanView: true}},
		},
		{
			name:   "older version is not trusted",
			stores: []string{"v1"},
			load:   "v2",
			want:   nil,
		},
		{
			name:   "newer version replaces older entries",
			stores: []string{"v1", "v2"},
			load:   "v2",
			want:   map[string]rbac.MenuAccess{"m-v2-1": {CanView: true}},
		},
		{
			name:   "late write from superseded version hides newer entries",
			stores: []string{"v2", "v1"},
			load:   "v2",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, memo.Clear(ctx, "u1"))
			for i, version := range tt.stores {
				menuID := fmt.Sprintf("m-%s-%d", version, i)
				require.NoError(t, memo.Store(ctx, "u1", version, map[string]rbac.MenuAccess{menuID: {CanView: true}}))
			}
			loaded, err := memo.Load(ctx, "u1", tt.load)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, loaded)
				return
			}
			assert.Equal(t, tt.want, loaded)
		})
	}
}

func TestProviderIgnoresMemoStoredAfterRefresh(t *testing.T) {
	_, client := newRedis(t)
	loader := &stubLoader{users: map[string]rbac.User{
		"u1": {ID: "u1", Role: rbac.RoleStaff, Permissions: []string{"view_stt"}},
	}}
	memo := session.NewMenuMemo(client, time.Hour)
	provider := session.NewProvider(client, loader, memo, time.Minute, nil)
	ctx := context.Background()

	before, err := provider.Snapshot(ctx, "u1")
	require.NoError(t, err)

	loader.set(rbac.User{ID: "u1", Role: rbac.RoleStaff})
	after, err := provider.Refresh(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, before.User.Version(), after.User.Version())

	// A request hydrated before the refresh finishes its menu pass late.
	require.NoError(t, memo.Store(ctx, "u1", before.User.Version(), map[string]rbac.MenuAccess{"m1": {CanView: true}}))

	snap, err := provider.Snapshot(ctx, "u1")
	require.NoError(t, err)
	access, decision := rbac.CheckMenuAccess(snap.User, rbac.Menu{ID: "m1", Code: "stt", RequiredPermissions: []string{"view_stt"}})
	assert.NotEqual(t, rbac.RuleMenuCache, decision.Rule)
	assert.False(t, access.CanView)
}
