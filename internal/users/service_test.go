package users

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/internal/shared"
)

type fakeRepo struct {
	users    map[string]Summary
	assigned map[string][]RoleAssignment
	filters  shared.ListFilters
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users: map[string]Summary{
			"u1": {ID: "u1", Username: "andi", Name: "Andi", CabangID: "5", IsActive: true},
			"u2": {ID: "u2", Username: "budi", Name: "Budi", CabangID: "6", IsActive: true, CreatedBy: "u1"},
		},
		assigned: map[string][]RoleAssignment{},
	}
}

func (f *fakeRepo) Record(ctx context.Context, userID string) (rbac.User, error) {
	s, ok := f.users[userID]
	if !ok || !s.IsActive {
		return rbac.User{}, httpx.ErrNotFound
	}
	return rbac.User{ID: s.ID, Username: s.Username, Name: s.Name, CabangID: s.CabangID}, nil
}

func (f *fakeRepo) ResourceData(ctx context.Context, userID string) (*rbac.ResourceData, error) {
	s, ok := f.users[userID]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	return &rbac.ResourceData{ID: s.ID, UserID: s.ID, CabangID: s.CabangID, CreatedBy: s.CreatedBy}, nil
}

func (f *fakeRepo) Get(ctx context.Context, userID string) (Summary, error) {
	s, ok := f.users[userID]
	if !ok {
		return Summary{}, httpx.ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) List(ctx context.Context, filters shared.ListFilters) ([]Summary, int, error) {
	f.filters = filters
	var out []Summary
	for _, id := range []string{"u1", "u2"} {
		s := f.users[id]
		if filters.CabangID != "" && s.CabangID != filters.CabangID {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (f *fakeRepo) ReplaceRoles(ctx context.Context, userID string, roles []RoleAssignment) error {
	if _, ok := f.users[userID]; !ok {
		return httpx.ErrNotFound
	}
	f.assigned[userID] = roles
	return nil
}

type fakeRefresher struct {
	users []string
	err   error
}

func (f *fakeRefresher) EnqueueSessionRefresh(ctx context.Context, userID string) error {
	f.users = append(f.users, userID)
	return f.err
}

func (f *fakeRefresher) Invalidate(ctx context.Context, userID string) error {
	f.users = append(f.users, "invalidate:"+userID)
	return nil
}

type fakeAudit struct {
	entries []shared.AuditLog
}

func (f *fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	f.entries = append(f.entries, log)
	return nil
}

func TestAssignRolesRequiresExactlyOnePrimary(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	ctx := context.Background()

	_, err := svc.AssignRoles(ctx, "admin", "u1", nil)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.AssignRoles(ctx, "admin", "u1", []RoleAssignment{{Code: "kasir"}, {Code: "staff"}})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.AssignRoles(ctx, "admin", "u1", []RoleAssignment{{Code: "kasir", IsPrimary: true}, {Code: "staff", IsPrimary: true}})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.AssignRoles(ctx, "admin", "u1", []RoleAssignment{{Code: "kasir", IsPrimary: true}, {Code: " KASIR "}})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestAssignRolesNormalizesAndRefreshes(t *testing.T) {
	repo := newFakeRepo()
	refresher := &fakeRefresher{}
	audit := &fakeAudit{}
	svc := NewService(repo, nil, WithSessionRefresher(refresher), WithSnapshotInvalidator(refresher), WithAudit(audit))

	assigned, err := svc.AssignRoles(context.Background(), "admin", "u1", []RoleAssignment{
		{Code: " Kasir ", IsPrimary: true},
		{Code: "STAFF"},
	})
	require.NoError(t, err)
	want := []RoleAssignment{{Code: "kasir", IsPrimary: true}, {Code: "staff"}}
	assert.Equal(t, want, assigned)
	assert.Equal(t, want, repo.assigned["u1"])
	assert.Equal(t, []string{"invalidate:u1", "u1"}, refresher.users)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "roles.assign", audit.entries[0].Action)
	assert.Equal(t, []string{"kasir", "staff"}, audit.entries[0].Meta["roles"])
}

func TestAssignRolesToleratesQueueFailure(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("redis down")}
	svc := NewService(newFakeRepo(), nil, WithSessionRefresher(refresher))
	_, err := svc.AssignRoles(context.Background(), "admin", "u1", []RoleAssignment{{Code: "kasir", IsPrimary: true}})
	assert.NoError(t, err)
}

func TestAssignRolesUnknownUser(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	_, err := svc.AssignRoles(context.Background(), "admin", "missing", []RoleAssignment{{Code: "kasir", IsPrimary: true}})
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestListComputesPagination(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	items, page, err := svc.List(context.Background(), shared.ListFilters{Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, page.TotalPages)
}
