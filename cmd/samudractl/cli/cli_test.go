package cli

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/jobs"
)

type mapLoader map[string]rbac.User

func (m mapLoader) Record(ctx context.Context, userID string) (rbac.User, error) {
	u, ok := m[userID]
	if !ok {
		return rbac.User{}, httpx.ErrNotFound
	}
	return u, nil
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskMenuAccessPurge, "")
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskMenuAccessPurge, task.Type())

	task, err = BuildTask(jobs.TaskSessionRefresh, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":"u1"}`, string(task.Payload()))

	_, err = BuildTask(jobs.TaskSessionRefresh, "")
	assert.ErrorIs(t, err, jobs.ErrEmptyUserID)

	_, err = BuildTask("report:build", "")
	assert.EqualError(t, err, "jobs cli: unsupported job report:build")
}

func TestTriggerWithoutClient(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), jobs.TaskMenuAccessPurge, "")
	assert.Error(t, err)
	_, err = c.InspectQueue(context.Background())
	assert.Error(t, err)
}

func TestTables(t *testing.T) {
	stats := statsTable(QueueStats{Queue: "default", Pending: 3, Retry: 1})
	require.Len(t, stats, 2)
	assert.Equal(t, []string{"default", "3", "0", "0", "1", "0"}, stats[1])

	next := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	scheduled := scheduledTable([]*asynq.TaskInfo{{ID: "t1", Type: jobs.TaskMenuAccessPurge, NextProcessAt: next}})
	assert.Equal(t, []string{"t1", jobs.TaskMenuAccessPurge, "2026-01-02 03:04:05"}, scheduled[1])

	view := rbac.NewPrincipalView(rbac.NewPrincipal(rbac.User{
		ID:       "u1",
		Username: "sari",
		CabangID: "jkt",
		Roles:    []rbac.Role{{Code: rbac.RoleKasir, IsPrimary: true}, {Code: rbac.RoleKepalaCabang}},
	}))
	table := principalTable(view)
	assert.Equal(t, []string{"Roles", "kasir*, kepala_cabang"}, table[4])
	assert.Equal(t, []string{"Highest role", rbac.RoleKepalaCabang}, table[6])
}

func TestEvaluate(t *testing.T) {
	loader := mapLoader{
		"u1": {ID: "u1", CabangID: "jkt", Roles: []rbac.Role{{Code: rbac.RoleKasir, IsPrimary: true}},
			Permissions: []string{"view_branch_stts"}},
	}
	ctx := context.Background()

	d, err := Evaluate(ctx, loader, "u1", "stt", "view", &rbac.ResourceData{CabangID: "jkt"})
	require.NoError(t, err)
	assert.Equal(t, rbac.Decision{Granted: true, Rule: rbac.RuleBranch}, d)

	d, err = Evaluate(ctx, loader, "u1", "stt", "view", &rbac.ResourceData{CabangID: "sby"})
	require.NoError(t, err)
	assert.False(t, d.Granted)

	_, err = Evaluate(ctx, loader, "ghost", "stt", "view", nil)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()
	for _, path := range [][]string{
		{"jobs", "refresh-session"},
		{"jobs", "purge-menu-access"},
		{"jobs", "stats"},
		{"access", "inspect"},
		{"access", "check"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[1], cmd.Name())
	}

	_, err := configFrom(context.Background())
	assert.Error(t, err)
}
