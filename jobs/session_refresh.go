package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/samudra-erp/samudra-erp/internal/jobs"
	"github.com/samudra-erp/samudra-erp/internal/session"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SnapshotRefresher reloads cached session snapshots.
type SnapshotRefresher interface {
	Refresh(ctx context.Context, userID string) (session.Snapshot, error)
}

// SessionRefreshJob swaps a user's cached snapshot after a role or
// permission change.
type SessionRefreshJob struct {
	Provider SnapshotRefresher
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewSessionRefreshJob wires dependencies for the refresh handler.
func NewSessionRefreshJob(provider SnapshotRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionRefreshJob {
	return &SessionRefreshJob{Provider: provider, Logger: logger, Metrics: metrics}
}

// Handle processes TaskSessionRefresh tasks.
func (j *SessionRefreshJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Provider == nil {
		return errors.New("session refresh: handler not configured")
	}
	var payload SessionRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.UserID == "" {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskSessionRefresh)
	defer func() {
		err = tracker.End(err)
	}()

	snap, err := j.Provider.Refresh(ctx, payload.UserID)
	if err != nil {
		j.logger().Error("refresh snapshot", slog.String("user", payload.UserID), slog.Any("error", err))
		return err
	}
	j.logger().Info("snapshot refreshed",
		slog.String("user", payload.UserID),
		slog.Bool("authenticated", snap.IsAuthenticated))
	return nil
}

func (j *SessionRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSessionRefresh))
	}
	return slog.Default().With(slog.String("job", TaskSessionRefresh))
}

func (j *SessionRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
