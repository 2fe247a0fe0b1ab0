package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/samudra-erp/samudra-erp/internal/jobs"
)

// MemoStore lists and clears menu access memos.
type MemoStore interface {
	Users(ctx context.Context) ([]string, error)
	Clear(ctx context.Context, userID string) error
}

// SnapshotCache reports whether a user still has a cached snapshot.
type SnapshotCache interface {
	Cached(ctx context.Context, userID string) (bool, error)
}

// MenuAccessPurgeJob removes memos that outlived their snapshot so a later
// login never trusts access computed for stale permissions.
type MenuAccessPurgeJob struct {
	Memo      MemoStore
	Snapshots SnapshotCache
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewMenuAccessPurgeJob wires dependencies for the purge handler.
func NewMenuAccessPurgeJob(memo MemoStore, snapshots SnapshotCache, logger *slog.Logger, metrics *jobmetrics.Metrics) *MenuAccessPurgeJob {
	return &MenuAccessPurgeJob{Memo: memo, Snapshots: snapshots, Logger: logger, Metrics: metrics}
}

// Handle processes TaskMenuAccessPurge tasks.
func (j *MenuAccessPurgeJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Memo == nil || j.Snapshots == nil {
		return errors.New("menu access purge: handler not configured")
	}
	tracker := j.metrics().Track(TaskMenuAccessPurge)
	defer func() {
		err = tracker.End(err)
	}()

	purged, err := j.Purge(ctx)
	if err != nil {
		return err
	}
	j.metrics().AddPurged(purged)
	if purged > 0 {
		j.logger().Info("purged menu access memos", slog.Int("count", purged))
	}
	return nil
}

// Purge clears every memo without a cached snapshot and returns the count.
func (j *MenuAccessPurgeJob) Purge(ctx context.Context) (int, error) {
	users, err := j.Memo.Users(ctx)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		cached, err := j.Snapshots.Cached(ctx, userID)
		if err != nil {
			return purged, err
		}
		if cached {
			continue
		}
		if err := j.Memo.Clear(ctx, userID); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

func (j *MenuAccessPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskMenuAccessPurge))
	}
	return slog.Default().With(slog.String("job", TaskMenuAccessPurge))
}

func (j *MenuAccessPurgeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
