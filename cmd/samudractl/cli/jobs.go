package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/samudra-erp/samudra-erp/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers against the given Redis connection.
func NewJobsCLI(opt asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{client: asynq.NewClient(opt), inspector: asynq.NewInspector(opt)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// BuildTask prepares a supported job by task type. Session refreshes need a user id.
func BuildTask(name, userID string) (*asynq.Task, error) {
	switch name {
	case jobs.TaskSessionRefresh:
		return jobs.NewSessionRefreshTask(userID)
	case jobs.TaskMenuAccessPurge:
		return jobs.NewMenuAccessPurgeTask(), nil
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// Trigger enqueues a supported job.
func (c *JobsCLI) Trigger(ctx context.Context, name, userID string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := BuildTask(name, userID)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

func statsTable(stats QueueStats) pterm.TableData {
	return pterm.TableData{
		{"QUEUE", "PENDING", "ACTIVE", "SCHEDULED", "RETRY", "ARCHIVED"},
		{stats.Queue, fmt.Sprint(stats.Pending), fmt.Sprint(stats.Active), fmt.Sprint(stats.Scheduled), fmt.Sprint(stats.Retry), fmt.Sprint(stats.Archived)},
	}
}

func scheduledTable(tasks []*asynq.TaskInfo) pterm.TableData {
	table := pterm.TableData{{"ID", "TYPE", "NEXT PROCESS AT"}}
	for _, t := range tasks {
		table = append(table, []string{t.ID, t.Type, t.NextProcessAt.UTC().Format("2006-01-02 15:04:05")})
	}
	return table
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	refresh := &cobra.Command{
		Use:   "refresh-session [user_id]",
		Short: "Reload a user's cached session snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(cmd, func(c *JobsCLI) error {
				info, err := c.Trigger(cmd.Context(), jobs.TaskSessionRefresh, args[0])
				if err != nil {
					return err
				}
				pterm.Success.Printf("Enqueued %s as %s\n", info.Type, info.ID)
				return nil
			})
		},
	}

	purge := &cobra.Command{
		Use:   "purge-menu-access",
		Short: "Drop menu access memos whose snapshot expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(cmd, func(c *JobsCLI) error {
				info, err := c.Trigger(cmd.Context(), jobs.TaskMenuAccessPurge, "")
				if err != nil {
					return err
				}
				pterm.Success.Printf("Enqueued %s as %s\n", info.Type, info.ID)
				return nil
			})
		},
	}

	var size int
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue counters and upcoming scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(cmd, func(c *JobsCLI) error {
				queue, err := c.InspectQueue(cmd.Context())
				if err != nil {
					return fmt.Errorf("inspect queue: %w", err)
				}
				pterm.DefaultSection.Println("Queue")
				if err := pterm.DefaultTable.WithHasHeader().WithData(statsTable(queue)).Render(); err != nil {
					return err
				}
				scheduled, err := c.ListScheduled(cmd.Context(), size)
				if err != nil {
					return fmt.Errorf("list scheduled: %w", err)
				}
				if len(scheduled) == 0 {
					pterm.Info.Println("No scheduled tasks.")
					return nil
				}
				pterm.DefaultSection.Println("Scheduled")
				return pterm.DefaultTable.WithHasHeader().WithData(scheduledTable(scheduled)).Render()
			})
		},
	}
	stats.Flags().IntVar(&size, "size", 10, "number of scheduled tasks to list")

	cmd.AddCommand(refresh, purge, stats)
	return cmd
}

func withJobs(cmd *cobra.Command, fn func(*JobsCLI) error) error {
	cfg, err := configFrom(cmd.Context())
	if err != nil {
		return err
	}
	c := NewJobsCLI(cfg.RedisOptions().AsynqOpt())
	defer c.Close()
	return fn(c)
}
