package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionRefresh reloads a user's cached session snapshot.
	TaskSessionRefresh = "session:refresh"
	// TaskMenuAccessPurge drops menu access memos whose snapshot has expired.
	TaskMenuAccessPurge = "menu_access:purge"
)

// ErrEmptyUserID rejects refresh tasks that do not name a user.
var ErrEmptyUserID = errors.New("jobs: empty user id")

// SessionRefreshPayload names the user whose snapshot must be reloaded.
type SessionRefreshPayload struct {
	UserID string `json:"user_id"`
}

// NewSessionRefreshTask constructs a refresh task.
func NewSessionRefreshTask(userID string) (*asynq.Task, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	data, err := json.Marshal(SessionRefreshPayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionRefresh, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewMenuAccessPurgeTask constructs the periodic memo purge task.
func NewMenuAccessPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskMenuAccessPurge, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}
