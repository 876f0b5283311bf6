package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-cafe/internal/auth"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuthEvent records one authentication audit event.
	TaskAuthEvent = "auth:event"
	// TaskAuthEventsPrune deletes audit events past the retention window.
	TaskAuthEventsPrune = "auth:events:prune"
)

// AuthEventPayload is the wire form of auth.Event.
type AuthEventPayload struct {
	Kind       string    `json:"kind"`
	UserID     int64     `json:"user_id,omitempty"`
	Username   string    `json:"username"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	At         time.Time `json:"at"`
}

// PrunePayload carries the retention window.
type PrunePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAuthEventTask constructs an Asynq task for event.
func NewAuthEventTask(event auth.Event) (*asynq.Task, error) {
	payload := AuthEventPayload{
		Kind:       event.Kind,
		UserID:     event.UserID,
		Username:   event.Username,
		RemoteAddr: event.RemoteAddr,
		At:         event.At.UTC(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuthEvent, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewPruneTask constructs the retention task.
func NewPruneTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(PrunePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuthEventsPrune, data, asynq.Queue(QueueDefault)), nil
}
