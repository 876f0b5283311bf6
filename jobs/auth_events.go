package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-cafe/internal/jobs"
	"github.com/odyssey-erp/odyssey-cafe/internal/platform/db"
)

const (
	insertAuthEventSQL = `INSERT INTO auth_events (kind, user_id, username, remote_addr, occurred_at)
VALUES ($1, NULLIF($2, 0), $3, NULLIF($4, ''), $5)`
	pruneAuthEventsSQL = `DELETE FROM auth_events WHERE occurred_at < $1`

	defaultRetention = 90 * 24 * time.Hour
)

// EventObserver counts processed audit events.
type EventObserver interface {
	ObserveAuthEvent(kind string, err error)
}

// AuthEventJob persists audit events and prunes old ones.
type AuthEventJob struct {
	DB        db.DBTX
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Observer  EventObserver
	Retention time.Duration
	clock     func() time.Time
}

// NewAuthEventJob initialises the audit event handlers.
func NewAuthEventJob(conn db.DBTX, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuthEventJob {
	return &AuthEventJob{
		DB:      conn,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleRecord stores one TaskAuthEvent.
func (j *AuthEventJob) HandleRecord(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.DB == nil {
		return errors.New("auth event: handler not configured")
	}
	var payload AuthEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("auth event: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Kind == "" {
		return fmt.Errorf("auth event: missing kind: %w", asynq.SkipRetry)
	}
	if payload.At.IsZero() {
		payload.At = j.now()
	}

	tracker := j.Metrics.Track(TaskAuthEvent)
	defer func() {
		resultErr = tracker.End(resultErr)
		if j.Observer != nil {
			j.Observer.ObserveAuthEvent(payload.Kind, resultErr)
		}
	}()

	if _, err := j.DB.Exec(ctx, insertAuthEventSQL, payload.Kind, payload.UserID, payload.Username, payload.RemoteAddr, payload.At); err != nil {
		j.logger().Error("record auth event",
			slog.String("kind", payload.Kind),
			slog.String("username", payload.Username),
			slog.Any("error", err))
		return fmt.Errorf("auth event: insert: %w", err)
	}
	return nil
}

// HandlePrune deletes events older than the retention window.
func (j *AuthEventJob) HandlePrune(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.DB == nil {
		return errors.New("auth event prune: handler not configured")
	}
	retention := j.Retention
	var payload PrunePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("auth event prune: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Retention > 0 {
		retention = payload.Retention
	}
	if retention <= 0 {
		retention = defaultRetention
	}

	tracker := j.Metrics.Track(TaskAuthEventsPrune)
	defer func() { resultErr = tracker.End(resultErr) }()

	cutoff := j.now().Add(-retention)
	tag, err := j.DB.Exec(ctx, pruneAuthEventsSQL, cutoff)
	if err != nil {
		j.logger().Error("prune auth events", slog.Any("error", err))
		return fmt.Errorf("auth event prune: %w", err)
	}
	j.Metrics.AddPruned(tag.RowsAffected())
	j.logger().Info("pruned auth events",
		slog.Time("cutoff", cutoff),
		slog.Int64("deleted", tag.RowsAffected()))
	return nil
}

func (j *AuthEventJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func (j *AuthEventJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
