package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/odyssey-cafe/internal/platform/db"
)

// WindowParams filter satu halaman event.
type WindowParams struct {
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	Username   pgtype.Text
	Kind       pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

// EventRow adalah baris mentah tabel auth_events.
type EventRow struct {
	OccurredAt time.Time
	Kind       string
	Username   string
	UserID     int64
	RemoteAddr string
}

// Repository menyediakan akses ke tabel auth_events.
type Repository interface {
	EventsWindow(ctx context.Context, arg WindowParams) ([]EventRow, error)
}

// PGRepository membaca auth_events dari PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository membuat repository audit.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

const eventsWindowSQL = `SELECT occurred_at, kind, username, COALESCE(user_id, 0), COALESCE(remote_addr, '')
FROM auth_events
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::text IS NULL OR lower(username) = lower($3))
  AND ($4::text IS NULL OR kind = $4)
ORDER BY occurred_at DESC, id DESC
OFFSET $5 LIMIT $6`

// EventsWindow mengambil event sesuai filter. LimitRows 0 berarti tanpa batas.
func (r *PGRepository) EventsWindow(ctx context.Context, arg WindowParams) ([]EventRow, error) {
	var limit any
	if arg.LimitRows > 0 {
		limit = arg.LimitRows
	}
	rows, err := r.db.Query(ctx, eventsWindowSQL, arg.FromAt, arg.ToAt, arg.Username, arg.Kind, arg.OffsetRows, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (EventRow, error) {
		var e EventRow
		err := row.Scan(&e.OccurredAt, &e.Kind, &e.Username, &e.UserID, &e.RemoteAddr)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("audit: scan events: %w", err)
	}
	return out, nil
}
