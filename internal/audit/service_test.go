package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v2"
)

type stubEventRepo struct {
	rows     []EventRow
	lastCall WindowParams
}

func (s *stubEventRepo) EventsWindow(ctx context.Context, arg WindowParams) ([]EventRow, error) {
	s.lastCall = arg
	return s.rows, nil
}

func mockRow(at, kind, username string, userID int64) EventRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return EventRow{OccurredAt: ts, Kind: kind, Username: username, UserID: userID}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubEventRepo{
		rows: []EventRow{
			mockRow("2026-03-10T10:00:00Z", "login_succeeded", "claire", 1),
			mockRow("2026-03-09T09:00:00Z", "login_failed", "claire", 0),
			mockRow("2026-03-08T08:00:00Z", "logged_out", "hugo", 2),
		},
	}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Page:     1,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected next page 2, got %+v", result.Paging)
	}
	if repo.lastCall.LimitRows != 3 {
		t.Fatalf("expected limitRows 3, got %d", repo.lastCall.LimitRows)
	}
	if repo.lastCall.OffsetRows != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastCall.OffsetRows)
	}
	if result.Rows[1].UserID != 0 || result.Rows[0].UserID != 1 {
		t.Fatalf("unexpected user ids: %+v", result.Rows)
	}
}

func TestServiceTimelineClampsPage(t *testing.T) {
	repo := &stubEventRepo{}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500, Kind: " login_failed "})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if result.Paging.PageSize != maxPageSize || result.Paging.PrevPage != 2 {
		t.Fatalf("unexpected paging %+v", result.Paging)
	}
	if repo.lastCall.OffsetRows != int32(2*maxPageSize) {
		t.Fatalf("expected offset %d, got %d", 2*maxPageSize, repo.lastCall.OffsetRows)
	}
	if !repo.lastCall.Kind.Valid || repo.lastCall.Kind.String != "login_failed" {
		t.Fatalf("kind filter not trimmed: %+v", repo.lastCall.Kind)
	}
	if repo.lastCall.Username.Valid || repo.lastCall.FromAt.Valid {
		t.Fatalf("empty filters should be NULL")
	}
}

func TestServiceExportUsesCap(t *testing.T) {
	repo := &stubEventRepo{rows: []EventRow{mockRow("2026-03-10T10:00:00Z", "token_refreshed", "claire", 1)}}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{Username: "claire"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(rows) != 1 || repo.lastCall.LimitRows != maxExportRows {
		t.Fatalf("unexpected export call rows=%d limit=%d", len(rows), repo.lastCall.LimitRows)
	}
}

func TestServiceWithoutRepository(t *testing.T) {
	if _, err := NewService(nil).Timeline(context.Background(), TimelineFilters{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestWriteCSV(t *testing.T) {
	out, err := WriteCSV([]TimelineRow{
		{At: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC), Kind: "login_failed", Username: "a,b", RemoteAddr: "10.0.0.1"},
		{At: time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC), Kind: "logged_out", Username: "claire", UserID: 1},
	})
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), out)
	}
	if lines[0] != "occurred_at,kind,username,user_id,remote_addr" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[1] != `2026-03-10T10:00:00Z,login_failed,"a,b",,10.0.0.1` {
		t.Fatalf("unexpected row %q", lines[1])
	}
	if lines[2] != "2026-03-10T11:00:00Z,logged_out,claire,1," {
		t.Fatalf("unexpected row %q", lines[2])
	}
}

func TestRepositoryEventsWindow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	defer mock.Close()

	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"occurred_at", "kind", "username", "user_id", "remote_addr"}).
		AddRow(at, "login_succeeded", "claire", int64(1), "10.0.0.4")
	params := WindowParams{Kind: pgtype.Text{String: "login_succeeded", Valid: true}, LimitRows: 21}
	mock.ExpectQuery(`SELECT occurred_at, kind, username, COALESCE`).
		WithArgs(params.FromAt, params.ToAt, params.Username, params.Kind, int32(0), int32(21)).
		WillReturnRows(rows)

	got, err := NewRepository(mock).EventsWindow(context.Background(), params)
	if err != nil {
		t.Fatalf("events window: %v", err)
	}
	if len(got) != 1 || got[0].Username != "claire" || got[0].UserID != 1 || !got[0].OccurredAt.Equal(at) {
		t.Fatalf("unexpected rows %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
