package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	// maxExportRows membatasi ekspor CSV.
	maxExportRows = 10000
)

// Service mengoordinasikan pengambilan log event autentikasi.
type Service struct {
	repo Repository
}

// NewService membuat service audit baru.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline mengambil data event dengan paging.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	params := windowParams(filters)
	params.OffsetRows = int32((page - 1) * pageSize)
	params.LimitRows = int32(pageSize + 1)

	rows, err := s.repo.EventsWindow(ctx, params)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: mapRows(rows), Paging: paging}, nil
}

// Export mengambil seluruh event sesuai filter tanpa paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	params := windowParams(filters)
	params.LimitRows = maxExportRows
	rows, err := s.repo.EventsWindow(ctx, params)
	if err != nil {
		return nil, err
	}
	return mapRows(rows), nil
}

func windowParams(filters TimelineFilters) WindowParams {
	return WindowParams{
		FromAt:   toPgTime(filters.From),
		ToAt:     toPgTime(filters.To),
		Username: optionalText(filters.Username),
		Kind:     optionalText(filters.Kind),
	}
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func mapRows(rows []EventRow) []TimelineRow {
	out := make([]TimelineRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, TimelineRow{
			At:         row.OccurredAt.UTC(),
			Kind:       row.Kind,
			Username:   row.Username,
			UserID:     row.UserID,
			RemoteAddr: row.RemoteAddr,
		})
	}
	return out
}
