package audit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-cafe/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-cafe/internal/rbac"
	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

const (
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
	exportRateLimit   = 10
	exportRateWindow  = time.Minute
)

// TimelineService defines the business contract for event log data.
type TimelineService interface {
	Timeline(ctx context.Context, filters TimelineFilters) (Result, error)
	Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error)
}

// Handler serves the authentication event log.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service TimelineService, rbacMW rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbacMW, now: time.Now}
}

// MountRoutes registers the event log routes. The router must already carry
// the authenticator.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit exceeded")
		}),
	)
	r.With(h.rbac.Require(rbac.ModuleLogs, rbac.ActionView)).Get("/auth-events", h.handleTimeline)
	r.With(h.rbac.Require(rbac.ModuleLogs, rbac.ActionExport), limiter).Get("/auth-events.csv", h.handleExport)
}

func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := shared.PrincipalFromContext(r.Context()); ok && p.ID != "" {
		return "user:" + string(p.ID), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "load auth events", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "export auth events", err)
		return
	}
	csvBytes, err := WriteCSV(rows)
	if err != nil {
		h.handleServerError(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"auth-events.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// parseFilters reads from/to as dates; to is inclusive.
func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	now := h.now().UTC()
	toStr := strings.TrimSpace(q.Get("to"))
	if toStr == "" {
		toStr = now.Format("2006-01-02")
	}
	toTime, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return TimelineFilters{}, validationError{field: "to"}
	}
	fromStr := strings.TrimSpace(q.Get("from"))
	if fromStr == "" {
		fromStr = toTime.Add(-defaultDateRange).Format("2006-01-02")
	}
	fromTime, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return TimelineFilters{}, validationError{field: "from"}
	}
	if fromTime.After(toTime) || toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return TimelineFilters{}, validationError{field: "range"}
	}

	page := 1
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, validationError{field: "page"}
		}
		page = parsed
	}
	pageSize := defaultPageSize
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, validationError{field: "page_size"}
		}
		pageSize = min(parsed, maxPageSize)
	}

	return TimelineFilters{
		From:     fromTime,
		To:       toTime.Add(24 * time.Hour),
		Username: strings.TrimSpace(q.Get("username")),
		Kind:     strings.TrimSpace(q.Get("kind")),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (h *Handler) handleFilterError(w http.ResponseWriter, err error) {
	var v validationError
	if errors.As(err, &v) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid filter", "invalid "+v.field)
		return
	}
	h.handleServerError(w, "validate filters", err)
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

type validationError struct {
	field string
}

func (validationError) Error() string {
	return "validation failed"
}
