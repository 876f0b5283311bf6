package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	loginsTotal      *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	authEventsTotal  *prometheus.CounterVec
	expiryWarnings   prometheus.Counter
	sessionRefreshes *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_auth_logins_total",
		Help: "Jumlah percobaan login berdasarkan hasil.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_session_transitions_total",
		Help: "Perpindahan status sesi konsol.",
	}, []string{"from", "to"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_auth_events_total",
		Help: "Event autentikasi yang diproses worker.",
	}, []string{"kind", "status"})
	warnings := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_session_expiry_warnings_total",
		Help: "Peringatan sesi akan kedaluwarsa yang ditampilkan.",
	})
	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_session_refreshes_total",
		Help: "Perpanjangan token sesi berdasarkan hasil.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, logins, transitions, events, warnings, refreshes)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		loginsTotal:      logins,
		transitionsTotal: transitions,
		authEventsTotal:  events,
		expiryWarnings:   warnings,
		sessionRefreshes: refreshes,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveLogin mencatat hasil login (success, invalid_credentials, error).
func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.loginsTotal.WithLabelValues(outcome).Inc()
}

// ObserveTransition mencatat perpindahan status sesi.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveExpiryWarning mencatat peringatan sesi hampir habis.
func (m *Metrics) ObserveExpiryWarning() {
	if m == nil {
		return
	}
	m.expiryWarnings.Inc()
}

// ObserveRefresh mencatat hasil perpanjangan token.
func (m *Metrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.sessionRefreshes.WithLabelValues(outcome).Inc()
}

// ObserveAuthEvent mencatat event autentikasi yang diproses worker.
func (m *Metrics) ObserveAuthEvent(kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.authEventsTotal.WithLabelValues(kind, status).Inc()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
