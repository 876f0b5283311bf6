package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-cafe/internal/audit"
	"github.com/odyssey-erp/odyssey-cafe/internal/auth"
	"github.com/odyssey-erp/odyssey-cafe/internal/observability"
	"github.com/odyssey-erp/odyssey-cafe/internal/rbac"
	"github.com/odyssey-erp/odyssey-cafe/jobs"
)

// RouterParams groups dependencies for building the REST backend router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthHandler        *auth.Handler
	Authenticator      auth.Authenticator
	PermissionsHandler *rbac.PermissionsHandler
	RBAC               rbac.Middleware
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router for the REST backend.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", healthz)

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(params.Authenticator.Middleware)
				r.Route("/permissions", params.PermissionsHandler.MountRoutes)
			})
		}
		if params.AuditHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(params.Authenticator.Middleware)
				r.Route("/audit", params.AuditHandler.MountRoutes)
			})
		}
		if params.JobHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(params.Authenticator.Middleware)
				r.Use(params.RBAC.Require(rbac.ModuleMaintenance, rbac.ActionView))
				r.Route("/jobs", params.JobHandler.MountRoutes)
			})
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
