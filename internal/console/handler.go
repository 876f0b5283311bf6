// Package console serves the operator console: one signed-in session per
// terminal, guarded HTML screens and a bearer-attaching proxy to the backend.
package console

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-cafe/internal/app"
	"github.com/odyssey-erp/odyssey-cafe/internal/guard"
	"github.com/odyssey-erp/odyssey-cafe/internal/observability"
	"github.com/odyssey-erp/odyssey-cafe/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-cafe/internal/rbac"
	"github.com/odyssey-erp/odyssey-cafe/internal/session"
	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
	"github.com/odyssey-erp/odyssey-cafe/internal/view"
	"github.com/odyssey-erp/odyssey-cafe/web"
)

// Session is the slice of the session controller the console drives.
type Session interface {
	Snapshot() session.Snapshot
	Login(ctx context.Context, identifier, secret string) session.LoginResult
	Logout(ctx context.Context)
	RefreshToken(ctx context.Context) bool
}

// Config wires a Handler.
type Config struct {
	Logger    *slog.Logger
	App       *app.Config
	Session   Session
	Views     *view.Engine
	CSRF      *CSRFManager
	Notices   *Notices
	Navigator *Navigator
	Resolver  *rbac.Resolver
	Metrics   *observability.Metrics
	// Backend serves /backend/*; nil disables the proxy.
	Backend http.Handler
}

// Handler serves the console screens.
type Handler struct {
	logger   *slog.Logger
	cfg      *app.Config
	session  Session
	views    *view.Engine
	csrf     *CSRFManager
	notices  *Notices
	nav      *Navigator
	resolver *rbac.Resolver
	metrics  *observability.Metrics
	backend  http.Handler
	guard    guard.Guard
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = rbac.NewResolver()
	}
	notices := cfg.Notices
	if notices == nil {
		notices = NewNotices(0)
	}
	nav := cfg.Navigator
	if nav == nil {
		nav = &Navigator{}
	}
	h := &Handler{
		logger:   logger,
		cfg:      cfg.App,
		session:  cfg.Session,
		views:    cfg.Views,
		csrf:     cfg.CSRF,
		notices:  notices,
		nav:      nav,
		resolver: resolver,
		metrics:  cfg.Metrics,
		backend:  cfg.Backend,
	}
	h.guard = guard.Guard{Session: cfg.Session, Resolver: resolver, Renderer: h, LoginPath: "/login", Logger: logger}
	return h
}

// Routes returns the console router with the shared middleware stack.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	for _, mw := range app.MiddlewareStack(app.MiddlewareConfig{
		Logger:  h.logger,
		Config:  h.cfg,
		Metrics: h.metrics,
	}) {
		r.Use(mw)
	}
	if !app.InTestMode() {
		r.Use(chimw.Logger)
	}
	r.Use(h.csrf.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}
	if staticFS, err := fs.Sub(web.Static, "static"); err == nil {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	} else {
		h.logger.Error("create static sub filesystem", slog.Any("error", err))
	}

	r.Get("/login", h.loginForm)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Get("/api/session", h.sessionState)

	authenticated := h.guard.Require(guard.Requirement{})
	r.With(authenticated).Post("/session/refresh", h.refresh)
	if h.backend != nil {
		r.With(authenticated).Handle("/backend/*", h.backend)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.followNavigator)
		r.With(h.guard.Require(guard.Requirement{Module: rbac.ModuleDashboard})).Get("/", h.dashboard)
		r.Get("/modules/{module}", h.module)
		r.With(h.guard.Require(guard.Requirement{Role: rbac.RoleDirector, Module: rbac.ModuleEmployees})).Get("/employees", h.employees)
	})
	return r
}

// staticCacheHandler lets browsers cache static assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}

// followNavigator honours a login redirect requested by the session.
func (h *Handler) followNavigator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && h.nav.Take() {
			http.Redirect(w, r, guard.LoginURL("/login", r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) templateData(w http.ResponseWriter, r *http.Request, title string, data any) view.TemplateData {
	snap := h.session.Snapshot()
	td := view.TemplateData{
		Title:       title,
		CSRFToken:   h.csrf.EnsureToken(w, r),
		Notices:     h.notices.Drain(),
		Expiring:    snap.IsTokenExpiring,
		ExpiresAt:   snap.ExpiresAt,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if snap.IsAuthenticated {
		td.User = snap.User
	}
	return td
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	if err := h.views.RenderStatus(w, status, name, h.templateData(w, r, title, data)); err != nil {
		h.logger.Error("render", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// RenderLoading implements guard.Renderer.
func (h *Handler) RenderLoading(w http.ResponseWriter, r *http.Request) {
	if err := h.views.Render(w, "pages/loading.html", view.TemplateData{}); err != nil {
		h.logger.Error("render loading", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// RenderDenied implements guard.Renderer.
func (h *Handler) RenderDenied(w http.ResponseWriter, r *http.Request, status int, d guard.Decision) {
	h.render(w, r, status, "pages/denied.html", "Access denied", d)
}

type loginPage struct {
	Next       string
	Identifier string
}

func (h *Handler) loginForm(w http.ResponseWriter, r *http.Request) {
	next := r.URL.Query().Get("next")
	snap := h.session.Snapshot()
	if snap.IsLoading {
		h.RenderLoading(w, r)
		return
	}
	if snap.IsAuthenticated {
		http.Redirect(w, r, safeNext(next), http.StatusSeeOther)
		return
	}
	h.nav.Take()
	h.render(w, r, http.StatusOK, "pages/login.html", "Sign in", loginPage{Next: next})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	identifier := r.PostForm.Get("identifier")
	next := r.PostForm.Get("next")
	res := h.session.Login(r.Context(), identifier, r.PostForm.Get("secret"))
	if !res.Success {
		h.render(w, r, http.StatusUnauthorized, "pages/login.html", "Sign in", loginPage{Next: next, Identifier: identifier})
		return
	}
	h.nav.Take()
	http.Redirect(w, r, safeNext(next), http.StatusSeeOther)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.session.Logout(r.Context())
	h.nav.Take()
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if !h.session.RefreshToken(r.Context()) {
		h.nav.Take()
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	h.notices.Notify(shared.Notification{Kind: shared.NoticeSuccess, Message: "Your session has been extended."})
	http.Redirect(w, r, safeNext(r.PostFormValue("next")), http.StatusSeeOther)
}

type moduleEntry struct {
	Module    rbac.Module
	CanEdit   bool
	CanDelete bool
	CanExport bool
}

type dashboardPage struct {
	Modules    []moduleEntry
	IsDirector bool
	IsEmployee bool
}

func (h *Handler) capabilities(r *http.Request) rbac.Capabilities {
	if caps, ok := guard.CapabilitiesFromContext(r.Context()); ok {
		return caps
	}
	return h.resolver.For(h.session.Snapshot().Role())
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	caps := h.capabilities(r)
	page := dashboardPage{IsDirector: caps.IsDirector(), IsEmployee: caps.IsEmployee()}
	for _, m := range rbac.Modules() {
		if !caps.CanAccess(m) {
			continue
		}
		page.Modules = append(page.Modules, moduleEntry{
			Module:    m,
			CanEdit:   caps.CanEdit(m),
			CanDelete: caps.CanDelete(m),
			CanExport: caps.CanExport(m),
		})
	}
	h.render(w, r, http.StatusOK, "pages/dashboard.html", "Dashboard", page)
}

type modulePage struct {
	Module  rbac.Module
	Actions []rbac.Action
	Allowed []bool
}

func (h *Handler) module(w http.ResponseWriter, r *http.Request) {
	module := rbac.Module(chi.URLParam(r, "module"))
	if !module.IsKnown() {
		http.NotFound(w, r)
		return
	}
	h.guard.Require(guard.Requirement{Module: module})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caps := h.capabilities(r)
		page := modulePage{Module: module, Actions: rbac.Actions()}
		for _, a := range page.Actions {
			page.Allowed = append(page.Allowed, caps.Can(module, a))
		}
		h.render(w, r, http.StatusOK, "pages/module.html", string(module), page)
	})).ServeHTTP(w, r)
}

type roleRow struct {
	Module  rbac.Module
	Allowed []bool
}

type roleTable struct {
	Role rbac.Role
	Rows []roleRow
}

type employeesPage struct {
	Actions []rbac.Action
	Roles   []roleTable
}

func (h *Handler) employees(w http.ResponseWriter, r *http.Request) {
	page := employeesPage{Actions: rbac.Actions()}
	for _, role := range []rbac.Role{rbac.RoleDirector, rbac.RoleEmployee} {
		table := roleTable{Role: role}
		for _, m := range rbac.Modules() {
			row := roleRow{Module: m}
			for _, a := range page.Actions {
				row.Allowed = append(row.Allowed, h.resolver.Resolve(role, m, a))
			}
			table.Rows = append(table.Rows, row)
		}
		page.Roles = append(page.Roles, table)
	}
	h.render(w, r, http.StatusOK, "pages/employees.html", "Staff permissions", page)
}

type sessionResponse struct {
	State           string                      `json:"state"`
	IsAuthenticated bool                        `json:"isAuthenticated"`
	IsLoading       bool                        `json:"isLoading"`
	IsTokenExpiring bool                        `json:"isTokenExpiring"`
	User            *shared.Principal           `json:"user"`
	ExpiresAt       *time.Time                  `json:"expiresAt,omitempty"`
	Permissions     map[rbac.Module]rbac.Grants `json:"permissions,omitempty"`
	Redirect        string                      `json:"redirect,omitempty"`
	Notices         []shared.Notification       `json:"notices,omitempty"`
}

func (h *Handler) sessionState(w http.ResponseWriter, r *http.Request) {
	snap := h.session.Snapshot()
	resp := sessionResponse{
		State:           snap.State.String(),
		IsAuthenticated: snap.IsAuthenticated,
		IsLoading:       snap.IsLoading,
		IsTokenExpiring: snap.IsTokenExpiring,
		Notices:         h.notices.Drain(),
	}
	if snap.IsAuthenticated {
		resp.User = snap.User
		if !snap.ExpiresAt.IsZero() {
			exp := snap.ExpiresAt
			resp.ExpiresAt = &exp
		}
		resp.Permissions = h.resolver.For(snap.Role()).Matrix()
	}
	if h.nav.Take() {
		resp.Redirect = "/login"
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, resp)
}

func safeNext(next string) string {
	if guard.SafeNext(next) && next != "/login" {
		return next
	}
	return "/"
}
