package guard

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/odyssey-erp/odyssey-cafe/internal/rbac"
	"github.com/odyssey-erp/odyssey-cafe/internal/session"
)

// SnapshotSource exposes the current session.
type SnapshotSource interface {
	Snapshot() session.Snapshot
}

// Renderer draws the non-allow outcomes.
type Renderer interface {
	RenderLoading(w http.ResponseWriter, r *http.Request)
	RenderDenied(w http.ResponseWriter, r *http.Request, status int, d Decision)
}

// Guard turns decisions into HTTP responses.
type Guard struct {
	Session   SnapshotSource
	Resolver  *rbac.Resolver
	Renderer  Renderer
	LoginPath string
	Logger    *slog.Logger
}

type ctxKey int

const capabilitiesKey ctxKey = iota

// CapabilitiesFromContext returns the capabilities attached by Require.
func CapabilitiesFromContext(ctx context.Context) (rbac.Capabilities, bool) {
	caps, ok := ctx.Value(capabilitiesKey).(rbac.Capabilities)
	return caps, ok
}

// Require blocks next unless req is met. next is never invoked for any
// outcome other than Allow.
func (g Guard) Require(req Requirement) func(http.Handler) http.Handler {
	resolver := g.Resolver
	if resolver == nil {
		resolver = rbac.NewResolver()
	}
	renderer := g.Renderer
	if renderer == nil {
		renderer = plainRenderer{}
	}
	loginPath := g.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := g.Session.Snapshot()
			d := DecideWith(resolver, snap, req)
			switch d.Outcome {
			case Loading:
				w.Header().Set("Cache-Control", "no-store")
				w.Header().Set("Retry-After", "1")
				renderer.RenderLoading(w, r)
			case Redirect:
				if r.Method == http.MethodGet || r.Method == http.MethodHead {
					http.Redirect(w, r, LoginURL(loginPath, r.URL.RequestURI()), http.StatusSeeOther)
					return
				}
				renderer.RenderDenied(w, r, http.StatusUnauthorized, d)
			case Denied:
				logger.Info("access denied",
					slog.String("path", r.URL.Path),
					slog.String("required_role", d.RequiredRole),
					slog.String("actual_role", d.ActualRole),
					slog.String("module", string(d.Module)),
					slog.String("action", string(d.Action)))
				renderer.RenderDenied(w, r, http.StatusForbidden, d)
			case Allow:
				caps := resolver.For(snap.Role())
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), capabilitiesKey, caps)))
			}
		})
	}
}

// LoginURL builds the login location carrying next as the return path.
// Only same-site absolute paths are kept.
func LoginURL(loginPath, next string) string {
	if !SafeNext(next) || next == loginPath {
		return loginPath
	}
	return loginPath + "?next=" + url.QueryEscape(next)
}

// SafeNext reports whether next is a local path that is safe to redirect to.
func SafeNext(next string) bool {
	if next == "" || next[0] != '/' {
		return false
	}
	if len(next) > 1 && (next[1] == '/' || next[1] == '\\') {
		return false
	}
	u, err := url.Parse(next)
	return err == nil && u.Scheme == "" && u.Host == ""
}

type plainRenderer struct{}

func (plainRenderer) RenderLoading(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, `<!doctype html><meta http-equiv="refresh" content="1"><p>Loading…</p>`)
}

func (plainRenderer) RenderDenied(w http.ResponseWriter, _ *http.Request, status int, d Decision) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "<!doctype html><h1>Access denied</h1><p>Required role: %s</p><p>Your role: %s</p><p>%s</p>",
		html.EscapeString(displayRole(d.RequiredRole)), html.EscapeString(displayRole(d.ActualRole)), html.EscapeString(d.Reason))
}
