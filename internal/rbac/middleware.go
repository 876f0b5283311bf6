package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-cafe/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Resolver  *Resolver
	Overrides *OverrideService
	Logger    *slog.Logger
}

// Require ensures the current principal may perform action on module.
func (m Middleware) Require(module Module, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			caps, err := m.Capabilities(r.Context(), principal)
			if err != nil {
				m.logger().Error("rbac require", slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !caps.Can(module, action) {
				httpx.RespondError(w, shared.ErrPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Capabilities resolves the principal's effective capabilities, applying
// stored overrides when an override service is configured.
func (m Middleware) Capabilities(ctx context.Context, principal shared.Principal) (Capabilities, error) {
	resolver := m.Resolver
	if resolver == nil {
		resolver = defaultResolver
	}
	var overrides []Override
	if m.Overrides != nil {
		if id, ok := principal.ID.Int64(); ok {
			loaded, err := m.Overrides.ForUser(ctx, id)
			if err != nil {
				return Capabilities{}, err
			}
			overrides = loaded
		}
	}
	return resolver.For(principal.Role, overrides...), nil
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
