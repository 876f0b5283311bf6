package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-cafe/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

// Authenticator resolves the bearer token of each request into a principal.
type Authenticator struct {
	Service *Service
	Logger  *slog.Logger
}

// Middleware rejects requests without a valid bearer token.
func (a Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
			return
		}
		user, _, err := a.Service.Validate(r.Context(), token)
		if err != nil {
			if !errors.Is(err, shared.ErrTokenInvalid) && !errors.Is(err, shared.ErrTokenExpired) && a.Logger != nil {
				a.Logger.Error("authenticate", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		ctx := shared.ContextWithPrincipal(r.Context(), user.Principal())
		ctx = shared.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
