package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-cafe/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	validator  *validator.Validate
	loginLimit int
}

// NewHandler constructs a Handler instance. loginLimit caps login attempts
// per client IP and minute; zero disables the limit.
func NewHandler(logger *slog.Logger, service *Service, loginLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:     logger,
		service:    service,
		validator:  validator.New(),
		loginLimit: loginLimit,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.loginLimit > 0 {
			r.Use(httprate.Limit(h.loginLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Post("/login", h.handleLogin)
	})
	r.Get("/validate", h.handleValidate)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/logout", h.handleLogout)
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Secret     string `json:"secret" validate:"required,max=128"`
}

type loginResponse struct {
	Token     string           `json:"token"`
	User      shared.Principal `json:"user"`
	Message   string           `json:"message"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

type validateResponse struct {
	Valid bool              `json:"valid"`
	User  *shared.Principal `json:"user"`
}

type refreshResponse struct {
	Token     string           `json:"token"`
	User      shared.Principal `json:"user"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "identifier and secret are required")
		return
	}
	sess, err := h.service.Login(r.Context(), req.Identifier, req.Secret, requestMeta(r))
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("login", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{
		Token:     sess.Token,
		User:      sess.User.Principal(),
		Message:   "Welcome back, " + sess.User.Principal().DisplayName(),
		ExpiresAt: sess.ExpiresAt,
	})
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	token, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
		return
	}
	user, _, err := h.service.Validate(r.Context(), token)
	if err != nil {
		if errors.Is(err, shared.ErrTokenInvalid) || errors.Is(err, shared.ErrTokenExpired) {
			httpx.JSON(w, http.StatusOK, validateResponse{Valid: false})
			return
		}
		h.logger.Error("validate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	p := user.Principal()
	httpx.JSON(w, http.StatusOK, validateResponse{Valid: true, User: &p})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
		return
	}
	sess, err := h.service.Refresh(r.Context(), token, requestMeta(r))
	if err != nil {
		if !errors.Is(err, shared.ErrTokenInvalid) && !errors.Is(err, shared.ErrTokenExpired) {
			h.logger.Error("refresh", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, refreshResponse{Token: sess.Token, User: sess.User.Principal(), ExpiresAt: sess.ExpiresAt})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, err := extractBearerToken(r.Header.Get("Authorization"))
	if err == nil {
		if err := h.service.Logout(r.Context(), token, requestMeta(r)); err != nil {
			h.logger.Warn("logout", slog.Any("error", err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func requestMeta(r *http.Request) RequestMeta {
	return RequestMeta{RemoteAddr: r.RemoteAddr, UserAgent: r.UserAgent()}
}

const bearerPrefix = "bearer "

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), bearerPrefix) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
