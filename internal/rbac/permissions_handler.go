package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-cafe/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

// PermissionsHandler exposes the permission table and per-user overrides.
type PermissionsHandler struct {
	logger    *slog.Logger
	overrides *OverrideService
	rbac      Middleware
	validator *validator.Validate
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, overrides *OverrideService, rbac Middleware) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, overrides: overrides, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers permission routes. The router must already carry the
// authenticator so a principal is present in the request context.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/me", h.me)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(ModulePermissions, ActionView))
		r.Get("/", h.table)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(ModulePermissions, ActionAdmin))
		r.Put("/users/{id}", h.replaceOverrides)
	})
}

type capabilitiesResponse struct {
	Role       Role              `json:"role"`
	IsDirector bool              `json:"isDirector"`
	IsEmployee bool              `json:"isEmployee"`
	Modules    map[Module]Grants `json:"modules"`
}

func (h *PermissionsHandler) me(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	caps, err := h.rbac.Capabilities(r.Context(), principal)
	if err != nil {
		h.logger.Error("resolve capabilities", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, capabilitiesResponse{
		Role:       caps.Role(),
		IsDirector: caps.IsDirector(),
		IsEmployee: caps.IsEmployee(),
		Modules:    caps.Matrix(),
	})
}

func (h *PermissionsHandler) table(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, Table())
}

type overridePayload struct {
	Module string `json:"module" validate:"required"`
	Grants Grants `json:"grants"`
}

type replaceOverridesRequest struct {
	Overrides []overridePayload `json:"overrides" validate:"dive"`
}

func (h *PermissionsHandler) replaceOverrides(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	var req replaceOverridesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	overrides := make([]Override, 0, len(req.Overrides))
	for _, p := range req.Overrides {
		module := Module(p.Module)
		if !module.IsKnown() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown module "+p.Module)
			return
		}
		overrides = append(overrides, Override{UserID: userID, Module: module, Grants: p.Grants})
	}
	if h.overrides == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "overrides storage not configured")
		return
	}
	if err := h.overrides.Replace(r.Context(), userID, overrides); err != nil {
		h.logger.Error("replace overrides", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
