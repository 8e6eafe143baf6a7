package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/intranet/auth-server-go/internal/middleware"
	"github.com/intranet/auth-server-go/internal/service"
)

type UserHandler struct {
	users *service.UserService
	perms *service.PermissionService
}

func NewUserHandler(users *service.UserService, perms *service.PermissionService) *UserHandler {
	return &UserHandler{users: users, perms: perms}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	params := ParsePagination(r)
	page, err := h.users.ListUsers(r.Context(), middleware.GetSession(r.Context()), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":  page.Users,
		"total":  page.Total,
		"limit":  params.Limit,
		"offset": params.Offset,
	})
}

func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.perms.UpdateUserRole(r.Context(), middleware.GetSession(r.Context()), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *UserHandler) ValidateAlumni(w http.ResponseWriter, r *http.Request) {
	user, err := h.perms.ValidateAlumni(r.Context(), middleware.GetSession(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}
