package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/intranet/auth-server-go/internal/middleware"
	"github.com/intranet/auth-server-go/internal/service"
)

type InvitationHandler struct {
	invites *service.InvitationService
}

func NewInvitationHandler(invites *service.InvitationService) *InvitationHandler {
	return &InvitationHandler{invites: invites}
}

// Lookup exposes only what the registration form needs.
func (h *InvitationHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invites.LookupInvitation(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email":     inv.Email,
		"role":      inv.Role,
		"expiresAt": inv.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *InvitationHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token     string `json:"token"`
		Firstname string `json:"firstname"`
		Lastname  string `json:"lastname"`
		Password  string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.invites.RedeemInvitation(r.Context(), service.RedeemParams{
		Token:     req.Token,
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Password:  req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "user": user})
}

func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	invs, err := h.invites.ListPending(r.Context(), middleware.GetSession(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": invs, "total": len(invs)})
}

func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Role     string `json:"role"`
		TTLHours int    `json:"ttlHours"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	inv, err := h.invites.CreateInvitation(
		r.Context(),
		middleware.GetSession(r.Context()),
		req.Email,
		req.Role,
		time.Duration(req.TTLHours)*time.Hour,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	// The token is shown once so the inviter can pass the link on.
	writeJSON(w, http.StatusCreated, map[string]any{
		"invitation": inv,
		"token":      inv.Token,
	})
}

func (h *InvitationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	err := h.invites.CancelInvitation(r.Context(), middleware.GetSession(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
