package handler

import (
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/intranet/auth-server-go/internal/errors"
	"github.com/intranet/auth-server-go/internal/middleware"
	"github.com/intranet/auth-server-go/internal/service"
)

type AuthHandler struct {
	auth         *service.AuthService
	users        *service.UserService
	sessions     *service.SessionManager
	csrf         *middleware.CSRFMiddleware
	secureCookie bool
}

func NewAuthHandler(
	auth *service.AuthService,
	users *service.UserService,
	sessions *service.SessionManager,
	csrf *middleware.CSRFMiddleware,
	secureCookie bool,
) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		users:        users,
		sessions:     sessions,
		csrf:         csrf,
		secureCookie: secureCookie,
	}
}

func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrf.IssueToken(w, r)
	if err != nil {
		writeError(w, apperrors.Internal("Failed to generate security token").WithCause(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		TOTPCode string `json:"totpCode"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.auth.Login(r.Context(), service.LoginParams{
		Email:    req.Email,
		Password: req.Password,
		TOTPCode: req.TOTPCode,
		Client:   clientInfo(r),
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeSecondFactorRequired) {
			appErr, _ := apperrors.AsAppError(err)
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"success":      false,
				"requiresTotp": true,
				"error":        appErr.Message,
				"code":         appErr.Code,
			})
			return
		}
		writeError(w, err)
		return
	}

	// A fresh session replaces whatever the browser carried before.
	if old := middleware.SessionTokenFromRequest(r); old != "" {
		if err := h.sessions.Destroy(r.Context(), old); err != nil {
			log.Warn().Err(err).Msg("failed to destroy previous session on login")
		}
	}

	middleware.SetSessionCookie(w, result.Token, h.secureCookie)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"requiresTotp": false,
		"csrfToken":    result.Session.CSRFToken,
		"user":         result.User,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if err := h.auth.Logout(r.Context(), middleware.GetSessionToken(r.Context()), sess); err != nil {
		writeError(w, err)
		return
	}
	middleware.ClearSessionCookie(w, h.secureCookie)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	me, err := h.users.GetMe(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":          me.User,
		"profile":       me.Profile,
		"effectiveRole": me.EffectiveRole,
		"capabilities":  me.Capabilities,
		"csrfToken":     sess.CSRFToken,
	})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	sess := middleware.GetSession(r.Context())
	if err := h.auth.ChangePassword(r.Context(), sess, req.CurrentPassword, req.NewPassword, clientInfo(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) ChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
		Email    string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	sess := middleware.GetSession(ctx)
	if err := h.auth.ChangeEmail(ctx, middleware.GetSessionToken(ctx), sess, req.Password, req.Email, clientInfo(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "email": sess.Email})
}

func (h *AuthHandler) TOTPSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, err := h.auth.BeginTOTPSetup(ctx, middleware.GetSessionToken(ctx), middleware.GetSession(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"secret": key.Secret,
		"uri":    key.URI,
	})
}

func (h *AuthHandler) TOTPEnable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	if err := h.auth.EnableTOTP(ctx, middleware.GetSessionToken(ctx), middleware.GetSession(ctx), req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) TOTPDisable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
		Code     string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	sess := middleware.GetSession(r.Context())
	if err := h.auth.DisableTOTP(r.Context(), sess, req.Password, req.Code, clientInfo(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
