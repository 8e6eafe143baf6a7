package handler

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/intranet/auth-server-go/internal/config"
	"github.com/intranet/auth-server-go/internal/middleware"
	"github.com/intranet/auth-server-go/internal/model"
	"github.com/intranet/auth-server-go/internal/ratelimit"
	"github.com/intranet/auth-server-go/internal/service"
)

type Dependencies struct {
	Auth        *service.AuthService
	Users       *service.UserService
	Invitations *service.InvitationService
	Permissions *service.PermissionService
	Sessions    *service.SessionManager

	// Limiter throttles anonymous invitation redemption per client IP.
	Limiter              ratelimit.Limiter
	RedeemLimitPerMinute int
	SecureCookie         bool

	// TrustedProxies may set the client IP through forwarding headers.
	TrustedProxies []netip.Prefix
}

func NewRouter(d Dependencies) chi.Router {
	csrf := middleware.NewCSRFMiddleware(d.SecureCookie)
	sessions := middleware.NewSessionMiddleware(d.Sessions, d.SecureCookie)
	redeemLimit := middleware.NewIPRateLimitMiddleware(d.Limiter, d.RedeemLimitPerMinute, time.Minute, "redeem")

	authHandler := NewAuthHandler(d.Auth, d.Users, d.Sessions, csrf, d.SecureCookie)
	invitationHandler := NewInvitationHandler(d.Invitations)
	userHandler := NewUserHandler(d.Users, d.Permissions)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewRealIPMiddleware(d.TrustedProxies).Handler)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(middleware.NewBodyLimitMiddleware(0).Handler)
	r.Use(middleware.NewSecurityHeadersMiddleware(d.SecureCookie).Handler)

	r.Get("/health", Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/csrf", authHandler.CSRFToken)
		r.Get("/invitations/lookup/{token}", invitationHandler.Lookup)

		r.Group(func(r chi.Router) {
			r.Use(csrf.Handler)
			r.Post("/login", authHandler.Login)
			r.With(redeemLimit.Handler).Post("/invitations/redeem", invitationHandler.Redeem)
		})

		r.Group(func(r chi.Router) {
			r.Use(sessions.Handler)
			r.Use(middleware.RequireSessionCSRF)

			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
			r.Post("/me/password", authHandler.ChangePassword)
			r.Post("/me/email", authHandler.ChangeEmail)
			r.Post("/me/totp/setup", authHandler.TOTPSetup)
			r.Post("/me/totp/enable", authHandler.TOTPEnable)
			r.Post("/me/totp/disable", authHandler.TOTPDisable)

			r.With(middleware.RequireCapability(d.Permissions, model.CapInvitationsView)).
				Get("/invitations", invitationHandler.List)
			r.With(middleware.RequireRole(d.Permissions, service.InviterRole)).
				Post("/invitations", invitationHandler.Create)
			r.With(middleware.RequireRole(d.Permissions, service.InviterRole)).
				Delete("/invitations/{id}", invitationHandler.Cancel)

			r.With(middleware.RequireCapability(d.Permissions, model.CapUsersView)).
				Get("/users", userHandler.List)
			r.With(middleware.RequireCapability(d.Permissions, model.CapUsersRoles)).
				Patch("/users/{id}/role", userHandler.UpdateRole)
			r.With(middleware.RequireCapability(d.Permissions, model.CapAlumniValidate)).
				Post("/users/{id}/validate", userHandler.ValidateAlumni)
		})
	})

	return r
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}
