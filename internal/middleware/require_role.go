package middleware

import (
	"net/http"

	"github.com/intranet/auth-server-go/internal/model"
	"github.com/intranet/auth-server-go/internal/service"
)

// RequireRole rejects sessions whose effective role is below role. It must
// run after SessionMiddleware.
func RequireRole(perms *service.PermissionService, role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := perms.RequireRole(r.Context(), GetSession(r.Context()), role, r.Method+" "+r.URL.Path); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCapability rejects sessions whose role does not grant capability.
func RequireCapability(perms *service.PermissionService, capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := perms.RequireCapability(r.Context(), GetSession(r.Context()), capability, r.Method+" "+r.URL.Path); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
