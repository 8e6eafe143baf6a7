package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/intranet/auth-server-go/internal/errors"
	"github.com/intranet/auth-server-go/internal/model"
	"github.com/intranet/auth-server-go/internal/service"
)

const SessionCookie = "session"

type contextKey string

const (
	SessionContextKey      contextKey = "session"
	SessionTokenContextKey contextKey = "sessionToken"
)

func GetSession(ctx context.Context) *model.Session {
	if s, ok := ctx.Value(SessionContextKey).(*model.Session); ok {
		return s
	}
	return nil
}

func GetSessionToken(ctx context.Context) string {
	if token, ok := ctx.Value(SessionTokenContextKey).(string); ok {
		return token
	}
	return ""
}

// WithSession returns a context carrying s and its cookie token.
func WithSession(ctx context.Context, s *model.Session, token string) context.Context {
	ctx = context.WithValue(ctx, SessionContextKey, s)
	return context.WithValue(ctx, SessionTokenContextKey, token)
}

// SessionTokenFromRequest returns the session cookie value, or "" when absent.
func SessionTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SessionMiddleware loads the session named by the cookie, enforces the idle
// timeout and reconciles it with the identity store before any handler makes
// a permission decision.
type SessionMiddleware struct {
	sessions *service.SessionManager
	secure   bool
}

func NewSessionMiddleware(sessions *service.SessionManager, secure bool) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions, secure: secure}
}

func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := SessionTokenFromRequest(r)
		if token == "" {
			writeError(w, apperrors.Unauthorized("Authentication required"))
			return
		}

		s, err := m.sessions.Validate(r.Context(), token)
		if err == nil {
			s, err = m.sessions.Refresh(r.Context(), token, s)
		}
		if err != nil {
			switch apperrors.GetCode(err) {
			case apperrors.ErrCodeUnauthorized, apperrors.ErrCodeSessionExpired:
				ClearSessionCookie(w, m.secure)
			default:
				log.Error().Err(err).Msg("session middleware: validation failed")
			}
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s, token)))
	})
}

// SetSessionCookie writes the session cookie. It carries no Max-Age: the
// server enforces the idle timeout and the browser drops it on close.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
