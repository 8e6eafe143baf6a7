package middleware

import (
	"net/http"

	"github.com/intranet/auth-server-go/internal/audit"
	apperrors "github.com/intranet/auth-server-go/internal/errors"
	"github.com/intranet/auth-server-go/internal/util"
)

const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
)

// CSRFMiddleware protects anonymous state-changing routes with the
// double-submit cookie pattern: the X-CSRF-Token header must echo the
// JavaScript-readable csrf_token cookie.
type CSRFMiddleware struct {
	secure bool
}

func NewCSRFMiddleware(secure bool) *CSRFMiddleware {
	return &CSRFMiddleware{secure: secure}
}

func (m *CSRFMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(CSRFCookieName)
		headerToken := r.Header.Get(CSRFHeaderName)
		if err != nil || cookie.Value == "" || headerToken == "" ||
			!util.ConstantTimeEqual(cookie.Value, headerToken) {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventCSRFFailure, Reason: "double_submit_mismatch"})
			writeError(w, apperrors.CSRFInvalid())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// IssueToken returns the request's double-submit token, setting a fresh
// cookie when none is present.
func (m *CSRFMiddleware) IssueToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(CSRFCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	token, err := util.GenerateToken()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false, // read by JavaScript to echo in the header
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// RequireSessionCSRF checks state-changing requests against the token bound
// to the session at login. It must run after SessionMiddleware.
func RequireSessionCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		s := GetSession(r.Context())
		headerToken := r.Header.Get(CSRFHeaderName)
		if s == nil || s.CSRFToken == "" || headerToken == "" ||
			!util.ConstantTimeEqual(s.CSRFToken, headerToken) {
			event := audit.Event{Type: audit.EventCSRFFailure, Reason: "session_token_mismatch"}
			if s != nil {
				event.UserID = s.UserID
			}
			audit.LogFromRequest(r, event)
			writeError(w, apperrors.CSRFInvalid())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}
