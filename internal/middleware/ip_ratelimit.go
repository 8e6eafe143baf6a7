package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intranet/auth-server-go/internal/audit"
	apperrors "github.com/intranet/auth-server-go/internal/errors"
	"github.com/intranet/auth-server-go/internal/httputil"
	"github.com/intranet/auth-server-go/internal/ratelimit"
)

type IPRateLimitMiddleware struct {
	limiter ratelimit.Limiter
	limit   int
	window  time.Duration
	prefix  string
}

func NewIPRateLimitMiddleware(limiter ratelimit.Limiter, limit int, window time.Duration, prefix string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.ClientIP(r)

		key := fmt.Sprintf("ip:%s:%s", m.prefix, ip)
		allowed, resetAt, err := m.limiter.CheckLimit(r.Context(), key, m.limit, m.window)
		if err != nil {
			log.Error().Err(err).Str("prefix", m.prefix).Msg("rate limit store unavailable")
			writeError(w, apperrors.StorageUnavailable(err))
			return
		}

		if !allowed {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Reason:  m.prefix,
				Details: map[string]interface{}{"limit": m.limit},
			})
			secondsLeft := int(time.Until(resetAt).Seconds()) + 1
			if secondsLeft < 1 {
				secondsLeft = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secondsLeft))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "Too many requests. Please try again later.",
				"code":  "RATE_LIMITED",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
