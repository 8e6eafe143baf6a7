package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/intranet/auth-server-go/internal/httputil"
)

type EventType string

const (
	EventLoginSuccess       EventType = "login_success"
	EventLoginFailure       EventType = "login_failure"
	EventLoginRateLimited   EventType = "login_rate_limited"
	EventLogout             EventType = "logout"
	EventSessionCreate      EventType = "session_create"
	EventSessionExpired     EventType = "session_expired"
	EventSessionInvalidated EventType = "session_invalidated"
	EventSessionRefreshed   EventType = "session_refreshed"
	EventCSRFFailure        EventType = "csrf_failure"
	EventPermissionDenied   EventType = "permission_denied"
	EventRateLimitExceed    EventType = "rate_limit_exceeded"
	EventInvitationCreate   EventType = "invitation_create"
	EventInvitationRedeem   EventType = "invitation_redeem"
	EventInvitationReject   EventType = "invitation_reject"
	EventInvitationCancel   EventType = "invitation_cancel"
	EventRoleUpdate         EventType = "role_update"
	EventAlumniValidate     EventType = "alumni_validate"
	EventPasswordChange     EventType = "password_change"
	EventEmailChange        EventType = "email_change"
	EventTOTPEnable         EventType = "totp_enable"
	EventTOTPDisable        EventType = "totp_disable"
)

// warnEvents are logged at warn level so they stand out in aggregation.
var warnEvents = map[EventType]bool{
	EventLoginFailure:       true,
	EventLoginRateLimited:   true,
	EventCSRFFailure:        true,
	EventPermissionDenied:   true,
	EventRateLimitExceed:    true,
	EventSessionInvalidated: true,
	EventInvitationReject:   true,
}

type Event struct {
	Type      EventType
	UserID    string
	Email     string
	IP        string
	UserAgent string
	Reason    string
	Details   map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With().Str("request_id", reqID).Logger()
	}
	if event.UserID != "" {
		logger = logger.With().Str("user_id", event.UserID).Logger()
	}
	if event.Email != "" {
		logger = logger.With().Str("email", event.Email).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}
	if event.Reason != "" {
		logger = logger.With().Str("reason", event.Reason).Logger()
	}

	level := zerolog.InfoLevel
	if warnEvents[event.Type] {
		level = zerolog.WarnLevel
	}
	logEvent := logger.WithLevel(level)
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = httputil.ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}
