package model

import "time"

type AuthMethod string

const (
	AuthMethodPassword AuthMethod = "password"
)

// Session is the server-held state behind a session cookie.
type Session struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Email           string     `json:"email"`
	DisplayName     string     `json:"displayName"`
	Role            Role       `json:"role"`
	AlumniValidated bool       `json:"alumniValidated"`
	AuthMethod      AuthMethod `json:"authMethod"`
	CSRFToken       string     `json:"csrfToken"`
	// PendingTOTPSecret holds a secret between setup and confirmation.
	PendingTOTPSecret string    `json:"pendingTotpSecret,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	LastActivity      time.Time `json:"lastActivity"`
}

func (s *Session) EffectiveRole() Role {
	return EffectiveRole(s.Role, s.AlumniValidated)
}

// IsIdleAt reports whether the inactivity gap exceeds timeout. A gap of
// exactly timeout is still live.
func (s *Session) IsIdleAt(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivity) > timeout
}
