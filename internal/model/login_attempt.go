package model

import "time"

// LoginAttempt is one row of the append-only attempt ledger.
type LoginAttempt struct {
	ID          int64     `db:"id" json:"id"`
	IPAddress   string    `db:"ip_address" json:"ipAddress"`
	Email       *string   `db:"email" json:"email,omitempty"`
	AttemptTime time.Time `db:"attempt_time" json:"attemptTime"`
	Success     bool      `db:"success" json:"success"`
	UserAgent   *string   `db:"user_agent" json:"userAgent,omitempty"`
}

type CreateLoginAttemptParams struct {
	IPAddress   string
	Email       string
	AttemptTime time.Time
	Success     bool
	UserAgent   string
}
