package model

import "time"

type Invitation struct {
	ID         string     `db:"id" json:"id"`
	Email      string     `db:"email" json:"email"`
	Token      string     `db:"token" json:"-"`
	Role       Role       `db:"role" json:"role"`
	CreatedBy  string     `db:"created_by" json:"createdBy"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expiresAt"`
	AcceptedAt *time.Time `db:"accepted_at" json:"acceptedAt,omitempty"`
}

type CreateInvitationParams struct {
	Email     string
	Token     string
	Role      Role
	CreatedBy string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (i *Invitation) IsAccepted() bool {
	return i.AcceptedAt != nil
}

// IsExpiredAt treats the expiry instant itself as expired.
func (i *Invitation) IsExpiredAt(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
