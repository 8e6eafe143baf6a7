package model

import (
	"strings"
	"time"
)

type User struct {
	ID              string     `db:"id" json:"id"`
	Email           string     `db:"email" json:"email"`
	PasswordHash    *string    `db:"password" json:"-"`
	Firstname       string     `db:"firstname" json:"firstname"`
	Lastname        string     `db:"lastname" json:"lastname"`
	Role            Role       `db:"role" json:"role"`
	AlumniValidated bool       `db:"alumni_validated" json:"alumniValidated"`
	TOTPSecret      *string    `db:"totp_secret" json:"-"`
	TOTPEnabled     bool       `db:"totp_enabled" json:"totpEnabled"`
	TOTPVerifiedAt  *time.Time `db:"totp_verified_at" json:"totpVerifiedAt,omitempty"`
	LastLoginAt     *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

// HasPassword is false for accounts that cannot sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.Firstname + " " + u.Lastname)
	if name == "" {
		return u.Email
	}
	return name
}

func (u *User) EffectiveRole() Role {
	return EffectiveRole(u.Role, u.AlumniValidated)
}

type CreateUserParams struct {
	Email           string
	PasswordHash    string
	Firstname       string
	Lastname        string
	Role            Role
	AlumniValidated bool
}

type ListUsersParams struct {
	Limit  int
	Offset int
}
