package model

import "time"

// MemberProfile lives in the content database. UserID refers to a user in the
// identity database without a foreign key.
type MemberProfile struct {
	UserID    string    `db:"user_id" json:"userId"`
	Firstname string    `db:"firstname" json:"firstname"`
	Lastname  string    `db:"lastname" json:"lastname"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type UpsertMemberProfileParams struct {
	UserID    string
	Firstname string
	Lastname  string
	Email     string
}
