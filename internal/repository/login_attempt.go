package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/intranet/auth-server-go/internal/database"
	"github.com/intranet/auth-server-go/internal/model"
)

// LoginAttemptRepository is the append-only attempt ledger. Rows are only
// ever inserted or aged out.
type LoginAttemptRepository interface {
	Create(ctx context.Context, params model.CreateLoginAttemptParams) error
	CountFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error)
	CountFailuresByEmail(ctx context.Context, email string, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type loginAttemptRepo struct {
	db database.DBTX
}

func NewLoginAttemptRepository(db database.DBTX) LoginAttemptRepository {
	return &loginAttemptRepo{db: db}
}

func (r *loginAttemptRepo) Create(ctx context.Context, params model.CreateLoginAttemptParams) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_attempts (ip_address, email, attempt_time, success, user_agent)
		VALUES ($1, $2, $3, $4, $5)
	`, params.IPAddress, nullString(params.Email), params.AttemptTime, params.Success, nullString(params.UserAgent))
	return err
}

func (r *loginAttemptRepo) CountFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM login_attempts
		WHERE ip_address = $1 AND success = FALSE AND attempt_time > $2
	`, ip, since)
	return count, err
}

func (r *loginAttemptRepo) CountFailuresByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = FALSE AND attempt_time > $2
	`, email, since)
	return count, err
}

func (r *loginAttemptRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `
		DELETE FROM login_attempts WHERE attempt_time < $1
	`, cutoff))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
