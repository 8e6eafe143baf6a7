package repository

import (
	"context"
	"time"

	"github.com/intranet/auth-server-go/internal/database"
	"github.com/intranet/auth-server-go/internal/model"
)

const userColumns = `id, email, password, firstname, lastname, role, alumni_validated,
	totp_secret, totp_enabled, totp_verified_at, last_login_at, created_at, updated_at`

// UserRepository handles the users table of the identity database
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByIDForUpdate(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, params model.CreateUserParams) (*model.User, error)
	UpdateRole(ctx context.Context, id string, role model.Role) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	UpdateEmail(ctx context.Context, id string, email string) error
	SetAlumniValidated(ctx context.Context, id string, validated bool) error
	EnableTOTP(ctx context.Context, id string, secret string, verifiedAt time.Time) error
	DisableTOTP(ctx context.Context, id string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context, params model.ListUsersParams) ([]model.User, error)
	Count(ctx context.Context) (int, error)
}

type userRepo struct {
	db database.DBTX
}

// NewUserRepository creates a new user repository
func NewUserRepository(db database.DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return HandleNotFound(&user, err)
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (r *userRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return HandleNotFound(&user, err)
}

func (r *userRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		INSERT INTO users (email, password, firstname, lastname, role, alumni_validated)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		params.Email, params.PasswordHash, params.Firstname, params.Lastname, params.Role, params.AlumniValidated)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) UpdateRole(ctx context.Context, id string, role model.Role) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2
	`, role, id)
	return err
}

func (r *userRepo) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET password = $1, updated_at = NOW() WHERE id = $2
	`, passwordHash, id)
	return err
}

func (r *userRepo) UpdateEmail(ctx context.Context, id string, email string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET email = $1, updated_at = NOW() WHERE id = $2
	`, email, id)
	return err
}

func (r *userRepo) SetAlumniValidated(ctx context.Context, id string, validated bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET alumni_validated = $1, updated_at = NOW() WHERE id = $2
	`, validated, id)
	return err
}

func (r *userRepo) EnableTOTP(ctx context.Context, id string, secret string, verifiedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET totp_secret = $1, totp_enabled = TRUE, totp_verified_at = $2, updated_at = NOW()
		WHERE id = $3
	`, secret, verifiedAt, id)
	return err
}

func (r *userRepo) DisableTOTP(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET totp_secret = NULL, totp_enabled = FALSE, totp_verified_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

func (r *userRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, at, id)
	return err
}

func (r *userRepo) List(ctx context.Context, params model.ListUsersParams) ([]model.User, error) {
	var users []model.User
	err := r.db.SelectContext(ctx, &users, `
		SELECT `+userColumns+` FROM users
		ORDER BY lastname, firstname, email
		LIMIT $1 OFFSET $2
	`, params.Limit, params.Offset)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`)
	return count, err
}
