package repository

import (
	"context"

	"github.com/intranet/auth-server-go/internal/database"
	"github.com/intranet/auth-server-go/internal/model"
)

const profileColumns = `user_id, firstname, lastname, email, created_at, updated_at`

// ProfileRepository handles member profiles in the content database
type ProfileRepository interface {
	FindByUserID(ctx context.Context, userID string) (*model.MemberProfile, error)
	Upsert(ctx context.Context, params model.UpsertMemberProfileParams) (*model.MemberProfile, error)
	UpdateEmail(ctx context.Context, userID string, email string) error
}

type profileRepo struct {
	db database.DBTX
}

func NewProfileRepository(db database.DBTX) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) FindByUserID(ctx context.Context, userID string) (*model.MemberProfile, error) {
	var p model.MemberProfile
	err := r.db.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM member_profiles WHERE user_id = $1`, userID)
	return HandleNotFound(&p, err)
}

func (r *profileRepo) Upsert(ctx context.Context, params model.UpsertMemberProfileParams) (*model.MemberProfile, error) {
	var p model.MemberProfile
	err := r.db.GetContext(ctx, &p, `
		INSERT INTO member_profiles (user_id, firstname, lastname, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET firstname = EXCLUDED.firstname,
			lastname = EXCLUDED.lastname,
			email = EXCLUDED.email,
			updated_at = NOW()
		RETURNING `+profileColumns,
		params.UserID, params.Firstname, params.Lastname, params.Email)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepo) UpdateEmail(ctx context.Context, userID string, email string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE member_profiles SET email = $1, updated_at = NOW() WHERE user_id = $2
	`, email, userID)
	return err
}
