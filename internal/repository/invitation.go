package repository

import (
	"context"
	"time"

	"github.com/intranet/auth-server-go/internal/database"
	"github.com/intranet/auth-server-go/internal/model"
)

const invitationColumns = `id, email, token, role, created_by, created_at, expires_at, accepted_at`

// InvitationRepository handles the invitation ledger
type InvitationRepository interface {
	Create(ctx context.Context, params model.CreateInvitationParams) (*model.Invitation, error)
	FindByID(ctx context.Context, id string) (*model.Invitation, error)
	FindByToken(ctx context.Context, token string) (*model.Invitation, error)
	MarkAccepted(ctx context.Context, token string, at time.Time) (bool, error)
	ListPending(ctx context.Context, now time.Time) ([]model.Invitation, error)
	DeletePending(ctx context.Context, id string) (bool, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type invitationRepo struct {
	db database.DBTX
}

func NewInvitationRepository(db database.DBTX) InvitationRepository {
	return &invitationRepo{db: db}
}

func (r *invitationRepo) Create(ctx context.Context, params model.CreateInvitationParams) (*model.Invitation, error) {
	var inv model.Invitation
	err := r.db.GetContext(ctx, &inv, `
		INSERT INTO invitations (email, token, role, created_by, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+invitationColumns,
		params.Email, params.Token, params.Role, params.CreatedBy, params.CreatedAt, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invitationRepo) FindByID(ctx context.Context, id string) (*model.Invitation, error) {
	var inv model.Invitation
	err := r.db.GetContext(ctx, &inv, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
	return HandleNotFound(&inv, err)
}

func (r *invitationRepo) FindByToken(ctx context.Context, token string) (*model.Invitation, error) {
	var inv model.Invitation
	err := r.db.GetContext(ctx, &inv, `SELECT `+invitationColumns+` FROM invitations WHERE token = $1`, token)
	return HandleNotFound(&inv, err)
}

// MarkAccepted consumes the invitation only if it is still unaccepted and
// unexpired at at. It returns false when another redemption won the race.
func (r *invitationRepo) MarkAccepted(ctx context.Context, token string, at time.Time) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx, `
		UPDATE invitations
		SET accepted_at = $2
		WHERE token = $1 AND accepted_at IS NULL AND expires_at > $2
	`, token, at))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *invitationRepo) ListPending(ctx context.Context, now time.Time) ([]model.Invitation, error) {
	var invs []model.Invitation
	err := r.db.SelectContext(ctx, &invs, `
		SELECT `+invitationColumns+` FROM invitations
		WHERE accepted_at IS NULL AND expires_at > $1
		ORDER BY created_at DESC
	`, now)
	if err != nil {
		return nil, err
	}
	return invs, nil
}

// DeletePending cancels an invitation that has not been redeemed.
func (r *invitationRepo) DeletePending(ctx context.Context, id string) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx, `
		DELETE FROM invitations WHERE id = $1 AND accepted_at IS NULL
	`, id))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteExpiredBefore removes unredeemed invitations that expired before
// cutoff. Redeemed rows are kept as a record of who invited whom.
func (r *invitationRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `
		DELETE FROM invitations WHERE accepted_at IS NULL AND expires_at < $1
	`, cutoff))
}
