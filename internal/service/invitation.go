package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intranet/auth-server-go/internal/audit"
	"github.com/intranet/auth-server-go/internal/auth"
	apperrors "github.com/intranet/auth-server-go/internal/errors"
	"github.com/intranet/auth-server-go/internal/model"
	"github.com/intranet/auth-server-go/internal/repository"
	"github.com/intranet/auth-server-go/internal/util"
)

const (
	// InviterRole is the lowest role allowed to invite: any board position.
	InviterRole = model.RoleBoardFinance

	maxInvitationTTL = 30 * 24 * time.Hour
	maxNameLength    = 100
)

type InvitationServiceConfig struct {
	DefaultTTL time.Duration
	Retention  time.Duration
}

type InvitationService struct {
	identity    repository.IdentityStore
	content     repository.ContentStore
	permissions *PermissionService
	cfg         InvitationServiceConfig
	now         func() time.Time
}

func NewInvitationService(
	identity repository.IdentityStore,
	content repository.ContentStore,
	permissions *PermissionService,
	cfg InvitationServiceConfig,
) *InvitationService {
	return &InvitationService{
		identity:    identity,
		content:     content,
		permissions: permissions,
		cfg:         cfg,
		now:         time.Now,
	}
}

type RedeemParams struct {
	Token     string
	Firstname string
	Lastname  string
	Password  string
}

// CreateInvitation issues a single-use registration token for email. A
// non-positive ttl selects the configured default.
func (s *InvitationService) CreateInvitation(ctx context.Context, caller *model.Session, email, roleName string, ttl time.Duration) (*model.Invitation, error) {
	if err := s.permissions.RequireRole(ctx, caller, InviterRole, "create_invitation"); err != nil {
		return nil, err
	}

	email = util.NormalizeEmail(email)
	if !util.IsValidEmail(email) {
		return nil, apperrors.InvalidInput("email", "must be a valid address")
	}
	role, err := model.ParseRole(roleName)
	if err != nil {
		return nil, apperrors.InvalidInput("role", err.Error())
	}
	callerRole := caller.EffectiveRole()
	if !callerRole.IsSuperAdmin() && role.Level() >= callerRole.Level() {
		s.permissions.deny(ctx, caller, "create_invitation", "grant_not_below_own_level")
		return nil, apperrors.PermissionDenied()
	}

	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	if ttl > maxInvitationTTL {
		return nil, apperrors.InvalidInput("ttl", "must be at most 30 days")
	}

	existing, err := s.identity.Users().FindByEmail(ctx, email)
	if err != nil {
		return nil, storageError("find user by email", err)
	}
	if existing != nil {
		return nil, apperrors.AlreadyExists("User")
	}

	token, err := util.GenerateToken()
	if err != nil {
		return nil, apperrors.Internal("Failed to generate invitation").WithCause(err)
	}

	now := s.now()
	inv, err := s.identity.Invitations().Create(ctx, model.CreateInvitationParams{
		Email:     email,
		Token:     token,
		Role:      role,
		CreatedBy: caller.UserID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return nil, storageError("create invitation", err)
	}

	audit.Log(ctx, audit.Event{
		Type:   audit.EventInvitationCreate,
		UserID: caller.UserID,
		Email:  email,
		Details: map[string]interface{}{
			"invitation_id": inv.ID,
			"role":          string(role),
			"expires_at":    inv.ExpiresAt,
		},
	})
	return inv, nil
}

// LookupInvitation returns a redeemable invitation without consuming it.
func (s *InvitationService) LookupInvitation(ctx context.Context, token string) (*model.Invitation, error) {
	if token == "" {
		return nil, apperrors.InvitationNotFound()
	}
	inv, err := s.identity.Invitations().FindByToken(ctx, token)
	if err != nil {
		return nil, storageError("find invitation", err)
	}
	if err := checkRedeemable(inv, s.now()); err != nil {
		return nil, err
	}
	return inv, nil
}

func checkRedeemable(inv *model.Invitation, now time.Time) error {
	switch {
	case inv == nil:
		return apperrors.InvitationNotFound()
	case inv.IsAccepted():
		return apperrors.InvitationAlreadyUsed()
	case inv.IsExpiredAt(now):
		return apperrors.InvitationExpired()
	}
	return nil
}

// RedeemInvitation creates the invited user and consumes the invitation in
// one identity transaction. Concurrent redemptions of the same token race on
// a conditional update; exactly one wins.
func (s *InvitationService) RedeemInvitation(ctx context.Context, params RedeemParams) (*model.User, error) {
	firstname := strings.TrimSpace(params.Firstname)
	lastname := strings.TrimSpace(params.Lastname)
	if params.Token == "" {
		return nil, apperrors.InvitationNotFound()
	}
	if firstname == "" {
		return nil, apperrors.MissingRequired("firstname")
	}
	if lastname == "" {
		return nil, apperrors.MissingRequired("lastname")
	}
	if len(firstname) > maxNameLength || len(lastname) > maxNameLength {
		return nil, apperrors.InvalidInput("name", "too long")
	}
	if err := auth.ValidatePassword(params.Password); err != nil {
		return nil, apperrors.InvalidInput("password", err.Error())
	}

	// Hashing is slow; keep it outside the transaction.
	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return nil, apperrors.Internal("Failed to process password").WithCause(err)
	}

	now := s.now()
	var (
		created *model.User
		inv     *model.Invitation
	)
	err = s.identity.WithTx(ctx, func(tx repository.IdentityStore) error {
		inv, err = tx.Invitations().FindByToken(ctx, params.Token)
		if err != nil {
			return err
		}
		if err := checkRedeemable(inv, now); err != nil {
			return err
		}

		won, err := tx.Invitations().MarkAccepted(ctx, params.Token, now)
		if err != nil {
			return err
		}
		if !won {
			return apperrors.InvitationAlreadyUsed()
		}

		existing, err := tx.Users().FindByEmail(ctx, inv.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.AlreadyExists("User")
		}

		created, err = tx.Users().Create(ctx, model.CreateUserParams{
			Email:        inv.Email,
			PasswordHash: hash,
			Firstname:    firstname,
			Lastname:     lastname,
			Role:         inv.Role,
		})
		if repository.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("User")
		}
		return err
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			audit.Log(ctx, audit.Event{
				Type:    audit.EventInvitationReject,
				Reason:  string(apperrors.GetCode(err)),
				Details: map[string]interface{}{"token": util.MaskToken(params.Token)},
			})
		}
		return nil, storageError("redeem invitation", err)
	}

	s.ensureProfile(ctx, created)

	audit.Log(ctx, audit.Event{
		Type:   audit.EventInvitationRedeem,
		UserID: created.ID,
		Email:  created.Email,
		Details: map[string]interface{}{
			"invitation_id": inv.ID,
			"role":          string(created.Role),
			"invited_by":    inv.CreatedBy,
		},
	})
	return created, nil
}

// ensureProfile creates the content-side profile. The two databases share no
// transaction, so a failure here is logged and repaired on the next /me.
func (s *InvitationService) ensureProfile(ctx context.Context, user *model.User) {
	_, err := s.content.Profiles().Upsert(ctx, model.UpsertMemberProfileParams{
		UserID:    user.ID,
		Firstname: user.Firstname,
		Lastname:  user.Lastname,
		Email:     user.Email,
	})
	if err != nil {
		log.Error().Err(err).Str("userId", user.ID).Msg("failed to create member profile")
	}
}

func (s *InvitationService) ListPending(ctx context.Context, caller *model.Session) ([]model.Invitation, error) {
	if err := s.permissions.RequireCapability(ctx, caller, model.CapInvitationsView, "list_invitations"); err != nil {
		return nil, err
	}
	invs, err := s.identity.Invitations().ListPending(ctx, s.now())
	if err != nil {
		return nil, storageError("list invitations", err)
	}
	return invs, nil
}

func (s *InvitationService) CancelInvitation(ctx context.Context, caller *model.Session, id string) error {
	if err := s.permissions.RequireRole(ctx, caller, InviterRole, "cancel_invitation"); err != nil {
		return err
	}
	if !util.IsValidUUID(id) {
		return apperrors.NotFound("Invitation")
	}

	deleted, err := s.identity.Invitations().DeletePending(ctx, id)
	if err != nil {
		return storageError("cancel invitation", err)
	}
	if !deleted {
		inv, err := s.identity.Invitations().FindByID(ctx, id)
		if err != nil {
			return storageError("find invitation", err)
		}
		if inv == nil {
			return apperrors.NotFound("Invitation")
		}
		return apperrors.InvitationAlreadyUsed()
	}

	audit.Log(ctx, audit.Event{
		Type:    audit.EventInvitationCancel,
		UserID:  caller.UserID,
		Details: map[string]interface{}{"invitation_id": id},
	})
	return nil
}

// CleanupExpired removes unredeemed invitations that expired longer ago than
// the retention horizon.
func (s *InvitationService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.identity.Invitations().DeleteExpiredBefore(ctx, s.now().Add(-s.cfg.Retention))
}
