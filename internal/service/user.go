package service

import (
	"context"

	"github.com/rs/zerolog/log"

	apperrors "github.com/intranet/auth-server-go/internal/errors"
	"github.com/intranet/auth-server-go/internal/model"
	"github.com/intranet/auth-server-go/internal/repository"
)

type UserService struct {
	identity    repository.IdentityStore
	content     repository.ContentStore
	permissions *PermissionService
}

func NewUserService(identity repository.IdentityStore, content repository.ContentStore, permissions *PermissionService) *UserService {
	return &UserService{identity: identity, content: content, permissions: permissions}
}

// Me joins the identity record with its content profile.
type Me struct {
	User          *model.User          `json:"user"`
	Profile       *model.MemberProfile `json:"profile,omitempty"`
	EffectiveRole model.Role           `json:"effectiveRole"`
	Capabilities  []string             `json:"capabilities"`
}

func (s *UserService) GetMe(ctx context.Context, sess *model.Session) (*Me, error) {
	user, err := s.identity.Users().FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, storageError("find user", err)
	}
	if user == nil {
		return nil, apperrors.Unauthorized("Session is no longer valid")
	}

	me := &Me{
		User:          user,
		EffectiveRole: user.EffectiveRole(),
		Capabilities:  user.EffectiveRole().Capabilities(),
	}

	profile, err := s.content.Profiles().FindByUserID(ctx, user.ID)
	if err != nil {
		log.Error().Err(err).Str("userId", user.ID).Msg("failed to load member profile")
		return me, nil
	}
	if profile == nil {
		profile, err = s.content.Profiles().Upsert(ctx, model.UpsertMemberProfileParams{
			UserID:    user.ID,
			Firstname: user.Firstname,
			Lastname:  user.Lastname,
			Email:     user.Email,
		})
		if err != nil {
			log.Error().Err(err).Str("userId", user.ID).Msg("failed to repair member profile")
			return me, nil
		}
		log.Info().Str("userId", user.ID).Msg("member profile repaired")
	}
	me.Profile = profile
	return me, nil
}

type UserPage struct {
	Users []model.User `json:"users"`
	Total int          `json:"total"`
}

func (s *UserService) ListUsers(ctx context.Context, caller *model.Session, params model.ListUsersParams) (*UserPage, error) {
	if err := s.permissions.RequireCapability(ctx, caller, model.CapUsersView, "list_users"); err != nil {
		return nil, err
	}

	users, err := s.identity.Users().List(ctx, params)
	if err != nil {
		return nil, storageError("list users", err)
	}
	total, err := s.identity.Users().Count(ctx)
	if err != nil {
		return nil, storageError("count users", err)
	}
	if users == nil {
		users = []model.User{}
	}
	return &UserPage{Users: users, Total: total}, nil
}
