package service

import (
	"context"

	"github.com/intranet/auth-server-go/internal/audit"
	apperrors "github.com/intranet/auth-server-go/internal/errors"
	"github.com/intranet/auth-server-go/internal/model"
	"github.com/intranet/auth-server-go/internal/repository"
	"github.com/intranet/auth-server-go/internal/util"
)

// PermissionService evaluates roles and performs role mutations. Decisions
// are made on the effective role of a session that has already been
// reconciled with the identity store.
type PermissionService struct {
	identity repository.IdentityStore
}

func NewPermissionService(identity repository.IdentityStore) *PermissionService {
	return &PermissionService{identity: identity}
}

// CheckPermission reports whether the caller's level reaches required's level
// or the caller holds a super-admin role.
func (p *PermissionService) CheckPermission(s *model.Session, required model.Role) bool {
	if s == nil {
		return false
	}
	return s.EffectiveRole().AtLeast(required)
}

// Can reports whether the caller's role grants capability.
func (p *PermissionService) Can(s *model.Session, capability string) bool {
	if s == nil {
		return false
	}
	return s.EffectiveRole().HasCapability(capability)
}

func (p *PermissionService) RequireRole(ctx context.Context, s *model.Session, required model.Role, action string) error {
	if p.CheckPermission(s, required) {
		return nil
	}
	p.deny(ctx, s, action, "required_role:"+string(required))
	return apperrors.PermissionDenied()
}

func (p *PermissionService) RequireCapability(ctx context.Context, s *model.Session, capability string, action string) error {
	if p.Can(s, capability) {
		return nil
	}
	p.deny(ctx, s, action, "required_capability:"+capability)
	return apperrors.PermissionDenied()
}

func (p *PermissionService) deny(ctx context.Context, s *model.Session, action, reason string) {
	event := audit.Event{
		Type:    audit.EventPermissionDenied,
		Reason:  reason,
		Details: map[string]interface{}{"action": action},
	}
	if s != nil {
		event.UserID = s.UserID
		event.Email = s.Email
		event.Details["role"] = string(s.EffectiveRole())
	}
	audit.Log(ctx, event)
}

// UpdateUserRole assigns roleName to the target user. Callers outside the
// super-admin set may only grant roles below their own level and only touch
// users whose current role is below their own level.
func (p *PermissionService) UpdateUserRole(ctx context.Context, caller *model.Session, targetID string, roleName string) (*model.User, error) {
	if err := p.RequireCapability(ctx, caller, model.CapUsersRoles, "update_user_role"); err != nil {
		return nil, err
	}
	role, err := model.ParseRole(roleName)
	if err != nil {
		return nil, apperrors.InvalidInput("role", err.Error())
	}
	if !util.IsValidUUID(targetID) {
		return nil, apperrors.NotFound("User")
	}

	callerRole := caller.EffectiveRole()
	if !callerRole.IsSuperAdmin() && role.Level() >= callerRole.Level() {
		p.deny(ctx, caller, "update_user_role", "grant_not_below_own_level")
		return nil, apperrors.PermissionDenied()
	}

	var updated *model.User
	var previous model.Role
	err = p.identity.WithTx(ctx, func(tx repository.IdentityStore) error {
		target, err := tx.Users().FindByIDForUpdate(ctx, targetID)
		if err != nil {
			return err
		}
		if target == nil {
			return apperrors.NotFound("User")
		}
		if !callerRole.IsSuperAdmin() && target.Role.Level() >= callerRole.Level() {
			p.deny(ctx, caller, "update_user_role", "target_not_below_own_level")
			return apperrors.PermissionDenied()
		}

		if err := tx.Users().UpdateRole(ctx, targetID, role); err != nil {
			return err
		}
		previous = target.Role
		target.Role = role
		updated = target
		return nil
	})
	if err != nil {
		return nil, storageError("update user role", err)
	}

	audit.Log(ctx, audit.Event{
		Type:   audit.EventRoleUpdate,
		UserID: caller.UserID,
		Details: map[string]interface{}{
			"target_user_id": targetID,
			"previous_role":  string(previous),
			"role":           string(role),
		},
	})
	return updated, nil
}

// ValidateAlumni marks an alumni account as confirmed so its role takes effect.
func (p *PermissionService) ValidateAlumni(ctx context.Context, caller *model.Session, targetID string) (*model.User, error) {
	if err := p.RequireCapability(ctx, caller, model.CapAlumniValidate, "validate_alumni"); err != nil {
		return nil, err
	}
	if !util.IsValidUUID(targetID) {
		return nil, apperrors.NotFound("User")
	}

	var updated *model.User
	err := p.identity.WithTx(ctx, func(tx repository.IdentityStore) error {
		target, err := tx.Users().FindByIDForUpdate(ctx, targetID)
		if err != nil {
			return err
		}
		if target == nil {
			return apperrors.NotFound("User")
		}
		if target.Role != model.RoleAlumni {
			return apperrors.ValidationError("Only alumni accounts require validation")
		}
		if err := tx.Users().SetAlumniValidated(ctx, targetID, true); err != nil {
			return err
		}
		target.AlumniValidated = true
		updated = target
		return nil
	})
	if err != nil {
		return nil, storageError("validate alumni", err)
	}

	audit.Log(ctx, audit.Event{
		Type:    audit.EventAlumniValidate,
		UserID:  caller.UserID,
		Details: map[string]interface{}{"target_user_id": targetID},
	})
	return updated, nil
}
