package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/intranet/auth-server-go/internal/errors"
	"github.com/intranet/auth-server-go/internal/model"
)

func TestPermissionService_CheckPermission(t *testing.T) {
	p := NewPermissionService(nil)

	tests := []struct {
		name      string
		role      model.Role
		validated bool
		required  model.Role
		want      bool
	}{
		{"member meets member", model.RoleMember, true, model.RoleMember, true},
		{"member below lead", model.RoleMember, true, model.RoleDepartmentLead, false},
		{"lead above alumni", model.RoleDepartmentLead, true, model.RoleAlumni, true},
		{"board position below board", model.RoleBoardFinance, true, model.RoleBoard, false},
		{"board is super admin", model.RoleBoard, true, model.RoleAdmin, true},
		{"admin meets everything", model.RoleAdmin, true, model.RoleAdmin, true},
		{"validated alumni", model.RoleAlumni, true, model.RoleAlumni, true},
		{"unvalidated alumni is none", model.RoleAlumni, false, model.RoleAlumni, false},
		{"none meets none", model.RoleNone, false, model.RoleNone, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &model.Session{Role: tc.role, AlumniValidated: tc.validated}
			assert.Equal(t, tc.want, p.CheckPermission(s, tc.required))
		})
	}

	t.Run("nil session has no permissions", func(t *testing.T) {
		assert.False(t, p.CheckPermission(nil, model.RoleNone))
		assert.False(t, p.Can(nil, model.CapProfileView))
	})
}

func TestPermissionService_Can(t *testing.T) {
	p := NewPermissionService(nil)

	assert.True(t, p.Can(&model.Session{Role: model.RoleAdmin}, "anything"))
	assert.True(t, p.Can(&model.Session{Role: model.RoleMember}, model.CapEventsSignup))
	assert.False(t, p.Can(&model.Session{Role: model.RoleMember}, model.CapUsersView))
	assert.True(t, p.Can(&model.Session{Role: model.RoleAlumni, AlumniValidated: true}, model.CapDirectoryView))
	assert.False(t, p.Can(&model.Session{Role: model.RoleAlumni}, model.CapDirectoryView))
}

func TestPermissionService_UpdateUserRole(t *testing.T) {
	ctx := context.Background()

	t.Run("member cannot grant admin", func(t *testing.T) {
		f := newFixture(t)
		caller := f.sessionFor(t, "member@x.test", model.RoleMember)
		target := f.seedUser(t, "target@x.test", model.RoleMember)

		_, err := f.perms.UpdateUserRole(ctx, caller, target.ID, "admin")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePermissionDenied))

		stored, _ := f.identity.User(target.ID)
		assert.Equal(t, model.RoleMember, stored.Role)
	})

	t.Run("admin can grant admin", func(t *testing.T) {
		f := newFixture(t)
		caller := f.sessionFor(t, "admin@x.test", model.RoleAdmin)
		target := f.seedUser(t, "target@x.test", model.RoleMember)

		updated, err := f.perms.UpdateUserRole(ctx, caller, target.ID, "admin")
		require.NoError(t, err)
		assert.Equal(t, model.RoleAdmin, updated.Role)

		stored, _ := f.identity.User(target.ID)
		assert.Equal(t, model.RoleAdmin, stored.Role)
	})

	t.Run("unknown roles are rejected", func(t *testing.T) {
		f := newFixture(t)
		caller := f.sessionFor(t, "admin@x.test", model.RoleAdmin)
		target := f.seedUser(t, "target@x.test", model.RoleMember)

		_, err := f.perms.UpdateUserRole(ctx, caller, target.ID, "superuser")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	})

	t.Run("board position grants only below its own level", func(t *testing.T) {
		f := newFixture(t)
		caller := f.sessionFor(t, "internal@x.test", model.RoleBoardInternal)
		target := f.seedUser(t, "target@x.test", model.RoleMember)

		_, err := f.perms.UpdateUserRole(ctx, caller, target.ID, "department_lead")
		require.NoError(t, err)

		_, err = f.perms.UpdateUserRole(ctx, caller, target.ID, "board_finance")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePermissionDenied))
	})

	t.Run("board position cannot touch peers or superiors", func(t *testing.T) {
		f := newFixture(t)
		caller := f.sessionFor(t, "internal@x.test", model.RoleBoardInternal)
		peer := f.seedUser(t, "finance@x.test", model.RoleBoardFinance)

		_, err := f.perms.UpdateUserRole(ctx, caller, peer.ID, "member")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePermissionDenied))

		stored, _ := f.identity.User(peer.ID)
		assert.Equal(t, model.RoleBoardFinance, stored.Role)
	})

	t.Run("unknown target", func(t *testing.T) {
		f := newFixture(t)
		caller := f.sessionFor(t, "admin@x.test", model.RoleAdmin)

		_, err := f.perms.UpdateUserRole(ctx, caller, "00000000-0000-0000-0000-000000000000", "member")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})
}

func TestPermissionService_ValidateAlumni(t *testing.T) {
	ctx := context.Background()

	t.Run("validation lifts an alumni from none", func(t *testing.T) {
		f := newFixture(t)
		caller := f.sessionFor(t, "admin@x.test", model.RoleAdmin)
		alumni := f.seedUser(t, "alumni@x.test", model.RoleAlumni)
		f.identity.UpdateUser(alumni.ID, func(u *model.User) { u.AlumniValidated = false })

		before := &model.Session{UserID: alumni.ID, Role: model.RoleAlumni}
		assert.False(t, f.perms.CheckPermission(before, model.RoleAlumni))

		updated, err := f.perms.ValidateAlumni(ctx, caller, alumni.ID)
		require.NoError(t, err)
		assert.True(t, updated.AlumniValidated)

		stored, _ := f.identity.User(alumni.ID)
		assert.Equal(t, model.RoleAlumni, stored.Role)
		assert.Equal(t, model.RoleAlumni, stored.EffectiveRole())
	})

	t.Run("members lack the capability", func(t *testing.T) {
		f := newFixture(t)
		caller := f.sessionFor(t, "member@x.test", model.RoleMember)
		alumni := f.seedUser(t, "alumni@x.test", model.RoleAlumni)

		_, err := f.perms.ValidateAlumni(ctx, caller, alumni.ID)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePermissionDenied))
	})

	t.Run("non-alumni targets are rejected", func(t *testing.T) {
		f := newFixture(t)
		caller := f.sessionFor(t, "admin@x.test", model.RoleAdmin)
		member := f.seedUser(t, "member@x.test", model.RoleMember)

		_, err := f.perms.ValidateAlumni(ctx, caller, member.ID)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	})
}
