package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/intranet/auth-server-go/internal/errors"
	"github.com/intranet/auth-server-go/internal/model"
)

func TestUserService_GetMe(t *testing.T) {
	ctx := context.Background()

	t.Run("repairs a missing profile", func(t *testing.T) {
		f := newFixture(t)
		sess := f.sessionFor(t, "ana@x.test", model.RoleMember)

		me, err := f.users.GetMe(ctx, sess)
		require.NoError(t, err)
		require.NotNil(t, me.Profile)
		assert.Equal(t, "ana@x.test", me.Profile.Email)
		assert.Equal(t, model.RoleMember, me.EffectiveRole)
		assert.Contains(t, me.Capabilities, model.CapEventsSignup)

		_, ok := f.content.Profile(sess.UserID)
		assert.True(t, ok)
	})

	t.Run("content outage degrades to identity only", func(t *testing.T) {
		f := newFixture(t)
		sess := f.sessionFor(t, "ana@x.test", model.RoleMember)
		f.content.FailWith(errors.New("down"))

		me, err := f.users.GetMe(ctx, sess)
		require.NoError(t, err)
		assert.Nil(t, me.Profile)
		assert.Equal(t, sess.UserID, me.User.ID)
	})

	t.Run("unvalidated alumni see no capabilities", func(t *testing.T) {
		f := newFixture(t)
		sess := f.sessionFor(t, "alumni@x.test", model.RoleAlumni)
		f.identity.UpdateUser(sess.UserID, func(u *model.User) { u.AlumniValidated = false })

		me, err := f.users.GetMe(ctx, sess)
		require.NoError(t, err)
		assert.Equal(t, model.RoleNone, me.EffectiveRole)
		assert.Empty(t, me.Capabilities)
	})
}

func TestUserService_ListUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lead := f.sessionFor(t, "lead@x.test", model.RoleDepartmentLead)
	member := f.sessionFor(t, "member@x.test", model.RoleMember)
	for i := 0; i < 5; i++ {
		f.seedUser(t, fmt.Sprintf("user%d@x.test", i), model.RoleMember)
	}

	t.Run("requires users.view", func(t *testing.T) {
		_, err := f.users.ListUsers(ctx, member, model.ListUsersParams{Limit: 10})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePermissionDenied))
	})

	t.Run("paginates", func(t *testing.T) {
		page, err := f.users.ListUsers(ctx, lead, model.ListUsersParams{Limit: 3, Offset: 0})
		require.NoError(t, err)
		assert.Len(t, page.Users, 3)
		assert.Equal(t, 7, page.Total)

		page, err = f.users.ListUsers(ctx, lead, model.ListUsersParams{Limit: 3, Offset: 6})
		require.NoError(t, err)
		assert.Len(t, page.Users, 1)
	})
}
