package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intranet/auth-server-go/internal/auth"
	"github.com/intranet/auth-server-go/internal/jobs"
	"github.com/intranet/auth-server-go/internal/model"
	"github.com/intranet/auth-server-go/internal/repository/repotest"
	"github.com/intranet/auth-server-go/internal/session"
	"github.com/intranet/auth-server-go/internal/util"
)

const (
	testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testPassword      = "Str0ngPassw0rd!"
)

var baseTime = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	clock    *fakeClock
	identity *repotest.IdentityStore
	content  *repotest.ContentStore
	store    *session.MemoryStore
	sealer   *util.Sealer
	limiter  *LoginLimiter
	sessions *SessionManager
	perms    *PermissionService
	auth     *AuthService
	invites  *InvitationService
	users    *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &fakeClock{t: baseTime}
	identity := repotest.NewIdentityStore()
	content := repotest.NewContentStore()
	store := session.NewMemoryStoreWithClock(clock.Now)
	sealer := util.NewSealer(testEncryptionKey)

	limiter := NewLoginLimiter(identity, LoginLimiterConfig{
		MaxFailures: 5,
		Window:      15 * time.Minute,
		Retention:   30 * 24 * time.Hour,
	}, jobs.NewSweeper(0))
	limiter.now = clock.Now

	sessions := NewSessionManager(store, identity, "test-session-secret", time.Hour)
	sessions.now = clock.Now

	perms := NewPermissionService(identity)

	authSvc := NewAuthService(identity, content, limiter, sessions, sealer, "Intranet")
	authSvc.now = clock.Now

	invites := NewInvitationService(identity, content, perms, InvitationServiceConfig{
		DefaultTTL: 48 * time.Hour,
		Retention:  30 * 24 * time.Hour,
	})
	invites.now = clock.Now

	return &fixture{
		clock:    clock,
		identity: identity,
		content:  content,
		store:    store,
		sealer:   sealer,
		limiter:  limiter,
		sessions: sessions,
		perms:    perms,
		auth:     authSvc,
		invites:  invites,
		users:    NewUserService(identity, content, perms),
	}
}

var (
	hashMu    sync.Mutex
	hashCache = map[string]string{}
)

// hashFor caches bcrypt hashes across tests; each costs a noticeable fraction
// of a second.
func hashFor(t *testing.T, password string) string {
	t.Helper()
	hashMu.Lock()
	defer hashMu.Unlock()
	if h, ok := hashCache[password]; ok {
		return h
	}
	h, err := auth.HashPassword(password)
	require.NoError(t, err)
	hashCache[password] = h
	return h
}

func (f *fixture) seedUser(t *testing.T, email string, role model.Role) model.User {
	t.Helper()
	hash := hashFor(t, testPassword)
	return f.identity.SeedUser(model.User{
		Email:           email,
		PasswordHash:    &hash,
		Firstname:       "Test",
		Lastname:        string(role),
		Role:            role,
		AlumniValidated: true,
	})
}

// sessionFor seeds a user with role and returns a session snapshot for it.
func (f *fixture) sessionFor(t *testing.T, email string, role model.Role) *model.Session {
	t.Helper()
	u := f.seedUser(t, email, role)
	return &model.Session{
		ID:              "s-" + u.ID,
		UserID:          u.ID,
		Email:           u.Email,
		DisplayName:     u.DisplayName(),
		Role:            u.Role,
		AlumniValidated: u.AlumniValidated,
		LastActivity:    f.clock.Now(),
	}
}
