package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intranet/auth-server-go/internal/auth"
	apperrors "github.com/intranet/auth-server-go/internal/errors"
	"github.com/intranet/auth-server-go/internal/jobs"
	"github.com/intranet/auth-server-go/internal/middleware"
	"github.com/intranet/auth-server-go/internal/model"
	"github.com/intranet/auth-server-go/internal/ratelimit"
	"github.com/intranet/auth-server-go/internal/repository/repotest"
	"github.com/intranet/auth-server-go/internal/service"
	"github.com/intranet/auth-server-go/internal/session"
	"github.com/intranet/auth-server-go/internal/util"
)

const testPassword = "Str0ngPassw0rd!"

type testServer struct {
	t        *testing.T
	router   http.Handler
	identity *repotest.IdentityStore
	content  *repotest.ContentStore
	hash     string
}

type serverOption func(*Dependencies)

func newTestServer(t *testing.T, redeemLimit int, opts ...serverOption) *testServer {
	t.Helper()

	identity := repotest.NewIdentityStore()
	content := repotest.NewContentStore()
	sweeper := jobs.NewSweeper(0)

	limiter := service.NewLoginLimiter(identity, service.LoginLimiterConfig{
		MaxFailures: 5,
		Window:      15 * time.Minute,
		Retention:   30 * 24 * time.Hour,
	}, sweeper)
	sessions := service.NewSessionManager(session.NewMemoryStore(), identity, "handler-test-secret", time.Hour)
	perms := service.NewPermissionService(identity)
	authSvc := service.NewAuthService(identity, content, limiter, sessions, util.NewSealer(""), "Intranet")
	invites := service.NewInvitationService(identity, content, perms, service.InvitationServiceConfig{
		DefaultTTL: 48 * time.Hour,
		Retention:  30 * 24 * time.Hour,
	})

	deps := Dependencies{
		Auth:                 authSvc,
		Users:                service.NewUserService(identity, content, perms),
		Invitations:          invites,
		Permissions:          perms,
		Sessions:             sessions,
		Limiter:              ratelimit.NewMemoryLimiter(),
		RedeemLimitPerMinute: redeemLimit,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	router := NewRouter(deps)

	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)

	return &testServer{t: t, router: router, identity: identity, content: content, hash: hash}
}

func (s *testServer) seed(email string, role model.Role) model.User {
	hash := s.hash
	return s.identity.SeedUser(model.User{
		Email:           email,
		PasswordHash:    &hash,
		Firstname:       "Test",
		Lastname:        "User",
		Role:            role,
		AlumniValidated: true,
	})
}

// client carries cookies and the CSRF token between requests like a browser.
type client struct {
	s          *testServer
	cookies    map[string]*http.Cookie
	csrf       string
	remoteAddr string
	headers    map[string]string
}

func (s *testServer) client() *client {
	return &client{s: s, cookies: map[string]*http.Cookie{}, remoteAddr: "203.0.113.10:5555", headers: map[string]string{}}
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = c.remoteAddr
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	if c.csrf != "" {
		req.Header.Set(middleware.CSRFHeaderName, c.csrf)
	}

	rec := httptest.NewRecorder()
	c.s.router.ServeHTTP(rec, req)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge < 0 {
			delete(c.cookies, cookie.Name)
			continue
		}
		c.cookies[cookie.Name] = cookie
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

// anonymous fetches the double-submit token.
func (c *client) anonymous() {
	c.s.t.Helper()
	rec := c.do(http.MethodGet, "/api/csrf", nil)
	require.Equal(c.s.t, http.StatusOK, rec.Code)
	c.csrf = decode(c.s.t, rec)["csrfToken"].(string)
}

func (c *client) login(email string) {
	c.s.t.Helper()
	c.anonymous()
	rec := c.do(http.MethodPost, "/api/login", map[string]string{"email": email, "password": testPassword})
	require.Equal(c.s.t, http.StatusOK, rec.Code, rec.Body.String())
	c.csrf = decode(c.s.t, rec)["csrfToken"].(string)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 10)
	rec := s.client().do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestLoginFlow(t *testing.T) {
	s := newTestServer(t, 10)
	u := s.seed("ana@x.test", model.RoleMember)

	t.Run("login requires the csrf cookie", func(t *testing.T) {
		rec := s.client().do(http.MethodPost, "/api/login", map[string]string{"email": u.Email, "password": testPassword})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		c := s.client()
		c.anonymous()
		rec := c.do(http.MethodPost, "/api/login", map[string]string{"email": u.Email, "password": "wrong-password"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, string(apperrors.ErrCodeInvalidCredentials), decode(t, rec)["code"])
		assert.NotContains(t, c.cookies, middleware.SessionCookie)
	})

	t.Run("session lifecycle", func(t *testing.T) {
		c := s.client()
		c.anonymous()
		rec := c.do(http.MethodPost, "/api/login", map[string]string{"email": "ANA@x.test", "password": testPassword})
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, false, body["requiresTotp"])
		require.Contains(t, c.cookies, middleware.SessionCookie)
		firstToken := c.cookies[middleware.SessionCookie].Value
		c.csrf = body["csrfToken"].(string)

		rec = c.do(http.MethodGet, "/api/me", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		me := decode(t, rec)
		assert.Equal(t, "member", me["effectiveRole"])
		assert.NotNil(t, me["profile"])

		c.csrf = "stale"
		rec = c.do(http.MethodPost, "/api/me/password", map[string]string{"currentPassword": testPassword, "newPassword": "An0therPassw0rd"})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		// Logging in again from the same browser replaces the session.
		c.login(u.Email)
		assert.NotEqual(t, firstToken, c.cookies[middleware.SessionCookie].Value)
		stale := s.client()
		stale.cookies[middleware.SessionCookie] = &http.Cookie{Name: middleware.SessionCookie, Value: firstToken}
		assert.Equal(t, http.StatusUnauthorized, stale.do(http.MethodGet, "/api/me", nil).Code)

		rec = c.do(http.MethodPost, "/api/logout", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, c.cookies, middleware.SessionCookie)
		assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/me", nil).Code)
	})

	t.Run("totp users are asked for a code", func(t *testing.T) {
		key, err := auth.NewTOTPKey("Intranet", "totp@x.test")
		require.NoError(t, err)
		totpUser := s.seed("totp@x.test", model.RoleMember)
		s.identity.UpdateUser(totpUser.ID, func(u *model.User) {
			u.TOTPEnabled = true
			u.TOTPSecret = &key.Secret
		})

		c := s.client()
		c.anonymous()
		rec := c.do(http.MethodPost, "/api/login", map[string]string{"email": totpUser.Email, "password": testPassword})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, true, body["requiresTotp"])
		assert.Equal(t, false, body["success"])
	})
}

func TestInvitationFlow(t *testing.T) {
	s := newTestServer(t, 10)
	s.seed("admin@x.test", model.RoleAdmin)
	s.seed("member@x.test", model.RoleMember)

	admin := s.client()
	admin.login("admin@x.test")

	rec := admin.do(http.MethodPost, "/api/invitations", map[string]any{"email": "new@x.test", "role": "member", "ttlHours": 24})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	token := decode(t, rec)["token"].(string)
	require.Len(t, token, 64)

	guest := s.client()
	rec = guest.do(http.MethodGet, "/api/invitations/lookup/"+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new@x.test", decode(t, rec)["email"])

	rec = admin.do(http.MethodGet, "/api/invitations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total"])

	guest.anonymous()
	redeem := map[string]string{"token": token, "firstname": "New", "lastname": "Member", "password": testPassword}
	rec = guest.do(http.MethodPost, "/api/invitations/redeem", redeem)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = guest.do(http.MethodPost, "/api/invitations/redeem", redeem)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(apperrors.ErrCodeInvitationAlreadyUsed), decode(t, rec)["code"])

	rec = guest.do(http.MethodGet, "/api/invitations/lookup/"+token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	newcomer := s.client()
	newcomer.login("new@x.test")
	assert.Equal(t, http.StatusForbidden, newcomer.do(http.MethodPost, "/api/invitations", map[string]any{"email": "x@x.test", "role": "member"}).Code)
}

func TestRedeemIsThrottledPerIP(t *testing.T) {
	s := newTestServer(t, 2)
	c := s.client()
	c.anonymous()

	body := map[string]string{"token": "nope", "firstname": "A", "lastname": "B", "password": testPassword}
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusNotFound, c.do(http.MethodPost, "/api/invitations/redeem", body).Code)
	}
	rec := c.do(http.MethodPost, "/api/invitations/redeem", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRedeemReportsLimiterOutage(t *testing.T) {
	down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer down.Close()

	s := newTestServer(t, 10, func(d *Dependencies) {
		d.Limiter = ratelimit.NewRedisLimiter(down)
	})
	c := s.client()
	c.anonymous()

	body := map[string]string{"token": "nope", "firstname": "A", "lastname": "B", "password": testPassword}
	rec := c.do(http.MethodPost, "/api/invitations/redeem", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(apperrors.ErrCodeStorageUnavailable), decode(t, rec)["code"])
}

func TestLoginLimitIgnoresSpoofedForwardingHeaders(t *testing.T) {
	badLogin := func(c *client, email string) int {
		return c.do(http.MethodPost, "/api/login", map[string]string{"email": email, "password": "wrong-password"}).Code
	}

	t.Run("direct client cannot rotate its ip", func(t *testing.T) {
		s := newTestServer(t, 10)
		c := s.client()
		c.anonymous()

		var codes []int
		for i := 0; i < 8; i++ {
			c.headers["X-Forwarded-For"] = fmt.Sprintf("198.51.100.%d", i)
			c.headers["X-Real-IP"] = fmt.Sprintf("198.51.100.%d", i)
			// Distinct emails so only the per-IP count can trip.
			codes = append(codes, badLogin(c, fmt.Sprintf("user%d@x.test", i)))
		}
		assert.Equal(t, []int{401, 401, 401, 401, 401, 429, 429, 429}, codes)
		assert.Len(t, s.identity.AllAttempts(), 5)
		for _, a := range s.identity.AllAttempts() {
			assert.Equal(t, "203.0.113.10", a.IPAddress)
		}
	})

	t.Run("trusted proxy forwards the real client", func(t *testing.T) {
		s := newTestServer(t, 10, func(d *Dependencies) {
			d.TrustedProxies = []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
		})
		attacker := s.client()
		attacker.remoteAddr = "10.0.0.1:4000"
		attacker.headers["X-Forwarded-For"] = "198.51.100.7"
		attacker.anonymous()
		for i := 0; i < 5; i++ {
			require.Equal(t, http.StatusUnauthorized, badLogin(attacker, fmt.Sprintf("user%d@x.test", i)))
		}
		assert.Equal(t, http.StatusTooManyRequests, badLogin(attacker, "other@x.test"))

		neighbour := s.client()
		neighbour.remoteAddr = "10.0.0.1:4001"
		neighbour.headers["X-Forwarded-For"] = "198.51.100.8"
		neighbour.anonymous()
		assert.Equal(t, http.StatusUnauthorized, badLogin(neighbour, "fresh@x.test"))
	})
}

func TestUserAdministration(t *testing.T) {
	s := newTestServer(t, 10)
	s.seed("admin@x.test", model.RoleAdmin)
	member := s.seed("member@x.test", model.RoleMember)
	alumni := s.seed("alumni@x.test", model.RoleAlumni)
	s.identity.UpdateUser(alumni.ID, func(u *model.User) { u.AlumniValidated = false })

	admin := s.client()
	admin.login("admin@x.test")

	t.Run("list users paginates", func(t *testing.T) {
		rec := admin.do(http.MethodGet, "/api/users?limit=2", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Len(t, body["users"], 2)
		assert.EqualValues(t, 3, body["total"])
		assert.EqualValues(t, 2, body["limit"])
	})

	t.Run("members cannot list users", func(t *testing.T) {
		c := s.client()
		c.login("member@x.test")
		assert.Equal(t, http.StatusForbidden, c.do(http.MethodGet, "/api/users", nil).Code)
	})

	t.Run("role change", func(t *testing.T) {
		rec := admin.do(http.MethodPatch, "/api/users/"+member.ID+"/role", map[string]string{"role": "department_lead"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		stored, _ := s.identity.User(member.ID)
		assert.Equal(t, model.RoleDepartmentLead, stored.Role)

		rec = admin.do(http.MethodPatch, "/api/users/not-a-uuid/role", map[string]string{"role": "member"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("alumni validation", func(t *testing.T) {
		rec := admin.do(http.MethodPost, "/api/users/"+alumni.ID+"/validate", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		stored, _ := s.identity.User(alumni.ID)
		assert.True(t, stored.AlumniValidated)
	})

	t.Run("demotion applies to live sessions", func(t *testing.T) {
		board := s.seed("board@x.test", model.RoleBoard)
		c := s.client()
		c.login(board.Email)
		require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/invitations", nil).Code)

		s.identity.UpdateUser(board.ID, func(u *model.User) { u.Role = model.RoleMember })
		assert.Equal(t, http.StatusForbidden, c.do(http.MethodGet, "/api/invitations", nil).Code)
	})
}
