package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/intranet/auth-server-go/internal/audit"
	apperrors "github.com/intranet/auth-server-go/internal/errors"
	"github.com/intranet/auth-server-go/internal/model"
	"github.com/intranet/auth-server-go/internal/repository"
	"github.com/intranet/auth-server-go/internal/session"
	"github.com/intranet/auth-server-go/internal/util"
)

// SessionManager owns the lifecycle of server-side sessions. The cookie
// carries a random token; the store is keyed by its HMAC so a leaked store
// does not yield usable cookies.
type SessionManager struct {
	store       session.Store
	identity    repository.IdentityStore
	secret      string
	idleTimeout time.Duration
	now         func() time.Time
}

func NewSessionManager(
	store session.Store,
	identity repository.IdentityStore,
	secret string,
	idleTimeout time.Duration,
) *SessionManager {
	return &SessionManager{
		store:       store,
		identity:    identity,
		secret:      secret,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

func (m *SessionManager) key(token string) string {
	return util.HmacSHA256(m.secret, token)
}

// Create starts a new session for user under a fresh id and token. Callers
// destroy any previous session first so ids are never reused across a login.
func (m *SessionManager) Create(ctx context.Context, user *model.User) (*model.Session, string, error) {
	token, err := util.GenerateToken()
	if err != nil {
		return nil, "", apperrors.Internal("Failed to create session").WithCause(err)
	}
	csrf, err := util.GenerateToken()
	if err != nil {
		return nil, "", apperrors.Internal("Failed to create session").WithCause(err)
	}

	now := m.now()
	s := &model.Session{
		ID:              uuid.NewString(),
		UserID:          user.ID,
		Email:           user.Email,
		DisplayName:     user.DisplayName(),
		Role:            user.Role,
		AlumniValidated: user.AlumniValidated,
		AuthMethod:      model.AuthMethodPassword,
		CSRFToken:       csrf,
		CreatedAt:       now,
		LastActivity:    now,
	}

	if err := m.store.Put(ctx, m.key(token), s, m.idleTimeout); err != nil {
		return nil, "", storageError("create session", err)
	}

	audit.Log(ctx, audit.Event{
		Type:    audit.EventSessionCreate,
		UserID:  user.ID,
		Details: map[string]interface{}{"session_id": s.ID},
	})

	return s, token, nil
}

// Validate loads the session for token, enforces the idle timeout and
// records the activity.
func (m *SessionManager) Validate(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, apperrors.Unauthorized("Authentication required")
	}

	key := m.key(token)
	s, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, storageError("load session", err)
	}
	if s == nil {
		return nil, apperrors.Unauthorized("Authentication required")
	}

	now := m.now()
	if s.IsIdleAt(now, m.idleTimeout) {
		if err := m.store.Delete(ctx, key); err != nil {
			return nil, storageError("delete expired session", err)
		}
		audit.Log(ctx, audit.Event{
			Type:    audit.EventSessionExpired,
			UserID:  s.UserID,
			Details: map[string]interface{}{"session_id": s.ID},
		})
		return nil, apperrors.SessionExpired()
	}

	s.LastActivity = now
	if err := m.store.Put(ctx, key, s, m.idleTimeout); err != nil {
		return nil, storageError("touch session", err)
	}
	return s, nil
}

// Refresh reconciles the session snapshot with the identity store. A user
// that no longer exists ends the session; a changed role, email or validation
// flag is copied into it before any permission decision is made.
func (m *SessionManager) Refresh(ctx context.Context, token string, s *model.Session) (*model.Session, error) {
	user, err := m.identity.Users().FindByID(ctx, s.UserID)
	if err != nil {
		return nil, storageError("refresh session", err)
	}

	if user == nil {
		if err := m.store.Delete(ctx, m.key(token)); err != nil {
			return nil, storageError("invalidate session", err)
		}
		audit.Log(ctx, audit.Event{
			Type:   audit.EventSessionInvalidated,
			UserID: s.UserID,
			Reason: "user_missing",
		})
		return nil, apperrors.Unauthorized("Session is no longer valid")
	}

	if user.Email == s.Email &&
		user.Role == s.Role &&
		user.AlumniValidated == s.AlumniValidated &&
		user.DisplayName() == s.DisplayName {
		return s, nil
	}

	previousRole := s.Role
	s.Email = user.Email
	s.Role = user.Role
	s.AlumniValidated = user.AlumniValidated
	s.DisplayName = user.DisplayName()

	if err := m.Save(ctx, token, s); err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:   audit.EventSessionRefreshed,
		UserID: s.UserID,
		Details: map[string]interface{}{
			"previous_role": string(previousRole),
			"role":          string(s.Role),
		},
	})
	return s, nil
}

// Save persists changes made to s by the caller.
func (m *SessionManager) Save(ctx context.Context, token string, s *model.Session) error {
	if err := m.store.Put(ctx, m.key(token), s, m.idleTimeout); err != nil {
		return storageError("save session", err)
	}
	return nil
}

func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.Delete(ctx, m.key(token)); err != nil {
		return storageError("destroy session", err)
	}
	return nil
}
