package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intranet/auth-server-go/internal/audit"
	"github.com/intranet/auth-server-go/internal/auth"
	apperrors "github.com/intranet/auth-server-go/internal/errors"
	"github.com/intranet/auth-server-go/internal/model"
	"github.com/intranet/auth-server-go/internal/repository"
	"github.com/intranet/auth-server-go/internal/util"
)

type AuthService struct {
	identity   repository.IdentityStore
	content    repository.ContentStore
	limiter    *LoginLimiter
	sessions   *SessionManager
	sealer     *util.Sealer
	totpIssuer string
	now        func() time.Time
}

func NewAuthService(
	identity repository.IdentityStore,
	content repository.ContentStore,
	limiter *LoginLimiter,
	sessions *SessionManager,
	sealer *util.Sealer,
	totpIssuer string,
) *AuthService {
	return &AuthService{
		identity:   identity,
		content:    content,
		limiter:    limiter,
		sessions:   sessions,
		sealer:     sealer,
		totpIssuer: totpIssuer,
		now:        time.Now,
	}
}

// ClientInfo identifies the origin of a credential check for the attempt
// ledger and the audit log.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type LoginParams struct {
	Email    string
	Password string
	TOTPCode string
	Client   ClientInfo
}

type LoginResult struct {
	User    *model.User
	Session *model.Session
	Token   string
}

// Login verifies credentials and, on success, starts a new session. Every
// failure, including a missing or wrong second factor, is recorded in the
// attempt ledger and reported without saying which check failed.
func (s *AuthService) Login(ctx context.Context, params LoginParams) (*LoginResult, error) {
	email := util.NormalizeEmail(params.Email)
	if email == "" || params.Password == "" {
		return nil, apperrors.ValidationError("Email and password are required")
	}

	limited, err := s.limiter.IsRateLimited(ctx, params.Client.IP, email)
	if err != nil {
		return nil, err
	}
	if limited {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventLoginRateLimited,
			Email:     email,
			IP:        params.Client.IP,
			UserAgent: params.Client.UserAgent,
		})
		return nil, apperrors.RateLimited()
	}

	user, err := s.identity.Users().FindByEmail(ctx, email)
	if err != nil {
		return nil, storageError("find user by email", err)
	}

	if user == nil || !user.HasPassword() {
		auth.BurnPasswordCheck(params.Password)
		return nil, s.loginFailed(ctx, email, params.Client, "unknown_user_or_no_password", apperrors.InvalidCredentials())
	}

	if !auth.VerifyPassword(params.Password, *user.PasswordHash) {
		return nil, s.loginFailed(ctx, email, params.Client, "bad_password", apperrors.InvalidCredentials())
	}

	if user.TOTPEnabled {
		if params.TOTPCode == "" {
			return nil, s.loginFailed(ctx, email, params.Client, "totp_missing", apperrors.SecondFactorRequired())
		}
		if !s.verifyUserTOTP(user, params.TOTPCode) {
			return nil, s.loginFailed(ctx, email, params.Client, "totp_invalid", apperrors.InvalidCredentials())
		}
	}

	if err := s.limiter.RecordAttempt(ctx, params.Client.IP, email, true, params.Client.UserAgent); err != nil {
		return nil, err
	}
	if err := s.identity.Users().UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		log.Warn().Err(err).Str("userId", user.ID).Msg("failed to update last login")
	}

	sess, token, err := s.sessions.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventLoginSuccess,
		UserID:    user.ID,
		Email:     email,
		IP:        params.Client.IP,
		UserAgent: params.Client.UserAgent,
		Details:   map[string]interface{}{"totp": user.TOTPEnabled},
	})
	return &LoginResult{User: user, Session: sess, Token: token}, nil
}

// loginFailed records the failure and returns result. If the ledger write
// fails the caller gets StorageUnavailable instead.
func (s *AuthService) loginFailed(ctx context.Context, email string, client ClientInfo, reason string, result *apperrors.AppError) error {
	if err := s.limiter.RecordAttempt(ctx, client.IP, email, false, client.UserAgent); err != nil {
		return err
	}
	audit.Log(ctx, audit.Event{
		Type:      audit.EventLoginFailure,
		Email:     email,
		IP:        client.IP,
		UserAgent: client.UserAgent,
		Reason:    reason,
	})
	return result
}

func (s *AuthService) verifyUserTOTP(user *model.User, code string) bool {
	if user.TOTPSecret == nil {
		return false
	}
	secret, err := s.sealer.Open(*user.TOTPSecret)
	if err != nil {
		log.Error().Err(err).Str("userId", user.ID).Msg("failed to open totp secret")
		return false
	}
	return auth.VerifyTOTPCode(secret, code, s.now())
}

func (s *AuthService) Logout(ctx context.Context, token string, sess *model.Session) error {
	if err := s.sessions.Destroy(ctx, token); err != nil {
		return err
	}
	if sess != nil {
		audit.Log(ctx, audit.Event{
			Type:    audit.EventLogout,
			UserID:  sess.UserID,
			Details: map[string]interface{}{"session_id": sess.ID},
		})
	}
	return nil
}

// reauthenticate checks the current password of the session user for a
// sensitive self-service change. It shares the login ledger, so guessing
// here is throttled like guessing at the login form.
func (s *AuthService) reauthenticate(ctx context.Context, sess *model.Session, password string, client ClientInfo) (*model.User, error) {
	limited, err := s.limiter.IsRateLimited(ctx, client.IP, sess.Email)
	if err != nil {
		return nil, err
	}
	if limited {
		return nil, apperrors.RateLimited()
	}

	user, err := s.identity.Users().FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, storageError("find user", err)
	}
	if user == nil {
		return nil, apperrors.Unauthorized("Session is no longer valid")
	}
	if !user.HasPassword() || !auth.VerifyPassword(password, *user.PasswordHash) {
		return nil, s.loginFailed(ctx, user.Email, client, "reauth_bad_password", apperrors.InvalidCredentials())
	}
	return user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, sess *model.Session, current, next string, client ClientInfo) error {
	if err := auth.ValidatePassword(next); err != nil {
		return apperrors.InvalidInput("password", err.Error())
	}
	user, err := s.reauthenticate(ctx, sess, current, client)
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return apperrors.Internal("Failed to process password").WithCause(err)
	}
	if err := s.identity.Users().UpdatePassword(ctx, user.ID, hash); err != nil {
		return storageError("update password", err)
	}

	audit.Log(ctx, audit.Event{Type: audit.EventPasswordChange, UserID: user.ID, IP: client.IP})
	return nil
}

// ChangeEmail updates the login email in the identity store and, best
// effort, the copy held by the content profile.
func (s *AuthService) ChangeEmail(ctx context.Context, token string, sess *model.Session, password, newEmail string, client ClientInfo) error {
	email := util.NormalizeEmail(newEmail)
	if !util.IsValidEmail(email) {
		return apperrors.InvalidInput("email", "must be a valid address")
	}
	user, err := s.reauthenticate(ctx, sess, password, client)
	if err != nil {
		return err
	}
	if email == user.Email {
		return nil
	}

	existing, err := s.identity.Users().FindByEmail(ctx, email)
	if err != nil {
		return storageError("find user by email", err)
	}
	if existing != nil {
		return apperrors.AlreadyExists("Email")
	}
	if err := s.identity.Users().UpdateEmail(ctx, user.ID, email); err != nil {
		if repository.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("Email")
		}
		return storageError("update email", err)
	}

	if err := s.content.Profiles().UpdateEmail(ctx, user.ID, email); err != nil {
		log.Error().Err(err).Str("userId", user.ID).Msg("failed to update profile email")
	}

	sess.Email = email
	if err := s.sessions.Save(ctx, token, sess); err != nil {
		return err
	}

	audit.Log(ctx, audit.Event{
		Type:    audit.EventEmailChange,
		UserID:  user.ID,
		Email:   email,
		Details: map[string]interface{}{"previous_email": user.Email},
	})
	return nil
}

// BeginTOTPSetup generates a secret and parks it in the session until the
// user proves possession with EnableTOTP.
func (s *AuthService) BeginTOTPSetup(ctx context.Context, token string, sess *model.Session) (*auth.TOTPKey, error) {
	user, err := s.identity.Users().FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, storageError("find user", err)
	}
	if user == nil {
		return nil, apperrors.Unauthorized("Session is no longer valid")
	}
	if user.TOTPEnabled {
		return nil, apperrors.ValidationError("Two-factor authentication is already enabled")
	}

	key, err := auth.NewTOTPKey(s.totpIssuer, user.Email)
	if err != nil {
		return nil, apperrors.Internal("Failed to generate secret").WithCause(err)
	}

	sess.PendingTOTPSecret = key.Secret
	if err := s.sessions.Save(ctx, token, sess); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *AuthService) EnableTOTP(ctx context.Context, token string, sess *model.Session, code string) error {
	if sess.PendingTOTPSecret == "" {
		return apperrors.ValidationError("No two-factor setup in progress")
	}
	if !auth.VerifyTOTPCode(sess.PendingTOTPSecret, code, s.now()) {
		return apperrors.InvalidInput("code", "verification code is incorrect")
	}

	sealed, err := s.sealer.Seal(sess.PendingTOTPSecret)
	if err != nil {
		return apperrors.Internal("Failed to store secret").WithCause(err)
	}
	if err := s.identity.Users().EnableTOTP(ctx, sess.UserID, sealed, s.now()); err != nil {
		return storageError("enable totp", err)
	}

	sess.PendingTOTPSecret = ""
	if err := s.sessions.Save(ctx, token, sess); err != nil {
		return err
	}

	audit.Log(ctx, audit.Event{Type: audit.EventTOTPEnable, UserID: sess.UserID})
	return nil
}

func (s *AuthService) DisableTOTP(ctx context.Context, sess *model.Session, password, code string, client ClientInfo) error {
	user, err := s.reauthenticate(ctx, sess, password, client)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled {
		return apperrors.ValidationError("Two-factor authentication is not enabled")
	}
	if !s.verifyUserTOTP(user, code) {
		return s.loginFailed(ctx, user.Email, client, "reauth_totp_invalid", apperrors.InvalidCredentials())
	}

	if err := s.identity.Users().DisableTOTP(ctx, user.ID); err != nil {
		return storageError("disable totp", err)
	}

	audit.Log(ctx, audit.Event{Type: audit.EventTOTPDisable, UserID: user.ID, IP: client.IP})
	return nil
}
