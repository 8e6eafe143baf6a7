package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intranet/auth-server-go/internal/jobs"
	"github.com/intranet/auth-server-go/internal/model"
	"github.com/intranet/auth-server-go/internal/repository"
)

type LoginLimiterConfig struct {
	MaxFailures int
	Window      time.Duration
	Retention   time.Duration
}

// LoginLimiter throttles password guessing using the persisted attempt
// ledger. Failures are counted per IP and per email independently, and a
// success never clears earlier failures.
type LoginLimiter struct {
	identity repository.IdentityStore
	cfg      LoginLimiterConfig
	sweeper  *jobs.Sweeper
	now      func() time.Time
}

func NewLoginLimiter(identity repository.IdentityStore, cfg LoginLimiterConfig, sweeper *jobs.Sweeper) *LoginLimiter {
	return &LoginLimiter{
		identity: identity,
		cfg:      cfg,
		sweeper:  sweeper,
		now:      time.Now,
	}
}

// IsRateLimited fails closed: a storage error is returned as
// StorageUnavailable and callers must refuse the login.
func (l *LoginLimiter) IsRateLimited(ctx context.Context, ip, email string) (bool, error) {
	since := l.now().Add(-l.cfg.Window)
	attempts := l.identity.LoginAttempts()

	byIP, err := attempts.CountFailuresByIP(ctx, ip, since)
	if err != nil {
		return false, storageError("count failures by ip", err)
	}
	if byIP >= l.cfg.MaxFailures {
		return true, nil
	}

	if email == "" {
		return false, nil
	}
	byEmail, err := attempts.CountFailuresByEmail(ctx, email, since)
	if err != nil {
		return false, storageError("count failures by email", err)
	}
	return byEmail >= l.cfg.MaxFailures, nil
}

func (l *LoginLimiter) RecordAttempt(ctx context.Context, ip, email string, success bool, userAgent string) error {
	err := l.identity.LoginAttempts().Create(ctx, model.CreateLoginAttemptParams{
		IPAddress:   ip,
		Email:       email,
		AttemptTime: l.now(),
		Success:     success,
		UserAgent:   userAgent,
	})
	if err != nil {
		return storageError("record login attempt", err)
	}

	l.sweeper.MaybeRun(ctx)
	return nil
}

// CleanupOldAttempts removes ledger rows older than the retention horizon.
func (l *LoginLimiter) CleanupOldAttempts(ctx context.Context) (int64, error) {
	cutoff := l.now().Add(-l.cfg.Retention)
	n, err := l.identity.LoginAttempts().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	log.Debug().Int64("deleted", n).Time("cutoff", cutoff).Msg("login attempts swept")
	return n, nil
}
