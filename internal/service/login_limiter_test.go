package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/intranet/auth-server-go/internal/errors"
	"github.com/intranet/auth-server-go/internal/jobs"
)

func TestLoginLimiter_IsRateLimited(t *testing.T) {
	ctx := context.Background()

	t.Run("limits by email after max failures", func(t *testing.T) {
		f := newFixture(t)
		for i := 0; i < 4; i++ {
			require.NoError(t, f.limiter.RecordAttempt(ctx, fmt.Sprintf("198.51.100.%d", i+1), "ana@x.test", false, ""))
		}

		limited, err := f.limiter.IsRateLimited(ctx, "203.0.113.9", "ana@x.test")
		require.NoError(t, err)
		assert.False(t, limited)

		require.NoError(t, f.limiter.RecordAttempt(ctx, "198.51.100.9", "ana@x.test", false, ""))
		limited, err = f.limiter.IsRateLimited(ctx, "203.0.113.9", "ana@x.test")
		require.NoError(t, err)
		assert.True(t, limited)
	})

	t.Run("limits by ip across emails", func(t *testing.T) {
		f := newFixture(t)
		for _, email := range []string{"a@x.test", "b@x.test", "c@x.test", "d@x.test", "e@x.test"} {
			require.NoError(t, f.limiter.RecordAttempt(ctx, "203.0.113.7", email, false, ""))
		}

		limited, err := f.limiter.IsRateLimited(ctx, "203.0.113.7", "fresh@x.test")
		require.NoError(t, err)
		assert.True(t, limited)

		limited, err = f.limiter.IsRateLimited(ctx, "203.0.113.8", "fresh@x.test")
		require.NoError(t, err)
		assert.False(t, limited)
	})

	t.Run("successes do not erase failures", func(t *testing.T) {
		f := newFixture(t)
		for i := 0; i < 4; i++ {
			require.NoError(t, f.limiter.RecordAttempt(ctx, "203.0.113.7", "ana@x.test", false, ""))
		}
		require.NoError(t, f.limiter.RecordAttempt(ctx, "203.0.113.7", "ana@x.test", true, ""))
		require.NoError(t, f.limiter.RecordAttempt(ctx, "203.0.113.7", "ana@x.test", false, ""))

		limited, err := f.limiter.IsRateLimited(ctx, "203.0.113.7", "ana@x.test")
		require.NoError(t, err)
		assert.True(t, limited)
	})

	t.Run("failures age out of the window", func(t *testing.T) {
		f := newFixture(t)
		for i := 0; i < 5; i++ {
			require.NoError(t, f.limiter.RecordAttempt(ctx, "203.0.113.7", "ana@x.test", false, ""))
		}

		f.clock.Advance(14 * time.Minute)
		limited, _ := f.limiter.IsRateLimited(ctx, "203.0.113.7", "ana@x.test")
		assert.True(t, limited)

		f.clock.Advance(time.Minute)
		limited, _ = f.limiter.IsRateLimited(ctx, "203.0.113.7", "ana@x.test")
		assert.False(t, limited)
	})

	t.Run("fails closed on storage errors", func(t *testing.T) {
		f := newFixture(t)
		f.identity.FailWith(errors.New("connection refused"))

		_, err := f.limiter.IsRateLimited(ctx, "203.0.113.7", "ana@x.test")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorageUnavailable))

		err = f.limiter.RecordAttempt(ctx, "203.0.113.7", "ana@x.test", false, "")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorageUnavailable))
	})
}

func TestLoginLimiter_RecordAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.limiter.RecordAttempt(ctx, "203.0.113.7", "ana@x.test", false, "curl/8"))

	attempts := f.identity.AllAttempts()
	require.Len(t, attempts, 1)
	assert.Equal(t, "203.0.113.7", attempts[0].IPAddress)
	assert.Equal(t, "ana@x.test", *attempts[0].Email)
	assert.Equal(t, "curl/8", *attempts[0].UserAgent)
	assert.Equal(t, baseTime, attempts[0].AttemptTime)
	assert.False(t, attempts[0].Success)
}

func TestLoginLimiter_CleanupOldAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.limiter.RecordAttempt(ctx, "203.0.113.7", "old@x.test", false, ""))
	f.clock.Advance(31 * 24 * time.Hour)
	require.NoError(t, f.limiter.RecordAttempt(ctx, "203.0.113.7", "new@x.test", false, ""))

	n, err := f.limiter.CleanupOldAttempts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	attempts := f.identity.AllAttempts()
	require.Len(t, attempts, 1)
	assert.Equal(t, "new@x.test", *attempts[0].Email)
}

func TestLoginLimiter_SweepsFromRecordAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.limiter.RecordAttempt(ctx, "203.0.113.7", "old@x.test", false, ""))
	f.clock.Advance(31 * 24 * time.Hour)

	f.limiter.sweeper = jobs.NewSweeper(1, jobs.Task{Name: "login attempts", Run: f.limiter.CleanupOldAttempts})
	require.NoError(t, f.limiter.RecordAttempt(ctx, "203.0.113.7", "new@x.test", false, ""))
	f.limiter.sweeper.Wait()

	attempts := f.identity.AllAttempts()
	require.Len(t, attempts, 1)
	assert.Equal(t, "new@x.test", *attempts[0].Email)
}

func TestLoginLimiter_RecordAttemptDoesNotWaitForCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	f.limiter.sweeper = jobs.NewSweeper(1, jobs.Task{Name: "slow", Run: func(ctx context.Context) (int64, error) {
		close(started)
		<-release
		return 0, nil
	}})

	done := make(chan error, 1)
	go func() {
		done <- f.limiter.RecordAttempt(ctx, "203.0.113.7", "ana@x.test", false, "")
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("RecordAttempt waited for the cleanup sweep")
	}

	<-started
	assert.Len(t, f.identity.AllAttempts(), 1)
	close(release)
	f.limiter.sweeper.Wait()
}
