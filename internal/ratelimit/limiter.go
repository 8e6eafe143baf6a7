// Package ratelimit implements sliding-window request throttles keyed by an
// arbitrary string, backed by Redis or process memory.
package ratelimit

import (
	"context"
	"time"
)

// Limiter admits at most limit calls per key within window. When a call is
// refused, resetAt is the moment the oldest counted call leaves the window.
// A non-nil error means the backing store could not answer; callers must
// refuse the call and report the outage rather than a throttle.
type Limiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, resetAt time.Time, err error)
}
