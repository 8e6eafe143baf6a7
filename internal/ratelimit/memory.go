package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	maxEntries      = 10000
	cleanupInterval = time.Minute
)

type entry struct {
	timestamps []time.Time
	window     time.Duration
	lastAccess time.Time
}

// MemoryLimiter is a per-process Limiter for deployments without Redis.
type MemoryLimiter struct {
	mu          sync.Mutex
	store       map[string]*entry
	lastCleanup time.Time
	now         func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return NewMemoryLimiterWithClock(time.Now)
}

func NewMemoryLimiterWithClock(now func() time.Time) *MemoryLimiter {
	return &MemoryLimiter{
		store:       make(map[string]*entry),
		lastCleanup: now(),
		now:         now,
	}
}

func (rl *MemoryLimiter) cleanup(now time.Time) {
	if now.Sub(rl.lastCleanup) < cleanupInterval {
		return
	}
	rl.lastCleanup = now

	for key, e := range rl.store {
		if now.Sub(e.lastAccess) > e.window {
			delete(rl.store, key)
		}
	}

	if len(rl.store) > maxEntries {
		drop := len(rl.store) / 5
		for key := range rl.store {
			if drop == 0 {
				break
			}
			delete(rl.store, key)
			drop--
		}
	}
}

func (rl *MemoryLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanup(now)

	e, ok := rl.store[key]
	if !ok {
		e = &entry{}
		rl.store[key] = e
	}
	e.lastAccess = now
	e.window = window

	windowStart := now.Add(-window)
	filtered := e.timestamps[:0]
	for _, ts := range e.timestamps {
		if ts.After(windowStart) {
			filtered = append(filtered, ts)
		}
	}
	e.timestamps = filtered

	if len(e.timestamps) >= limit {
		if len(e.timestamps) == 0 {
			return false, now.Add(window), nil
		}
		return false, e.timestamps[0].Add(window), nil
	}

	e.timestamps = append(e.timestamps, now)
	return true, now.Add(window), nil
}

func (rl *MemoryLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.store)
}
