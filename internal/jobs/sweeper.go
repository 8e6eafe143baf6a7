package jobs

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intranet/auth-server-go/internal/config"
)

// Task deletes stale rows and reports how many were removed.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Sweeper runs cleanup tasks opportunistically from inside ordinary requests
// instead of on a schedule. Each MaybeRun call starts a background sweep with
// the configured probability. At most one sweep runs at a time.
type Sweeper struct {
	mu      sync.RWMutex
	tasks   []Task
	chance  float64
	roll    func() float64
	timeout time.Duration
	running atomic.Bool
	wg      sync.WaitGroup
}

func NewSweeper(chance float64, tasks ...Task) *Sweeper {
	return &Sweeper{
		tasks:   tasks,
		chance:  chance,
		roll:    rand.Float64,
		timeout: config.SweepTimeout,
	}
}

// Register adds a task. Safe to call while sweeps are running.
func (s *Sweeper) Register(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

// MaybeRun reports whether a sweep was started. The sweep runs in its own
// goroutine; failures are logged and never reach the triggering request.
func (s *Sweeper) MaybeRun(ctx context.Context) bool {
	if s == nil || s.chance <= 0 || s.roll() >= s.chance {
		return false
	}
	if !s.running.CompareAndSwap(false, true) {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.RunNow(ctx)
	}()
	return true
}

// Wait blocks until the sweep in flight, if any, has finished.
func (s *Sweeper) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

// RunNow runs every task once, detached from the caller's cancellation.
func (s *Sweeper) RunNow(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	s.mu.RLock()
	tasks := append([]Task(nil), s.tasks...)
	s.mu.RUnlock()

	for _, task := range tasks {
		s.runCleanup(ctx, task.Name, task.Run)
	}
}

func (s *Sweeper) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
