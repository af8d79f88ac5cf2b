// Package schedule provides a managed runner for delayed work keyed by
// job ID. Unlike a bare time.AfterFunc, the runner tracks every pending
// timer so work can be cancelled when a job changes course and drained
// cleanly on shutdown.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is a unit of delayed work. The context is cancelled when the
// runner stops.
type Task func(ctx context.Context)

// Runner owns a set of pending timers, at most one per key. Scheduling
// under an existing key replaces the pending timer for that key.
type Runner struct {
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewRunner creates a Runner. The logger defaults to slog.Default().
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule runs task after delay, replacing any pending task for the
// same key. Scheduling on a stopped runner is a no-op.
func (r *Runner) Schedule(key string, delay time.Duration, task Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	if t, ok := r.timers[key]; ok {
		t.Stop()
	}

	r.timers[key] = time.AfterFunc(delay, func() {
		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			return
		}
		delete(r.timers, key)
		r.wg.Add(1)
		r.mu.Unlock()

		defer r.wg.Done()
		task(r.ctx)
	})

	r.logger.Debug("work scheduled",
		slog.String("key", key),
		slog.Duration("delay", delay),
	)
}

// Cancel drops the pending task for key, reporting whether one existed.
// A task already running is not interrupted.
func (r *Runner) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(r.timers, key)
	return true
}

// Pending returns the number of tasks waiting to fire.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Stop cancels all pending timers, cancels the task context, and waits
// for in-flight tasks to finish or ctx to expire.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	for key, t := range r.timers {
		t.Stop()
		delete(r.timers, key)
	}
	r.mu.Unlock()

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
