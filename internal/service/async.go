package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TaskRunner executes reconciliation work detached from the request that
// triggered it. The HTTP boundary has already replied by the time a task
// runs, so nothing awaits the result: errors and panics are logged here and
// go nowhere else. Close waits for in-flight tasks during shutdown.
type TaskRunner struct {
	logger *slog.Logger
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewTaskRunner(logger *slog.Logger) *TaskRunner {
	return &TaskRunner{logger: logger.With("component", "task_runner")}
}

// Go runs fn on its own goroutine with a fresh background context. Tasks are
// not cancellable once started; an abandoned task during shutdown is
// acceptable because every remote effect is idempotent on redelivery.
func (r *TaskRunner) Go(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("task rejected, runner closed", "task", name)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("task panicked", "task", name, "panic", rec)
			}
		}()
		start := time.Now()
		if err := fn(context.Background()); err != nil {
			r.logger.Error("task failed", "task", name, "duration", time.Since(start), "error", err)
			return
		}
		r.logger.Debug("task finished", "task", name, "duration", time.Since(start))
	}()
}

// Wait blocks until the tasks in flight at call time have finished. The
// runner keeps accepting new tasks.
func (r *TaskRunner) Wait() {
	r.wg.Wait()
}

// Close stops accepting tasks and waits for the in-flight ones, up to the
// context deadline.
func (r *TaskRunner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

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
