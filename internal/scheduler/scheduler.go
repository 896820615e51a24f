// Package scheduler runs the service's periodic GC sweeps: pairing codes,
// event queues, radio-state snapshots, revocation epochs, and rate-limit
// windows, each on its own interval.
//
// Grounded in lobby/internal/blob/cleanup.go's CleanupService: a ticker
// loop started from Start(ctx), an immediate first pass, and slog
// component-tagged logging of what each pass removed. Reworked into one
// reusable Task runner coordinated by golang.org/x/sync/errgroup instead of
// five hand-copied ticker loops, since this service runs five independent
// sweeps rather than blob's single cleanup job.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is one periodic GC sweep. Name labels it in logs; Interval is its
// ticker period; Run executes one pass and returns how many entries it
// removed (for logging only — a negative or zero count is never an error).
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(nowMS int64) int
}

// Scheduler drives a fixed set of Tasks, each on its own ticker, until its
// context is cancelled.
type Scheduler struct {
	tasks []Task
	clock func() int64
}

// New builds a Scheduler over tasks. clock supplies the current time in
// milliseconds for each pass; an injectable clock lets tests drive sweeps
// deterministically instead of waiting on wall time.
func New(clock func() int64, tasks ...Task) *Scheduler {
	return &Scheduler{tasks: tasks, clock: clock}
}

// Run starts every task concurrently and blocks until ctx is cancelled,
// then waits for all task goroutines to return. It never returns a non-nil
// error on its own; a task's Run is expected to be infallible (GC sweeps
// over in-memory maps do not fail), so Run only ever exits via context
// cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, task := range s.tasks {
		task := task
		g.Go(func() error {
			s.runTask(ctx, task)
			return nil
		})
	}

	return g.Wait()
}

func (s *Scheduler) runTask(ctx context.Context, task Task) {
	slog.Info("starting cleanup task", "component", "scheduler", "task", task.Name, "interval", task.Interval)

	sweep := func() {
		removed := task.Run(s.clock())
		if removed > 0 {
			slog.Info("cleanup task removed entries", "component", "scheduler", "task", task.Name, "removed", removed)
		}
	}

	sweep()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping cleanup task", "component", "scheduler", "task", task.Name)
			return
		case <-ticker.C:
			sweep()
		}
	}
}
