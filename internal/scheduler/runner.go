package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/studysync/internal/logging"
	"github.com/example/studysync/internal/persistence"
)

// JobHandler executes one due trigger. A nil return deletes the trigger;
// an error keeps it in the store for the next poll.
type JobHandler func(ctx context.Context, job persistence.SyncJob) error

// Runner polls the store for due triggers and dispatches them by kind.
// Triggers are deleted only after their handler succeeds, so a crash between
// dispatch and delete replays the trigger. Handlers must be idempotent.
type Runner struct {
	jobs     persistence.SyncJobRepository
	handlers map[string]JobHandler
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewRunner constructs a Runner polling at the given interval.
func NewRunner(jobs persistence.SyncJobRepository, interval time.Duration, now func() time.Time, logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		jobs:     jobs,
		handlers: make(map[string]JobHandler),
		interval: interval,
		now:      now,
		logger:   logger.With("component", "scheduler"),
	}
}

// Handle registers the handler for a trigger kind.
func (r *Runner) Handle(kind string, handler JobHandler) {
	r.handlers[kind] = handler
}

// Run polls until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunDue(ctx); err != nil {
			r.logger.ErrorContext(ctx, "trigger poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunDue dispatches every trigger whose run time has passed and reports how
// many handlers completed.
func (r *Runner) RunDue(ctx context.Context) (int, error) {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = r.logger
	}

	due, err := r.jobs.DueJobs(ctx, r.now())
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, job := range due {
		handler, ok := r.handlers[job.Kind]
		if !ok {
			// A trigger nothing can handle would poison every poll.
			logger.WarnContext(ctx, "dropping trigger of unknown kind", "jobID", job.ID, "kind", job.Kind)
			if err := r.jobs.DeleteJob(ctx, job.ID); err != nil {
				logger.ErrorContext(ctx, "failed to drop trigger", "jobID", job.ID, "error", err)
			}
			continue
		}

		if err := handler(ctx, job); err != nil {
			logger.ErrorContext(ctx, "trigger handler failed", "jobID", job.ID, "kind", job.Kind, "error", err)
			continue
		}
		if err := r.jobs.DeleteJob(ctx, job.ID); err != nil {
			logger.ErrorContext(ctx, "failed to delete completed trigger", "jobID", job.ID, "error", err)
			continue
		}
		logger.InfoContext(ctx, "trigger completed", "jobID", job.ID, "kind", job.Kind)
		completed++
	}
	return completed, nil
}
