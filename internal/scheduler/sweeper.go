package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule is the cadence of the background reconciliation
// sweep. Six hours keeps external state within the tolerance the access
// windows assume without hammering provider quotas.
const DefaultSweepSchedule = "@every 6h"

// SweepFunc reconciles one external surface against the store.
type SweepFunc func(ctx context.Context) error

type sweepTask struct {
	name string
	fn   SweepFunc
}

// Sweeper periodically runs the registered reconciliation passes. Each pass
// converges external state toward the store, so a failed pass is only logged
// and retried on the next cycle.
type Sweeper struct {
	cron    *cron.Cron
	tasks   []sweepTask
	timeout time.Duration
	logger  *slog.Logger
}

// NewSweeper constructs a Sweeper. The timeout bounds one full sweep cycle.
func NewSweeper(timeout time.Duration, logger *slog.Logger) *Sweeper {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cron:    cron.New(),
		timeout: timeout,
		logger:  logger.With("component", "sweeper"),
	}
}

// Register adds a named reconciliation pass to the sweep.
func (s *Sweeper) Register(name string, fn SweepFunc) {
	s.tasks = append(s.tasks, sweepTask{name: name, fn: fn})
}

// Start schedules the sweep and begins running it in the background.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs every registered pass once, in registration order.
func (s *Sweeper) Sweep(ctx context.Context) {
	started := time.Now()
	for _, task := range s.tasks {
		if err := ctx.Err(); err != nil {
			s.logger.WarnContext(ctx, "sweep aborted", "error", err)
			return
		}
		if err := task.fn(ctx); err != nil {
			s.logger.ErrorContext(ctx, "sweep pass failed", "pass", task.name, "error", err)
			continue
		}
		s.logger.InfoContext(ctx, "sweep pass completed", "pass", task.name)
	}
	s.logger.InfoContext(ctx, "sweep finished", "duration", time.Since(started))
}
