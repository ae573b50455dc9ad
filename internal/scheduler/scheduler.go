// Package scheduler runs the periodic billing work: materializing due bill
// instances and draining due reminders.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/quipubot/quipu/internal/billing"
)

type Scheduler struct {
	generator  *billing.Generator
	dispatcher *billing.Dispatcher
	logger     *slog.Logger
	interval   time.Duration
}

func New(generator *billing.Generator, dispatcher *billing.Dispatcher, logger *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Scheduler{generator: generator, dispatcher: dispatcher, logger: logger, interval: interval}
}

// Run ticks until the context is canceled. The first tick fires immediately
// so restarts don't delay overdue reminders by a full interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	started := time.Now()

	generated, err := s.generator.GenerateDue(ctx)
	if err != nil {
		s.logger.Error("generating due bills", slog.String("error", err.Error()))
	}

	sent, err := s.dispatcher.DispatchDue(ctx)
	if err != nil {
		s.logger.Error("dispatching reminders", slog.String("error", err.Error()))
	}

	if generated > 0 || sent > 0 {
		s.logger.Info("scheduler tick",
			slog.Int("bills_generated", generated),
			slog.Int("reminders_sent", sent),
			slog.Duration("took", time.Since(started)))
	}
}
