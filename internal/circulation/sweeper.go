// internal/circulation/sweeper.go
package circulation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultSweepSchedule runs the sweep every fifteen minutes.
	DefaultSweepSchedule = "*/15 * * * *"
	sweepTimeout         = 4 * time.Minute
)

// Sweeper expires overdue borrows on a cron schedule.
type Sweeper struct {
	svc    Service
	logger *slog.Logger
	now    func() time.Time
	cron   *cron.Cron
}

// NewSweeper returns a sweeper driving svc. A nil logger uses slog.Default.
func NewSweeper(svc Service, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		svc:    svc,
		logger: logger,
		now:    time.Now,
	}
}

// Sweep runs one pass now.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepReport, error) {
	report, err := s.svc.ExpireOverdue(ctx, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "overdue sweep finished",
		"expired", report.Expired,
		"notified", report.Notified,
		"degraded", report.Degraded,
		"failures", report.Failures,
	)
	return report, nil
}

// Start schedules Sweep. Overlapping runs are skipped.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("overdue sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}

	s.cron = c
	c.Start()
	s.logger.Info("overdue sweep scheduled", "schedule", schedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
