// Package scheduler triggers workflow runs on a fixed schedule: either a
// cron expression or a plain interval duration.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
	"github.com/mtzanidakis/vigla/internal/config"
	"github.com/mtzanidakis/vigla/internal/workflow"
)

type Scheduler struct {
	runner   *workflow.Runner
	schedule string
	reloadCh chan struct{}
}

func New(runner *workflow.Runner, cfg config.SchedulerConfig) (*Scheduler, error) {
	if err := Validate(cfg.Schedule); err != nil {
		return nil, err
	}
	return &Scheduler{
		runner:   runner,
		schedule: cfg.Schedule,
		reloadCh: make(chan struct{}, 1),
	}, nil
}

// Validate accepts a cron expression or a Go duration string.
func Validate(raw string) error {
	if _, err := time.ParseDuration(raw); err == nil {
		return nil
	}
	if gronx.New().IsValid(raw) {
		return nil
	}
	return fmt.Errorf("invalid schedule %q: not a duration or cron expression", raw)
}

// UpdateSchedule swaps the schedule and wakes the run loop.
func (s *Scheduler) UpdateSchedule(raw string) error {
	if err := Validate(raw); err != nil {
		return err
	}
	s.schedule = raw
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
	return nil
}

func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("scheduler started", "schedule", s.schedule)

	for {
		next, err := NextRun(s.schedule, time.Now())
		if err != nil {
			slog.Error("scheduler cannot compute next run", "schedule", s.schedule, "error", err)
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("scheduler stopped")
			return
		case <-s.reloadCh:
			timer.Stop()
			slog.Info("scheduler reloaded", "schedule", s.schedule)
			continue
		case <-timer.C:
		}

		slog.Info("scheduled run triggered", "schedule", s.schedule)
		if _, err := s.runner.Run(ctx); err != nil {
			slog.Error("scheduled run failed", "error", err)
		}
	}
}

// NextRun computes the next trigger time after now.
func NextRun(raw string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("interval must be positive, got %s", raw)
		}
		return now.Add(d), nil
	}

	next, err := gronx.NextTickAfter(raw, now, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("next cron tick: %w", err)
	}
	return next, nil
}
