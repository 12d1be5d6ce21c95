package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/azure/follower-milestone-bot/internal/monitoring"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// PassRunner runs one reconciliation pass
type PassRunner interface {
	RunPass(ctx context.Context) (*models.PassReport, error)
	// WaitIdle blocks until no pass is running
	WaitIdle()
}

// Service drives reconciliation passes once, on a fixed interval or on a
// cron schedule
type Service struct {
	runner PassRunner
	cron   *cron.Cron
}

// NewService creates a new scheduler service
func NewService(runner PassRunner) *Service {
	return &Service{
		runner: runner,
	}
}

// RunOnce runs a single pass and returns its report
func (s *Service) RunOnce(ctx context.Context) (*models.PassReport, error) {
	logrus.Info("Running single reconciliation pass")
	return s.runner.RunPass(ctx)
}

// RunPeriodic runs a pass, waits interval after it finishes and repeats
// until ctx is cancelled. An in-progress pass is allowed to finish. When a
// pass started elsewhere is still running at a tick, the loop waits for it
// and then runs its own pass right away.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", interval)
	}

	logrus.Infof("Scheduler started with %v interval", interval)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Scheduler stopped")
			return nil
		case <-timer.C:
		}

		err := s.runAndLog(ctx)

		if ctx.Err() != nil {
			logrus.Info("Scheduler stopped")
			return nil
		}
		if errors.Is(err, monitoring.ErrPassInProgress) {
			if !s.waitIdle(ctx) {
				logrus.Info("Scheduler stopped")
				return nil
			}
			timer.Reset(0)
			continue
		}
		logrus.Infof("Next reconciliation pass in %v", interval)
		timer.Reset(interval)
	}
}

// Start schedules passes on a standard five-field cron expression. A tick that
// fires while the previous pass is still running is skipped.
func (s *Service) Start(ctx context.Context, expression string) error {
	cronLogger := cron.PrintfLogger(logrus.StandardLogger())
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger)))

	_, err := s.cron.AddFunc(expression, func() {
		logrus.Info("Starting scheduled reconciliation pass")
		_ = s.runAndLog(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with cron schedule %q", expression)
	return nil
}

// Stop stops the cron scheduler and waits for a running pass to finish
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}

// waitIdle waits for the running pass to finish. It returns false if ctx is
// cancelled first.
func (s *Service) waitIdle(ctx context.Context) bool {
	idle := make(chan struct{})
	go func() {
		s.runner.WaitIdle()
		close(idle)
	}()

	select {
	case <-idle:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Service) runAndLog(ctx context.Context) error {
	report, err := s.runner.RunPass(ctx)
	switch {
	case errors.Is(err, monitoring.ErrPassInProgress):
		logrus.Warn("Scheduled pass not started: another pass is still running")
	case err != nil:
		logrus.Errorf("Reconciliation pass failed: %v", err)
	default:
		logrus.WithFields(logrus.Fields{
			"run_id":       report.RunID,
			"profiles":     len(report.Results),
			"alerts_fired": report.AlertsFired(),
		}).Infof("Reconciliation pass finished in %v", report.FinishedAt.Sub(report.StartedAt))
	}
	return err
}
