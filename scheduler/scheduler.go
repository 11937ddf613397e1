// Package scheduler triggers the deadline scans on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"taskflow/reminder"
)

const (
	DefaultImminentSpec = "0 * * * *"
	DefaultUpcomingSpec = "0 9 * * *"
)

const stopGrace = 5 * time.Second

// Runner executes the deadline scans. *reminder.Engine satisfies it.
type Runner interface {
	CheckDeadlines(ctx context.Context) (reminder.Report, error)
	CheckUpcomingDeadlines(ctx context.Context) (reminder.Report, error)
}

type Config struct {
	ImminentSpec string
	UpcomingSpec string
	Location     *time.Location
}

type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	log    *zap.Logger

	// ctx is handed to every run and cancelled once Stop gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc
}

// New registers both scans. Runs inherit parent, so cancelling it aborts
// whatever scan is in flight.
func New(parent context.Context, runner Runner, cfg Config, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("scheduler")
	if cfg.ImminentSpec == "" {
		cfg.ImminentSpec = DefaultImminentSpec
	}
	if cfg.UpcomingSpec == "" {
		cfg.UpcomingSpec = DefaultUpcomingSpec
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	cronLog := cron.PrintfLogger(zap.NewStdLog(log))
	ctx, cancel := context.WithCancel(parent)
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		runner: runner,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := s.cron.AddFunc(cfg.ImminentSpec, s.RunImminent); err != nil {
		cancel()
		return nil, fmt.Errorf("scheduling imminent scan %q: %w", cfg.ImminentSpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.UpcomingSpec, s.RunUpcoming); err != nil {
		cancel()
		return nil, fmt.Errorf("scheduling upcoming scan %q: %w", cfg.UpcomingSpec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop halts the triggers and waits for running scans. If ctx ends first the
// running scans are cancelled, Stop waits up to stopGrace for them to return
// and ctx.Err() is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	defer s.cancel()

	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
	}

	s.log.Warn("scheduler stop timed out, cancelling running scans")
	s.cancel()
	select {
	case <-done.Done():
	case <-time.After(stopGrace):
		s.log.Error("scans still running after cancellation", zap.Duration("grace", stopGrace))
	}
	return ctx.Err()
}

// RunImminent runs the hourly imminent-deadline scan.
func (s *Scheduler) RunImminent() {
	s.handle("imminent", func(ctx context.Context) error {
		_, err := s.runner.CheckDeadlines(ctx)
		return err
	})
}

// RunUpcoming runs the daily upcoming-deadline scan.
func (s *Scheduler) RunUpcoming() {
	s.handle("upcoming", func(ctx context.Context) error {
		_, err := s.runner.CheckUpcomingDeadlines(ctx)
		return err
	})
}

func (s *Scheduler) handle(name string, run func(ctx context.Context) error) {
	if s.ctx.Err() != nil {
		return
	}
	err := run(s.ctx)
	switch {
	case err == nil:
	case errors.Is(err, reminder.ErrScanInProgress):
		s.log.Debug("scan skipped", zap.String("scan", name))
	default:
		// the engine already logged the details; the next tick retries
		s.log.Warn("scan run failed", zap.String("scan", name), zap.Error(err))
	}
}
