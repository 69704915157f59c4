package resume

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron"

	"github.com/desertthunder/ytexport/internal/shared"
)

// Ticker is the unit of work the scheduler repeats.
type Ticker interface {
	Tick(ctx context.Context) TickResult
}

// Scheduler runs the controller's Tick on a fixed interval. A tick never overlaps the previous one.
type Scheduler struct {
	cron     *gocron.Scheduler
	ticker   Ticker
	interval time.Duration
	logger   *log.Logger
}

// NewScheduler creates a scheduler that ticks every interval.
func NewScheduler(ticker Ticker, interval time.Duration, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Scheduler{
		cron:     gocron.NewScheduler(time.UTC),
		ticker:   ticker,
		interval: interval,
		logger:   shared.WithLogger(logger, "component", "scheduler"),
	}
}

// Start registers the tick job and starts the scheduler in the background. The first tick runs immediately.
// ctx is handed to every tick; cancelling it makes in-progress ticks return early.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive", shared.ErrInvalidConfig)
	}

	if _, err := s.cron.Every(s.interval).SingletonMode().Do(s.tick, ctx); err != nil {
		return fmt.Errorf("failed to register auto-resume tick: %w", err)
	}

	s.logger.Info("starting auto-resume scheduler", "interval", s.interval)
	s.cron.StartAsync()
	return nil
}

// Stop stops the scheduler and waits for a running tick to return.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping auto-resume scheduler")
	s.cron.Stop()
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result := s.ticker.Tick(ctx)
	if result.Batches > 0 || result.Failures > 0 {
		s.logger.Info("auto-resume tick", "due", result.Due, "batches", result.Batches, "failures", result.Failures)
	}
}
