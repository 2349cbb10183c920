// Package scheduler drives the orchestrator on a fixed interval and hands each
// non-empty alert batch to the sink.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/price-error-watch/internal/monitor"
	"github.com/JakeFAU/price-error-watch/internal/telemetry"
)

// Defaults mirror a five minute scan cadence with a short warm-up.
const (
	DefaultInterval      = 5 * time.Minute
	DefaultFirstRunDelay = 30 * time.Second
)

// CycleRunner runs one monitoring cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) ([]string, error)
}

// Config controls the cadence.
type Config struct {
	Interval      time.Duration
	FirstRunDelay time.Duration
}

// Scheduler serializes cycles: a tick or trigger arriving during a cycle is
// handled after it completes.
type Scheduler struct {
	runner  CycleRunner
	sink    monitor.Sink
	cfg     Config
	trigger chan struct{}
	logger  *zap.Logger
}

// New creates a Scheduler.
func New(runner CycleRunner, sink monitor.Sink, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FirstRunDelay < 0 {
		cfg.FirstRunDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		runner:  runner,
		sink:    sink,
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
		logger:  logger,
	}
}

// Trigger requests an extra cycle. It returns false when one is already queued.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("first_run_delay", s.cfg.FirstRunDelay),
	)
	first := time.NewTimer(s.cfg.FirstRunDelay)
	defer first.Stop()

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-first.C:
			ticker = time.NewTicker(s.cfg.Interval)
			tick = ticker.C
			s.RunOnce(ctx)
		case <-tick:
			s.RunOnce(ctx)
		case <-s.trigger:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single cycle and delivers its alerts.
func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx, span := telemetry.Tracer().Start(ctx, "scheduler.RunOnce")
	defer span.End()

	alerts, err := s.runner.RunCycle(ctx)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		s.logger.Warn("cycle ended with error", zap.Error(err))
	}
	if len(alerts) == 0 {
		s.logger.Info("no price errors this cycle")
		return
	}
	if s.sink == nil {
		return
	}
	if err := s.sink.Deliver(ctx, alerts); err != nil {
		span.RecordError(err)
		s.logger.Error("alert delivery failed", zap.Int("alerts", len(alerts)), zap.Error(err))
		return
	}
	s.logger.Info("alerts delivered", zap.Int("alerts", len(alerts)))
}
