package usage

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/goodtune/screentime/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DailyUsageWriter persists the total for a date, replacing any prior value.
type DailyUsageWriter interface {
	UpsertDailyUsage(ctx context.Context, date string, durationMillis int64) error
}

// Computer produces today's aggregate.
type Computer interface {
	ComputeToday(ctx context.Context) (*DailyResult, error)
}

// RunState is the recompute state of the scheduler.
type RunState int32

const (
	StateIdle RunState = iota
	StateRunning
	StateRunningWithPendingRerun
)

// String returns the state name.
func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateRunningWithPendingRerun:
		return "running_with_pending_rerun"
	default:
		return "unknown"
	}
}

// SchedulerConfig holds scheduler settings.
type SchedulerConfig struct {
	// Interval between periodic recomputes while tracking is enabled.
	Interval time.Duration
	// RunTimeout bounds a single recompute including persistence.
	RunTimeout time.Duration
	Clock      Clock
}

type runOutcome struct {
	err error
}

// Scheduler decides when to recompute today's total. At most one recompute
// is in flight; requests arriving meanwhile collapse into a single rerun.
// All state transitions happen on the goroutine running Run.
type Scheduler struct {
	computer  Computer
	writer    DailyUsageWriter
	publisher *Publisher
	interval  time.Duration
	timeout   time.Duration
	clock     Clock
	logger    zerolog.Logger

	enableCh  chan bool
	triggerCh chan struct{}
	doneCh    chan runOutcome
	stopped   chan struct{}

	state     atomic.Int32
	enabled   atomic.Bool
	suspended atomic.Bool
	completed atomic.Int64
}

// NewScheduler creates a new recompute scheduler
func NewScheduler(computer Computer, writer DailyUsageWriter, publisher *Publisher, config SchedulerConfig, logger zerolog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = 10 * time.Second
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = 30 * time.Second
	}
	if config.Clock == nil {
		config.Clock = RealClock{}
	}

	return &Scheduler{
		computer:  computer,
		writer:    writer,
		publisher: publisher,
		interval:  config.Interval,
		timeout:   config.RunTimeout,
		clock:     config.Clock,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		enableCh:  make(chan bool),
		triggerCh: make(chan struct{}, 1),
		doneCh:    make(chan runOutcome, 1),
		stopped:   make(chan struct{}),
	}
}

// State returns the current recompute state.
func (s *Scheduler) State() RunState {
	return RunState(s.state.Load())
}

// Enabled reports whether periodic tracking is on.
func (s *Scheduler) Enabled() bool {
	return s.enabled.Load()
}

// Suspended reports whether tracking stopped because the source failed.
func (s *Scheduler) Suspended() bool {
	return s.suspended.Load()
}

// Completed returns the number of finished recomputes.
func (s *Scheduler) Completed() int64 {
	return s.completed.Load()
}

// SetEnabled turns periodic tracking on or off. Enabling starts an immediate
// recompute; disabling stops the timer but lets an in-flight run finish.
func (s *Scheduler) SetEnabled(on bool) {
	select {
	case s.enableCh <- on:
	case <-s.stopped:
	}
}

// Trigger requests a recompute now, for example after the exclusion set
// changed. It never blocks and is ignored while tracking is off.
func (s *Scheduler) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// Run owns the scheduler state until ctx is cancelled. An in-flight
// recompute is allowed to finish before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.stopped)

	var (
		ticker    *time.Ticker
		tick      <-chan time.Time
		enabled   bool
		suspended bool
		running   bool
		pending   bool
	)

	startTicker := func() {
		if ticker == nil {
			ticker = time.NewTicker(s.interval)
			tick = ticker.C
		}
	}
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tick = nil
		}
	}
	defer stopTicker()

	runCtx := context.WithoutCancel(ctx)

	request := func(reason string) {
		switch {
		case !running:
			running = true
			s.state.Store(int32(StateRunning))
			go s.recompute(runCtx, reason)
		case !pending:
			pending = true
			s.state.Store(int32(StateRunningWithPendingRerun))
		default:
			s.logger.Debug().Str("reason", reason).Msg("Recompute already pending")
		}
	}

	s.logger.Info().Dur("interval", s.interval).Msg("Recompute scheduler started")

	for {
		select {
		case <-ctx.Done():
			stopTicker()
			if running {
				s.finish(<-s.doneCh, enabled)
			}
			s.state.Store(int32(StateIdle))
			s.logger.Info().Msg("Recompute scheduler stopped")
			return nil

		case on := <-s.enableCh:
			if on {
				active := enabled && !suspended
				enabled, suspended = true, false
				s.enabled.Store(true)
				s.suspended.Store(false)
				metrics.TrackingEnabled.Set(1)
				if !active {
					s.logger.Info().Msg("Tracking enabled")
					startTicker()
					request("enabled")
				}
				continue
			}

			if enabled {
				s.logger.Info().Msg("Tracking disabled")
			}
			enabled, suspended = false, false
			s.enabled.Store(false)
			s.suspended.Store(false)
			metrics.TrackingEnabled.Set(0)
			stopTicker()
			if pending {
				pending = false
				s.state.Store(int32(StateRunning))
			}
			s.publisher.update(func(snap *Snapshot) {
				snap.Status = StatusDisabled
			})

		case <-tick:
			request("interval")

		case <-s.triggerCh:
			if !enabled || suspended {
				s.logger.Debug().Msg("Ignoring trigger while tracking is off")
				continue
			}
			request("trigger")

		case outcome := <-s.doneCh:
			running = false
			s.finish(outcome, enabled)

			if errors.Is(outcome.err, ErrSourceUnavailable) && enabled {
				suspended = true
				s.suspended.Store(true)
				pending = false
				stopTicker()
				s.logger.Warn().Err(outcome.err).Msg("Event source unavailable, tracking suspended")
			}

			if pending && enabled && !suspended {
				pending = false
				request("rerun")
				continue
			}
			pending = false
			s.state.Store(int32(StateIdle))
		}
	}
}

// finish records the end of a run on the scheduler goroutine.
func (s *Scheduler) finish(outcome runOutcome, enabled bool) {
	s.completed.Add(1)

	switch {
	case errors.Is(outcome.err, ErrSourceUnavailable):
		s.publisher.update(func(snap *Snapshot) {
			snap.Status = StatusSourceUnavailable
			snap.SourceError = outcome.err.Error()
		})
	case !enabled:
		s.publisher.update(func(snap *Snapshot) {
			snap.Status = StatusDisabled
		})
	}
}

// recompute runs one aggregation, publishes the total and persists it.
func (s *Scheduler) recompute(ctx context.Context, reason string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger := s.logger.With().
		Str("run_id", uuid.NewString()).
		Str("reason", reason).
		Logger()

	start := time.Now()
	result, err := s.computer.ComputeToday(ctx)
	metrics.RecomputeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		switch {
		case errors.Is(err, ErrSourceUnavailable):
			metrics.RecomputesTotal.WithLabelValues("source_unavailable").Inc()
		case errors.Is(err, ErrExclusionsUnavailable):
			metrics.RecomputesTotal.WithLabelValues("exclusions_unavailable").Inc()
			logger.Warn().Err(err).Msg("Skipping recompute, exclusion set unreadable")
		default:
			metrics.RecomputesTotal.WithLabelValues("error").Inc()
			logger.Error().Err(err).Msg("Recompute failed")
		}
		s.doneCh <- runOutcome{err: err}
		return
	}

	s.publisher.update(func(snap *Snapshot) {
		if snap.Date != result.Date {
			snap.PersistError = ""
			snap.LastPersistedAt = time.Time{}
		}
		snap.Date = result.Date
		snap.TotalMillis = result.TotalMillis
		snap.Apps = result.Breakdown()
		snap.ComputedAt = s.clock.Now()
		snap.Status = StatusLive
		snap.SourceError = ""
	})
	metrics.ObserveToday(result.TotalMillis, result.PerApp)

	if err := s.writer.UpsertDailyUsage(ctx, result.Date, result.TotalMillis); err != nil {
		metrics.RecomputesTotal.WithLabelValues("persist_failed").Inc()
		metrics.PersistFailures.Inc()
		logger.Error().Err(err).Str("date", result.Date).Msg("Failed to persist daily usage")
		s.publisher.update(func(snap *Snapshot) {
			snap.PersistError = err.Error()
		})
		s.doneCh <- runOutcome{err: errors.Join(ErrPersistence, err)}
		return
	}

	metrics.RecomputesTotal.WithLabelValues("ok").Inc()
	s.publisher.update(func(snap *Snapshot) {
		snap.PersistError = ""
		snap.LastPersistedAt = s.clock.Now()
	})

	logger.Debug().
		Str("date", result.Date).
		Int64("total_ms", result.TotalMillis).
		Msg("Recompute complete")

	s.doneCh <- runOutcome{}
}
