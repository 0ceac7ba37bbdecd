package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/screentime/internal/metrics"
	"github.com/rs/zerolog"
)

// DailyUsagePruner deletes daily records older than a date key.
type DailyUsagePruner interface {
	DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error)
}

// EventPruner deletes raw events recorded before a cutoff.
type EventPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// RetentionConfig holds retention settings. A zero day count keeps data forever.
type RetentionConfig struct {
	RunAt          string // HH:MM local time
	EventDays      int
	DailyUsageDays int
	Location       *time.Location
	Clock          Clock
}

// RetentionScheduler prunes old events and daily records once a day.
type RetentionScheduler struct {
	usage     DailyUsagePruner
	events    EventPruner
	runAt     time.Time // only hour and minute are used
	eventDays int
	usageDays int
	location  *time.Location
	clock     Clock
	logger    zerolog.Logger
}

// NewRetentionScheduler creates a new retention scheduler
func NewRetentionScheduler(usage DailyUsagePruner, events EventPruner, config RetentionConfig, logger zerolog.Logger) (*RetentionScheduler, error) {
	if config.RunAt == "" {
		config.RunAt = "03:00"
	}
	parsed, err := time.Parse("15:04", config.RunAt)
	if err != nil {
		return nil, fmt.Errorf("invalid retention run_at %q: %w", config.RunAt, err)
	}
	if config.EventDays < 0 || config.DailyUsageDays < 0 {
		return nil, fmt.Errorf("retention days must not be negative")
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Clock == nil {
		config.Clock = RealClock{}
	}

	return &RetentionScheduler{
		usage:     usage,
		events:    events,
		runAt:     parsed,
		eventDays: config.EventDays,
		usageDays: config.DailyUsageDays,
		location:  config.Location,
		clock:     config.Clock,
		logger:    logger.With().Str("component", "retention").Logger(),
	}, nil
}

// Run prunes at the configured time of day until ctx is cancelled.
func (rs *RetentionScheduler) Run(ctx context.Context) error {
	rs.logger.Info().
		Str("run_at", rs.runAt.Format("15:04")).
		Int("event_days", rs.eventDays).
		Int("daily_usage_days", rs.usageDays).
		Msg("Retention scheduler started")

	for {
		next := rs.NextRun()
		wait := next.Sub(rs.clock.Now())

		rs.logger.Debug().
			Time("next_run", next).
			Dur("wait_duration", wait).
			Msg("Scheduled next retention run")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			rs.Prune(ctx)
		case <-ctx.Done():
			timer.Stop()
			rs.logger.Info().Msg("Retention scheduler stopped")
			return nil
		}
	}
}

// NextRun returns the next time the pruning pass is due.
func (rs *RetentionScheduler) NextRun() time.Time {
	now := rs.clock.Now().In(rs.location)

	today := time.Date(
		now.Year(), now.Month(), now.Day(),
		rs.runAt.Hour(), rs.runAt.Minute(), 0, 0,
		rs.location,
	)

	if now.After(today) {
		return today.AddDate(0, 0, 1)
	}
	return today
}

// Prune deletes data older than the retention windows. Errors are logged,
// and the counts of deleted records are returned.
func (rs *RetentionScheduler) Prune(ctx context.Context) (events, days int) {
	midnight := StartOfDay(rs.clock.Now().In(rs.location))

	if rs.eventDays > 0 && rs.events != nil {
		cutoff := midnight.AddDate(0, 0, -rs.eventDays)
		n, err := rs.events.DeleteBefore(ctx, cutoff)
		if err != nil {
			rs.logger.Error().Err(err).Msg("Failed to prune raw events")
		} else {
			events = n
			metrics.RetentionDeleted.WithLabelValues("events").Add(float64(n))
			rs.logger.Info().
				Int("events_deleted", n).
				Time("cutoff", cutoff).
				Msg("Old raw events pruned")
		}
	}

	if rs.usageDays > 0 && rs.usage != nil {
		cutoff := DateKey(midnight.AddDate(0, 0, -rs.usageDays))
		n, err := rs.usage.DeleteDailyUsageBefore(ctx, cutoff)
		if err != nil {
			rs.logger.Error().Err(err).Msg("Failed to prune daily usage")
		} else {
			days = n
			metrics.RetentionDeleted.WithLabelValues("daily_usage").Add(float64(n))
			rs.logger.Info().
				Int("rows_deleted", n).
				Str("cutoff_date", cutoff).
				Msg("Old daily usage pruned")
		}
	}

	return events, days
}
