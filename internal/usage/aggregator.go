package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/screentime/internal/metrics"
	"github.com/rs/zerolog"
)

var (
	// ErrSourceUnavailable is returned when the event source cannot be queried,
	// typically because the usage-access capability was revoked.
	ErrSourceUnavailable = errors.New("usage: event source unavailable")

	// ErrExclusionsUnavailable is returned when the exclusion set cannot be read.
	ErrExclusionsUnavailable = errors.New("usage: exclusion set unavailable")

	// ErrPersistence is returned when a daily record could not be written.
	ErrPersistence = errors.New("usage: persistence failure")
)

// EventSource supplies ordered usage events for a time window.
type EventSource interface {
	QueryEvents(ctx context.Context, from, to time.Time) ([]UsageEvent, error)
}

// ExclusionSource supplies the user's current exclusion set.
type ExclusionSource interface {
	Current(ctx context.Context) (ExclusionSet, error)
}

// ExclusionSourceFunc adapts a function to ExclusionSource.
type ExclusionSourceFunc func(ctx context.Context) (ExclusionSet, error)

// Current calls f.
func (f ExclusionSourceFunc) Current(ctx context.Context) (ExclusionSet, error) {
	return f(ctx)
}

// AggregatorConfig holds aggregator settings.
type AggregatorConfig struct {
	// Reserved keys are removed from every total regardless of user choice.
	Reserved ExclusionSet
	// Location defines local midnight. Defaults to time.Local.
	Location *time.Location
	Clock    Clock
}

// Aggregator computes today's foreground usage from raw events.
type Aggregator struct {
	events     EventSource
	exclusions ExclusionSource
	reserved   ExclusionSet
	location   *time.Location
	clock      Clock
	logger     zerolog.Logger
}

// NewAggregator creates a new daily aggregator
func NewAggregator(events EventSource, exclusions ExclusionSource, config AggregatorConfig, logger zerolog.Logger) *Aggregator {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Clock == nil {
		config.Clock = RealClock{}
	}
	if config.Reserved == nil {
		config.Reserved = NewExclusionSet()
	}

	return &Aggregator{
		events:     events,
		exclusions: exclusions,
		reserved:   config.Reserved,
		location:   config.Location,
		clock:      config.Clock,
		logger:     logger.With().Str("component", "aggregator").Logger(),
	}
}

// Reserved returns the reserved key set.
func (a *Aggregator) Reserved() ExclusionSet {
	return a.reserved
}

// ComputeToday folds the events from local midnight until now into per-app
// durations, removes excluded and reserved apps and sums the remainder.
// It has no side effects.
func (a *Aggregator) ComputeToday(ctx context.Context) (*DailyResult, error) {
	now := a.clock.Now().In(a.location)
	return a.compute(ctx, StartOfDay(now), now)
}

func (a *Aggregator) compute(ctx context.Context, start, end time.Time) (*DailyResult, error) {
	// The exclusion set is read once, before the query, so changes made
	// while this run is in flight only apply to the next one.
	excluded, err := a.exclusions.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExclusionsUnavailable, err)
	}

	events, err := a.events.QueryEvents(ctx, start, end)
	if err != nil {
		if errors.Is(err, ErrSourceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	durations := Fold(events, end)
	kept := Filter(durations, excluded, a.reserved)

	metrics.EventsFolded.Add(float64(len(events)))

	result := &DailyResult{
		Date:        DateKey(start),
		WindowStart: start,
		WindowEnd:   end,
		TotalMillis: kept.Total(),
		PerApp:      kept,
		Removed:     removed(durations, kept),
		EventCount:  len(events),
	}

	a.logger.Debug().
		Str("date", result.Date).
		Int("events", result.EventCount).
		Int("apps", len(kept)).
		Int("excluded", len(excluded)).
		Int64("total_ms", result.TotalMillis).
		Msg("Computed daily usage")

	return result, nil
}
