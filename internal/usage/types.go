package usage

import (
	"sort"
	"time"
)

// EventKind is the foreground transition carried by a UsageEvent.
type EventKind uint8

const (
	// EventResumed marks an application coming to the foreground.
	EventResumed EventKind = iota + 1
	// EventPaused marks an application leaving the foreground.
	EventPaused
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case EventResumed:
		return "resumed"
	case EventPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// UsageEvent is a single foreground/background transition for an app.
type UsageEvent struct {
	AppKey    string
	Kind      EventKind
	Timestamp time.Time
}

// Resumed builds a resumed event.
func Resumed(appKey string, ts time.Time) UsageEvent {
	return UsageEvent{AppKey: appKey, Kind: EventResumed, Timestamp: ts}
}

// Paused builds a paused event.
func Paused(appKey string, ts time.Time) UsageEvent {
	return UsageEvent{AppKey: appKey, Kind: EventPaused, Timestamp: ts}
}

// AppDurations maps an app key to accumulated foreground milliseconds.
type AppDurations map[string]int64

// Total returns the sum of all durations.
func (d AppDurations) Total() int64 {
	var total int64
	for _, ms := range d {
		total += ms
	}
	return total
}

// AppDuration is one row of a sorted breakdown.
type AppDuration struct {
	AppKey         string `json:"app"`
	DurationMillis int64  `json:"duration_ms"`
}

// Sorted returns the durations ordered by duration descending, then key.
func (d AppDurations) Sorted() []AppDuration {
	rows := make([]AppDuration, 0, len(d))
	for key, ms := range d {
		rows = append(rows, AppDuration{AppKey: key, DurationMillis: ms})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DurationMillis != rows[j].DurationMillis {
			return rows[i].DurationMillis > rows[j].DurationMillis
		}
		return rows[i].AppKey < rows[j].AppKey
	})
	return rows
}

// ExclusionSet is a set of app keys removed from totals.
type ExclusionSet map[string]struct{}

// NewExclusionSet builds a set from keys, skipping empty strings.
func NewExclusionSet(keys ...string) ExclusionSet {
	set := make(ExclusionSet, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	return set
}

// Contains reports whether key is in the set.
func (s ExclusionSet) Contains(key string) bool {
	_, ok := s[key]
	return ok
}

// Keys returns the members in sorted order.
func (s ExclusionSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// DailyResult is the outcome of one aggregation over today's window.
type DailyResult struct {
	Date        string
	WindowStart time.Time
	WindowEnd   time.Time
	TotalMillis int64
	PerApp      AppDurations
	// Removed holds the durations dropped by the exclusion filter.
	Removed     AppDurations
	EventCount  int
}

// Breakdown returns the per-app durations sorted by duration descending.
func (r *DailyResult) Breakdown() []AppDuration {
	return r.PerApp.Sorted()
}

// Status describes the health of the live total.
type Status string

const (
	StatusIdle              Status = "idle"
	StatusLive              Status = "live"
	StatusSourceUnavailable Status = "source_unavailable"
	StatusDisabled          Status = "disabled"
)

// Snapshot is the published view of the latest recompute.
type Snapshot struct {
	Date            string        `json:"date"`
	TotalMillis     int64         `json:"total_ms"`
	Apps            []AppDuration `json:"apps"`
	ComputedAt      time.Time     `json:"computed_at"`
	Status          Status        `json:"status"`
	PersistError    string        `json:"persist_error,omitempty"`
	LastPersistedAt time.Time     `json:"last_persisted_at,omitempty"`
	SourceError     string        `json:"source_error,omitempty"`
}
