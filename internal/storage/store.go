package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Usage() UsageStore
	Exclusions() ExclusionStore
	Events() EventLogStore
	Apps() AppStore
}

// UsageStore manages one foreground total per calendar day.
type UsageStore interface {
	// UpsertDailyUsage replaces the total for date; it never accumulates.
	UpsertDailyUsage(ctx context.Context, date string, durationMillis int64) error
	GetDailyUsage(ctx context.Context, date string) (*DailyUsage, error)
	// ListDailyUsage returns up to limit records, newest date first. A limit
	// of zero or less returns every record.
	ListDailyUsage(ctx context.Context, limit int) ([]DailyUsage, error)
	DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error)
}

// ExclusionStore manages the set of app keys the user removed from totals.
type ExclusionStore interface {
	// List returns the excluded keys in sorted order.
	List(ctx context.Context) ([]string, error)
	Add(ctx context.Context, appKeys ...string) error
	Remove(ctx context.Context, appKeys ...string) error
	// Changes signals after every modification of the set. The channel is
	// closed when ctx is done. Bursts of changes may collapse into one signal.
	Changes(ctx context.Context) <-chan struct{}
}

// EventLogStore manages raw platform events.
type EventLogStore interface {
	Append(ctx context.Context, events ...RawEvent) error
	// Query returns events with from <= Timestamp < to, ordered by timestamp
	// and then by insertion order.
	Query(ctx context.Context, from, to time.Time) ([]RawEvent, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// AppStore manages the installed application inventory.
type AppStore interface {
	Upsert(ctx context.Context, app App) error
	Get(ctx context.Context, key string) (*App, error)
	List(ctx context.Context) ([]App, error)
}
