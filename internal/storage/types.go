package storage

import (
	"sort"
	"time"
)

// DailyUsage is the persisted foreground total for one calendar day.
type DailyUsage struct {
	Date           string    `json:"date"`
	DurationMillis int64     `json:"duration_ms"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RawEvent is a platform usage event as recorded by the event log.
type RawEvent struct {
	AppKey    string    `json:"package"`
	Type      int       `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Class     string    `json:"class,omitempty"`
	Seq       uint64    `json:"seq,omitempty"`
}

// App describes an installed application.
type App struct {
	Key        string    `json:"key"`
	Label      string    `json:"label"`
	System     bool      `json:"system"`
	Launchable bool      `json:"launchable"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Visible reports whether the app belongs in the user-facing list.
func (a App) Visible() bool {
	return !a.System || a.Launchable
}

// SortEvents orders events by timestamp and then by sequence.
func SortEvents(events []RawEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].Seq < events[j].Seq
	})
}

// SortDailyUsage orders records newest date first and applies limit.
func SortDailyUsage(records []DailyUsage, limit int) []DailyUsage {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date > records[j].Date
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}
