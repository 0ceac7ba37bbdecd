package redis

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/screentime/internal/storage"
)

const (
	keyPrefix         = "screentime:"
	dailyUsagePrefix  = keyPrefix + "usage:daily:"
	dailyUsageIndex   = keyPrefix + "usage:daily:index"
	exclusionsKey     = keyPrefix + "exclusions"
	exclusionsChannel = keyPrefix + "exclusions:changed"
	eventsKey         = keyPrefix + "events"
	eventsSeqKey      = keyPrefix + "events:seq"
	appsKey           = keyPrefix + "apps"
	appPrefix         = keyPrefix + "app:"
)

// dateScore converts a YYYY-MM-DD key into a sortable integer score.
func dateScore(date string) (int64, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return 0, fmt.Errorf("invalid date: %w", err)
	}
	return strconv.ParseInt(strings.ReplaceAll(date, "-", ""), 10, 64)
}

// parseDailyUsage converts a Redis hash to DailyUsage
func parseDailyUsage(data map[string]string) (*storage.DailyUsage, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	durationMillis, err := strconv.ParseInt(data["duration_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration_ms: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &storage.DailyUsage{
		Date:           data["date"],
		DurationMillis: durationMillis,
		UpdatedAt:      updatedAt,
	}, nil
}

// parseApp converts a Redis hash to App
func parseApp(data map[string]string) (*storage.App, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	system, err := strconv.ParseBool(data["system"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse system: %w", err)
	}

	launchable, err := strconv.ParseBool(data["launchable"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse launchable: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &storage.App{
		Key:        data["key"],
		Label:      data["label"],
		System:     system,
		Launchable: launchable,
		UpdatedAt:  updatedAt,
	}, nil
}

// parseEventMember extracts the JSON payload from an event index member.
func parseEventMember(member string) (string, error) {
	idx := strings.IndexByte(member, '|')
	if idx < 0 {
		return "", fmt.Errorf("malformed event member: %q", member)
	}
	return member[idx+1:], nil
}
