package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/redis/go-redis/v9"
)

var (
	upsertDailyUsage       = redis.NewScript(upsertDailyUsageScript)
	deleteDailyUsageBefore = redis.NewScript(deleteDailyUsageBeforeScript)
)

type usageStore struct {
	client *redis.Client
}

// UpsertDailyUsage atomically replaces the total for a date
func (s *usageStore) UpsertDailyUsage(ctx context.Context, date string, durationMillis int64) error {
	score, err := dateScore(date)
	if err != nil {
		return err
	}

	keys := []string{dailyUsagePrefix + date, dailyUsageIndex}
	args := []interface{}{
		date,
		durationMillis,
		time.Now().UTC().Format(time.RFC3339Nano),
		score,
	}

	return upsertDailyUsage.Run(ctx, s.client, keys, args...).Err()
}

// GetDailyUsage retrieves the total for a specific date
func (s *usageStore) GetDailyUsage(ctx context.Context, date string) (*storage.DailyUsage, error) {
	data, err := s.client.HGetAll(ctx, dailyUsagePrefix+date).Result()
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	return parseDailyUsage(data)
}

// ListDailyUsage returns daily totals newest first
func (s *usageStore) ListDailyUsage(ctx context.Context, limit int) ([]storage.DailyUsage, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	dates, err := s.client.ZRevRange(ctx, dailyUsageIndex, 0, stop).Result()
	if err != nil {
		return nil, err
	}

	if len(dates) == 0 {
		return []storage.DailyUsage{}, nil
	}

	// Use pipeline for batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(dates))

	for i, date := range dates {
		cmds[i] = pipe.HGetAll(ctx, dailyUsagePrefix+date)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	// Parse results
	usages := make([]storage.DailyUsage, 0, len(dates))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		usage, err := parseDailyUsage(data)
		if err == nil {
			usages = append(usages, *usage)
		}
	}

	return usages, nil
}

// DeleteDailyUsageBefore deletes daily totals dated before cutoffDate
func (s *usageStore) DeleteDailyUsageBefore(ctx context.Context, cutoffDate string) (int, error) {
	score, err := dateScore(cutoffDate)
	if err != nil {
		return 0, err
	}

	deleted, err := deleteDailyUsageBefore.Run(ctx, s.client,
		[]string{dailyUsageIndex},
		dailyUsagePrefix, strconv.FormatInt(score, 10),
	).Int()
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
