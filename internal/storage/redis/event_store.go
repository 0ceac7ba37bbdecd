package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/redis/go-redis/v9"
)

var appendEvents = redis.NewScript(appendEventsScript)

type eventStore struct {
	client *redis.Client
}

// Append records raw events in a time-ordered sorted set
func (s *eventStore) Append(ctx context.Context, events ...storage.RawEvent) error {
	if len(events) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(events)*3)
	for _, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		event.Seq = 0
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		args = append(args,
			event.Timestamp.UnixMilli(),
			fmt.Sprintf("%020d", event.Timestamp.UnixNano()),
			string(payload),
		)
	}

	return appendEvents.Run(ctx, s.client, []string{eventsKey, eventsSeqKey}, args...).Err()
}

// Query returns events in [from, to), oldest first
func (s *eventStore) Query(ctx context.Context, from, to time.Time) ([]storage.RawEvent, error) {
	members, err := s.client.ZRangeByScore(ctx, eventsKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UnixMilli(), 10),
		Max: strconv.FormatInt(to.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	events := make([]storage.RawEvent, 0, len(members))
	for i, member := range members {
		payload, err := parseEventMember(member)
		if err != nil {
			return nil, err
		}
		var event storage.RawEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		if event.Timestamp.Before(from) || !event.Timestamp.Before(to) {
			continue
		}
		event.Seq = uint64(i + 1)
		events = append(events, event)
	}

	return events, nil
}

// DeleteBefore removes events recorded before cutoff
func (s *eventStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted, err := s.client.ZRemRangeByScore(ctx, eventsKey,
		"-inf", "("+strconv.FormatInt(cutoff.UnixMilli(), 10),
	).Result()
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}
