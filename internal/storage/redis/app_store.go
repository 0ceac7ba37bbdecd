package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/redis/go-redis/v9"
)

type appStore struct {
	client *redis.Client
}

// Upsert stores an app and adds it to the inventory index
func (s *appStore) Upsert(ctx context.Context, app storage.App) error {
	if app.Key == "" {
		return fmt.Errorf("app key is required")
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, appPrefix+app.Key,
			"key", app.Key,
			"label", app.Label,
			"system", strconv.FormatBool(app.System),
			"launchable", strconv.FormatBool(app.Launchable),
			"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
		)
		pipe.SAdd(ctx, appsKey, app.Key)
		return nil
	})
	return err
}

// Get retrieves an app by key
func (s *appStore) Get(ctx context.Context, key string) (*storage.App, error) {
	data, err := s.client.HGetAll(ctx, appPrefix+key).Result()
	if err != nil {
		return nil, err
	}
	return parseApp(data)
}

// List returns every known app ordered by key
func (s *appStore) List(ctx context.Context) ([]storage.App, error) {
	keys, err := s.client.SMembers(ctx, appsKey).Result()
	if err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		return []storage.App{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, appPrefix+key)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	apps := make([]storage.App, 0, len(keys))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		app, err := parseApp(data)
		if err == nil {
			apps = append(apps, *app)
		}
	}

	sort.Slice(apps, func(i, j int) bool { return apps[i].Key < apps[j].Key })
	return apps, nil
}
