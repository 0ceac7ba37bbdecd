// Package apps resolves app keys to display labels and builds the per-app
// usage listing shown to users.
package apps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/usage"
)

// Row is one line of the app usage listing.
type Row struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Excluded    bool   `json:"excluded"`
	UsageMillis int64  `json:"usage_ms"`
}

// Catalog wraps the app inventory with a label cache.
type Catalog struct {
	store  storage.AppStore
	labels *lru.Cache[string, string]
	logger zerolog.Logger
}

// NewCatalog creates a catalog caching up to cacheSize labels.
func NewCatalog(store storage.AppStore, cacheSize int, logger zerolog.Logger) (*Catalog, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create label cache: %w", err)
	}
	return &Catalog{
		store:  store,
		labels: cache,
		logger: logger.With().Str("component", "apps").Logger(),
	}, nil
}

// Label returns the display label for key, falling back to the key itself
// when the app is unknown or has no label.
func (c *Catalog) Label(ctx context.Context, key string) string {
	if label, ok := c.labels.Get(key); ok {
		return label
	}

	label := key
	app, err := c.store.Get(ctx, key)
	switch {
	case err == nil && app.Label != "":
		label = app.Label
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		// Don't cache lookups that failed for transient reasons.
		c.logger.Debug().Err(err).Str("app", key).Msg("Failed to look up app label")
		return key
	}

	c.labels.Add(key, label)
	return label
}

// Import upserts every app in the inventory and invalidates cached labels.
func (c *Catalog) Import(ctx context.Context, apps []storage.App) error {
	now := time.Now()
	for _, app := range apps {
		if app.Key == "" {
			return fmt.Errorf("app without key")
		}
		if app.UpdatedAt.IsZero() {
			app.UpdatedAt = now
		}
		if err := c.store.Upsert(ctx, app); err != nil {
			return fmt.Errorf("failed to store app %s: %w", app.Key, err)
		}
		c.labels.Remove(app.Key)
	}
	c.logger.Info().Int("count", len(apps)).Msg("Imported app inventory")
	return nil
}

// Usage lists visible apps merged with every app seen in result, ordered by
// usage descending and then by label. Usage for excluded apps comes from
// the removed durations so the listing still shows what they consumed.
func (c *Catalog) Usage(ctx context.Context, result *usage.DailyResult, excluded usage.ExclusionSet) ([]Row, error) {
	inventory, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}

	rows := make(map[string]*Row)
	add := func(key string) *Row {
		row, ok := rows[key]
		if !ok {
			row = &Row{Key: key, Excluded: excluded.Contains(key)}
			rows[key] = row
		}
		return row
	}

	for _, app := range inventory {
		if !app.Visible() {
			continue
		}
		row := add(app.Key)
		if app.Label != "" {
			row.Label = app.Label
			c.labels.Add(app.Key, app.Label)
		}
	}

	if result != nil {
		for key, ms := range result.PerApp {
			add(key).UsageMillis = ms
		}
		for key, ms := range result.Removed {
			if excluded.Contains(key) {
				add(key).UsageMillis = ms
			}
		}
	}

	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if row.Label == "" {
			row.Label = c.Label(ctx, row.Key)
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageMillis != out[j].UsageMillis {
			return out[i].UsageMillis > out[j].UsageMillis
		}
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// ReadInventory decodes a JSON array of apps.
func ReadInventory(r io.Reader) ([]storage.App, error) {
	var apps []storage.App
	if err := json.NewDecoder(r).Decode(&apps); err != nil {
		return nil, fmt.Errorf("failed to decode app inventory: %w", err)
	}
	return apps, nil
}
