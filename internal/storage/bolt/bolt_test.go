package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/screentime/internal/storage"
)

func TestUsageStoreUpsertReplaces(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	usageStore := store.Usage()
	date := "2024-01-02"

	if err := usageStore.UpsertDailyUsage(context.Background(), date, 120000); err != nil {
		t.Fatalf("upsert daily usage: %v", err)
	}
	if err := usageStore.UpsertDailyUsage(context.Background(), date, 90000); err != nil {
		t.Fatalf("upsert daily usage: %v", err)
	}

	usage, err := usageStore.GetDailyUsage(context.Background(), date)
	if err != nil {
		t.Fatalf("get daily usage: %v", err)
	}
	if usage.DurationMillis != 90000 {
		t.Fatalf("expected later value to replace earlier, got %d", usage.DurationMillis)
	}

	if _, err := usageStore.GetDailyUsage(context.Background(), "2024-01-03"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := usageStore.UpsertDailyUsage(context.Background(), "yesterday", 1); err == nil {
		t.Fatalf("expected error for malformed date")
	}
}

func TestUsageStoreListAndDelete(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	usageStore := store.Usage()
	for i, date := range []string{"2024-01-01", "2024-01-03", "2024-01-02"} {
		if err := usageStore.UpsertDailyUsage(context.Background(), date, int64(i+1)); err != nil {
			t.Fatalf("upsert daily usage: %v", err)
		}
	}

	records, err := usageStore.ListDailyUsage(context.Background(), 2)
	if err != nil {
		t.Fatalf("list daily usage: %v", err)
	}
	if len(records) != 2 || records[0].Date != "2024-01-03" || records[1].Date != "2024-01-02" {
		t.Fatalf("unexpected records: %+v", records)
	}

	deleted, err := usageStore.DeleteDailyUsageBefore(context.Background(), "2024-01-03")
	if err != nil {
		t.Fatalf("delete daily usage before: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted entries, got %d", deleted)
	}

	records, err = usageStore.ListDailyUsage(context.Background(), 0)
	if err != nil {
		t.Fatalf("list daily usage: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 remaining record, got %d", len(records))
	}
}

func TestExclusionStoreSignalsChanges(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exclusions := store.Exclusions()
	changes := exclusions.Changes(ctx)

	if err := exclusions.Add(ctx, "com.example.game", "com.example.chat"); err != nil {
		t.Fatalf("add exclusions: %v", err)
	}
	expectSignal(t, changes)

	keys, err := exclusions.List(ctx)
	if err != nil {
		t.Fatalf("list exclusions: %v", err)
	}
	if len(keys) != 2 || keys[0] != "com.example.chat" {
		t.Fatalf("unexpected keys: %v", keys)
	}

	// Re-adding an existing key is not a change.
	if err := exclusions.Add(ctx, "com.example.chat"); err != nil {
		t.Fatalf("add exclusions: %v", err)
	}
	select {
	case <-changes:
		t.Fatalf("unexpected change signal")
	case <-time.After(20 * time.Millisecond):
	}

	if err := exclusions.Remove(ctx, "com.example.chat"); err != nil {
		t.Fatalf("remove exclusions: %v", err)
	}
	expectSignal(t, changes)

	keys, err = exclusions.List(ctx)
	if err != nil {
		t.Fatalf("list exclusions: %v", err)
	}
	if len(keys) != 1 || keys[0] != "com.example.game" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestEventStoreQueryWindow(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	events := store.Events()
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	if err := events.Append(context.Background(),
		storage.RawEvent{AppKey: "late", Type: 1, Timestamp: base.Add(2 * time.Hour)},
		storage.RawEvent{AppKey: "before", Type: 1, Timestamp: base.Add(-time.Minute)},
		storage.RawEvent{AppKey: "first", Type: 1, Timestamp: base},
		storage.RawEvent{AppKey: "second", Type: 2, Timestamp: base},
	); err != nil {
		t.Fatalf("append events: %v", err)
	}

	got, err := events.Query(context.Background(), base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events in window, got %d", len(got))
	}
	if got[0].AppKey != "first" || got[1].AppKey != "second" {
		t.Fatalf("expected insertion order for equal timestamps, got %+v", got)
	}

	deleted, err := events.DeleteBefore(context.Background(), base)
	if err != nil {
		t.Fatalf("delete events: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted event, got %d", deleted)
	}
}

func TestAppStore(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	apps := store.Apps()
	if err := apps.Upsert(context.Background(), storage.App{Key: "com.b", Label: "B", Launchable: true}); err != nil {
		t.Fatalf("upsert app: %v", err)
	}
	if err := apps.Upsert(context.Background(), storage.App{Key: "com.a", Label: "A", System: true}); err != nil {
		t.Fatalf("upsert app: %v", err)
	}

	list, err := apps.List(context.Background())
	if err != nil {
		t.Fatalf("list apps: %v", err)
	}
	if len(list) != 2 || list[0].Key != "com.a" {
		t.Fatalf("unexpected apps: %+v", list)
	}

	app, err := apps.Get(context.Background(), "com.b")
	if err != nil {
		t.Fatalf("get app: %v", err)
	}
	if app.Label != "B" || !app.Visible() {
		t.Fatalf("unexpected app: %+v", app)
	}
}

func expectSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("expected change signal")
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "screentime.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
