package eventsource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/storage/bolt"
	"github.com/goodtune/screentime/internal/usage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		raw  storage.RawEvent
		kind usage.EventKind
		ok   bool
	}{
		{name: "resumed", raw: storage.RawEvent{AppKey: "a", Type: 1}, kind: usage.EventResumed, ok: true},
		{name: "paused", raw: storage.RawEvent{AppKey: "a", Type: 2}, kind: usage.EventPaused, ok: true},
		{name: "stopped counts as paused", raw: storage.RawEvent{AppKey: "a", Type: 23}, kind: usage.EventPaused, ok: true},
		{name: "screen off dropped", raw: storage.RawEvent{AppKey: "a", Type: 16}},
		{name: "foreground service dropped", raw: storage.RawEvent{AppKey: "a", Type: 19}},
		{name: "unknown dropped", raw: storage.RawEvent{AppKey: "a", Type: 999}},
		{name: "missing package dropped", raw: storage.RawEvent{Type: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, ok := Translate(tt.raw)
			require.Equal(t, tt.ok, ok)
			if ok {
				require.Equal(t, tt.kind, event.Kind)
				require.Equal(t, tt.raw.AppKey, event.AppKey)
			}
		})
	}
}

func TestReadJSONLines(t *testing.T) {
	input := strings.Join([]string{
		`{"package":"com.a","type":1,"timestamp":1717200000000}`,
		``,
		`{"package":"com.a","type":"ACTIVITY_PAUSED","timestamp":"2024-06-01T00:01:00Z","class":"Main"}`,
	}, "\n")

	events, err := ReadJSONLines(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int(TypeActivityResumed), events[0].Type)
	require.True(t, events[0].Timestamp.Equal(time.UnixMilli(1717200000000)))
	require.Equal(t, int(TypeActivityPaused), events[1].Type)
	require.Equal(t, "Main", events[1].Class)

	_, err = ReadJSONLines(strings.NewReader("{\"package\":\"x\",\"type\":1,\"timestamp\":1}\nnot json\n"))
	require.ErrorContains(t, err, "line 2")

	_, err = ReadJSONLines(strings.NewReader(`{"package":"x","type":"BOGUS","timestamp":1}`))
	require.Error(t, err)
}

func TestStoreSource(t *testing.T) {
	store, err := bolt.Open(filepath.Join(t.TempDir(), "events.bolt"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	require.NoError(t, store.Events().Append(ctx,
		storage.RawEvent{AppKey: "com.a", Type: 1, Timestamp: base.Add(time.Minute)},
		storage.RawEvent{AppKey: "com.a", Type: 16, Timestamp: base.Add(2 * time.Minute)},
		storage.RawEvent{AppKey: "com.a", Type: 23, Timestamp: base.Add(3 * time.Minute)},
	))

	source := NewStoreSource(store.Events())
	require.NoError(t, source.Available(ctx))

	events, err := source.QueryEvents(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, []usage.UsageEvent{
		usage.Resumed("com.a", base.Add(time.Minute)),
		usage.Paused("com.a", base.Add(3*time.Minute)),
	}, normalize(events))

	require.NoError(t, store.Close())
	_, err = source.QueryEvents(ctx, base, base.Add(time.Hour))
	require.ErrorIs(t, err, usage.ErrSourceUnavailable)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	source := NewFileSource(path, zerolog.Nop())
	ctx := context.Background()

	_, err := source.QueryEvents(ctx, base, base.Add(time.Hour))
	require.ErrorIs(t, err, usage.ErrSourceUnavailable)
	require.ErrorIs(t, source.Available(ctx), usage.ErrSourceUnavailable)

	content := strings.Join([]string{
		`{"package":"com.b","type":1,"timestamp":"2024-06-01T00:05:00Z"}`,
		`{"package":"com.a","type":1,"timestamp":"2024-05-31T23:59:00Z"}`,
		`garbage`,
		`{"package":"com.b","type":2,"timestamp":"2024-06-01T00:06:00Z"}`,
		`{"package":"com.a","type":1,"timestamp":"2024-06-01T00:01:00Z"}`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	require.NoError(t, source.Available(ctx))
	events, err := source.QueryEvents(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, []usage.UsageEvent{
		usage.Resumed("com.a", base.Add(time.Minute)),
		usage.Resumed("com.b", base.Add(5*time.Minute)),
		usage.Paused("com.b", base.Add(6*time.Minute)),
	}, normalize(events))
}

type fakeController struct {
	mu       sync.Mutex
	enabled  int
	triggers int
}

func (f *fakeController) SetEnabled(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if on {
		f.enabled++
	}
}

func (f *fakeController) Trigger() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
}

func (f *fakeController) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled, f.triggers
}

type flakySource struct {
	mu  sync.Mutex
	err error
}

func (f *flakySource) QueryEvents(ctx context.Context, from, to time.Time) ([]usage.UsageEvent, error) {
	return nil, nil
}

func (f *flakySource) Available(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func TestMonitorProbe(t *testing.T) {
	source := &flakySource{err: errors.New("revoked")}
	controller := &fakeController{}
	monitor := NewMonitor(source, controller, MonitorConfig{Interval: time.Hour}, zerolog.Nop())

	require.False(t, monitor.Probe(context.Background()))
	enabled, _ := controller.counts()
	require.Zero(t, enabled)

	source.mu.Lock()
	source.err = nil
	source.mu.Unlock()

	require.True(t, monitor.Probe(context.Background()))
	enabled, _ = controller.counts()
	require.Equal(t, 1, enabled)
}

func TestMonitorWatchesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	controller := &fakeController{}
	monitor := NewMonitor(NewFileSource(path, zerolog.Nop()), controller, MonitorConfig{
		Interval:  time.Hour,
		WatchPath: path,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Let the initial probe run and the watch be registered.
	time.Sleep(50 * time.Millisecond)
	enabled, _ := controller.counts()
	require.Zero(t, enabled)

	require.NoError(t, os.WriteFile(path, []byte(`{"package":"a","type":1,"timestamp":1}`+"\n"), 0644))

	require.Eventually(t, func() bool {
		enabled, triggers := controller.counts()
		return enabled > 0 && triggers > 0
	}, 2*time.Second, 10*time.Millisecond)
}

// normalize strips monotonic and location details so events compare equal.
func normalize(events []usage.UsageEvent) []usage.UsageEvent {
	out := make([]usage.UsageEvent, len(events))
	for i, e := range events {
		e.Timestamp = e.Timestamp.UTC()
		out[i] = e
	}
	return out
}
