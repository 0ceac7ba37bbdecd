package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeEvents struct {
	mu     sync.Mutex
	events []UsageEvent
	err    error
	gate   chan struct{}
	calls  int
	from   time.Time
	to     time.Time
}

func (f *fakeEvents) QueryEvents(ctx context.Context, from, to time.Time) ([]UsageEvent, error) {
	f.mu.Lock()
	f.calls++
	f.from, f.to = from, to
	gate := f.gate
	f.gate = nil
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]UsageEvent(nil), f.events...), nil
}

func (f *fakeEvents) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeEvents) block() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

type fakeExclusions struct {
	mu  sync.Mutex
	set ExclusionSet
	err error
}

func (f *fakeExclusions) Current(ctx context.Context) (ExclusionSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return NewExclusionSet(f.set.Keys()...), nil
}

func (f *fakeExclusions) replace(keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set = NewExclusionSet(keys...)
}

type upsert struct {
	date   string
	millis int64
}

type fakeWriter struct {
	mu      sync.Mutex
	upserts []upsert
	err     error
}

func (f *fakeWriter) UpsertDailyUsage(ctx context.Context, date string, durationMillis int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, upsert{date: date, millis: durationMillis})
	return nil
}

func (f *fakeWriter) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeWriter) all() []upsert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upsert(nil), f.upserts...)
}

var errRevoked = errors.New("usage access revoked")

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
