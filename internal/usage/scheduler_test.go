package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type schedulerHarness struct {
	events     *fakeEvents
	exclusions *fakeExclusions
	writer     *fakeWriter
	publisher  *Publisher
	scheduler  *Scheduler
	clock      *TestClock
	cancel     context.CancelFunc
	stopped    chan struct{}
	err        error
}

func startScheduler(t *testing.T, interval time.Duration) *schedulerHarness {
	t.Helper()

	midnight := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	clock := &TestClock{CurrentTime: midnight.Add(time.Hour)}

	h := &schedulerHarness{
		events: &fakeEvents{events: []UsageEvent{
			Resumed("A", midnight.Add(time.Minute)),
			Paused("A", midnight.Add(time.Minute+time.Second)),
			Resumed("B", midnight.Add(2*time.Minute)),
			Paused("B", midnight.Add(2*time.Minute+2*time.Second)),
			Resumed("C", midnight.Add(3*time.Minute)),
			Paused("C", midnight.Add(3*time.Minute+4*time.Second)),
		}},
		exclusions: &fakeExclusions{set: NewExclusionSet()},
		writer:     &fakeWriter{},
		publisher:  NewPublisher(),
		clock:      clock,
		stopped:    make(chan struct{}),
	}

	agg := NewAggregator(h.events, h.exclusions, AggregatorConfig{
		Location: time.UTC,
		Clock:    clock,
	}, zerolog.Nop())
	h.scheduler = NewScheduler(agg, h.writer, h.publisher, SchedulerConfig{
		Interval: interval,
		Clock:    clock,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.err = h.scheduler.Run(ctx)
		close(h.stopped)
	}()

	t.Cleanup(h.stop)
	return h
}

func (h *schedulerHarness) stop() {
	h.cancel()
	select {
	case <-h.stopped:
	case <-time.After(2 * time.Second):
	}
}

func TestSchedulerEnableRunsImmediately(t *testing.T) {
	h := startScheduler(t, time.Hour)

	h.scheduler.SetEnabled(true)
	waitFor(t, "first upsert", func() bool { return len(h.writer.all()) == 1 })
	waitFor(t, "idle", func() bool { return h.scheduler.State() == StateIdle })

	got := h.writer.all()[0]
	if got.date != "2024-03-10" || got.millis != 7000 {
		t.Fatalf("unexpected upsert: %+v", got)
	}

	snap := h.publisher.Latest()
	if snap.Status != StatusLive || snap.TotalMillis != 7000 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.LastPersistedAt.IsZero() {
		t.Fatalf("expected persisted timestamp")
	}
	if len(snap.Apps) != 3 || snap.Apps[0].AppKey != "C" {
		t.Fatalf("unexpected breakdown: %+v", snap.Apps)
	}
}

func TestSchedulerCoalescesTriggers(t *testing.T) {
	h := startScheduler(t, time.Hour)

	gate := h.events.block()
	h.scheduler.SetEnabled(true)
	waitFor(t, "running", func() bool { return h.scheduler.State() == StateRunning })

	h.exclusions.replace("A")
	h.scheduler.Trigger()
	waitFor(t, "pending rerun", func() bool { return h.scheduler.State() == StateRunningWithPendingRerun })

	h.exclusions.replace("A", "B")
	h.scheduler.Trigger()
	waitFor(t, "trigger consumed", func() bool { return len(h.scheduler.triggerCh) == 0 })

	close(gate)
	waitFor(t, "two upserts", func() bool { return len(h.writer.all()) == 2 })
	waitFor(t, "idle", func() bool { return h.scheduler.State() == StateIdle })

	time.Sleep(50 * time.Millisecond)
	upserts := h.writer.all()
	if len(upserts) != 2 {
		t.Fatalf("expected exactly 2 recomputes, got %d", len(upserts))
	}
	if upserts[0].millis != 7000 {
		t.Fatalf("in-flight run must use the exclusion set it read: got %d", upserts[0].millis)
	}
	if upserts[1].millis != 4000 {
		t.Fatalf("follow-up run must reflect the latest exclusions: got %d", upserts[1].millis)
	}
}

func TestSchedulerPeriodicAndDisable(t *testing.T) {
	h := startScheduler(t, 10*time.Millisecond)

	h.scheduler.SetEnabled(true)
	waitFor(t, "periodic runs", func() bool { return len(h.writer.all()) >= 3 })

	h.scheduler.SetEnabled(false)
	waitFor(t, "idle", func() bool { return h.scheduler.State() == StateIdle })

	count := len(h.writer.all())
	time.Sleep(50 * time.Millisecond)
	if got := len(h.writer.all()); got != count {
		t.Fatalf("expected no runs after disable, got %d more", got-count)
	}
	if h.publisher.Latest().Status != StatusDisabled {
		t.Fatalf("expected disabled status, got %s", h.publisher.Latest().Status)
	}

	h.scheduler.Trigger()
	time.Sleep(20 * time.Millisecond)
	if got := len(h.writer.all()); got != count {
		t.Fatalf("trigger while disabled must be ignored")
	}
}

func TestSchedulerSuspendsOnSourceUnavailable(t *testing.T) {
	h := startScheduler(t, 10*time.Millisecond)
	h.events.setErr(errRevoked)

	h.scheduler.SetEnabled(true)
	waitFor(t, "suspended", func() bool { return h.scheduler.Suspended() })
	waitFor(t, "idle", func() bool { return h.scheduler.State() == StateIdle })

	snap := h.publisher.Latest()
	if snap.Status != StatusSourceUnavailable || snap.SourceError == "" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(h.writer.all()) != 0 {
		t.Fatalf("nothing may be persisted while the source is unavailable")
	}

	completed := h.scheduler.Completed()
	time.Sleep(50 * time.Millisecond)
	if h.scheduler.Completed() != completed {
		t.Fatalf("polling continued while suspended")
	}

	h.events.setErr(nil)
	h.scheduler.SetEnabled(true)
	waitFor(t, "resumed upsert", func() bool { return len(h.writer.all()) >= 1 })
	if h.scheduler.Suspended() {
		t.Fatalf("expected scheduler to resume")
	}
}

func TestSchedulerPersistenceFailureKeepsLiveTotal(t *testing.T) {
	h := startScheduler(t, time.Hour)
	h.writer.setErr(errors.New("disk full"))

	h.scheduler.SetEnabled(true)
	waitFor(t, "persist error", func() bool { return h.publisher.Latest().PersistError != "" })
	waitFor(t, "idle", func() bool { return h.scheduler.State() == StateIdle })

	snap := h.publisher.Latest()
	if snap.TotalMillis != 7000 || snap.Status != StatusLive {
		t.Fatalf("live total must still be published: %+v", snap)
	}

	h.writer.setErr(nil)
	h.scheduler.Trigger()
	waitFor(t, "recovered upsert", func() bool { return len(h.writer.all()) == 1 })
	waitFor(t, "error cleared", func() bool { return h.publisher.Latest().PersistError == "" })
}

func TestSchedulerDayRollover(t *testing.T) {
	h := startScheduler(t, time.Hour)

	h.scheduler.SetEnabled(true)
	waitFor(t, "first upsert", func() bool { return len(h.writer.all()) == 1 })
	waitFor(t, "idle", func() bool { return h.scheduler.State() == StateIdle })

	h.writer.setErr(errors.New("disk full"))
	h.scheduler.Trigger()
	waitFor(t, "persist error", func() bool { return h.publisher.Latest().PersistError != "" })
	waitFor(t, "idle", func() bool { return h.scheduler.State() == StateIdle })

	// Next day: the new date gets its own row and yesterday's failure is gone.
	h.writer.setErr(nil)
	h.clock.Advance(24 * time.Hour)
	h.scheduler.Trigger()
	waitFor(t, "next day persisted", func() bool {
		snap := h.publisher.Latest()
		return snap.Date == "2024-03-11" && snap.LastPersistedAt.Equal(h.clock.Now())
	})
	waitFor(t, "idle", func() bool { return h.scheduler.State() == StateIdle })

	want := []upsert{{date: "2024-03-10", millis: 7000}, {date: "2024-03-11", millis: 7000}}
	if got := h.writer.all(); len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected upserts %+v, got %+v", want, got)
	}
	if snap := h.publisher.Latest(); snap.PersistError != "" {
		t.Fatalf("persist error must not survive the date change: %+v", snap)
	}

	// A failed first write on a new day must not report the previous day's
	// persist time.
	h.writer.setErr(errors.New("disk full"))
	h.clock.Advance(24 * time.Hour)
	h.scheduler.Trigger()
	waitFor(t, "third day failure", func() bool {
		snap := h.publisher.Latest()
		return snap.Date == "2024-03-12" && snap.PersistError != ""
	})
	waitFor(t, "idle", func() bool { return h.scheduler.State() == StateIdle })

	if snap := h.publisher.Latest(); !snap.LastPersistedAt.IsZero() {
		t.Fatalf("expected no persisted timestamp for 2024-03-12, got %v", snap.LastPersistedAt)
	}
	if got := h.writer.all(); len(got) != 2 {
		t.Fatalf("failed write must not be recorded: %+v", got)
	}
}

func TestSchedulerExclusionFailureSkipsRun(t *testing.T) {
	h := startScheduler(t, time.Hour)
	h.exclusions.mu.Lock()
	h.exclusions.err = errors.New("store closed")
	h.exclusions.mu.Unlock()

	h.scheduler.SetEnabled(true)
	waitFor(t, "run finished", func() bool { return h.scheduler.Completed() == 1 })

	if len(h.writer.all()) != 0 {
		t.Fatalf("expected no upsert")
	}
	if h.scheduler.Suspended() {
		t.Fatalf("exclusion failure must not suspend tracking")
	}
	if h.publisher.Latest().Status != StatusIdle {
		t.Fatalf("expected nothing published, got %s", h.publisher.Latest().Status)
	}
}

func TestSchedulerShutdownWaitsForInFlightRun(t *testing.T) {
	h := startScheduler(t, time.Hour)

	gate := h.events.block()
	h.scheduler.SetEnabled(true)
	waitFor(t, "running", func() bool { return h.scheduler.State() == StateRunning })

	h.cancel()
	select {
	case <-h.stopped:
		t.Fatalf("Run returned before the in-flight run finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	select {
	case <-h.stopped:
		if h.err != nil {
			t.Fatalf("unexpected error: %v", h.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
	if len(h.writer.all()) != 1 {
		t.Fatalf("in-flight run must persist before shutdown")
	}
}
