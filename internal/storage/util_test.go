package storage

import (
	"context"
	"testing"
	"time"
)

func TestBroadcasterCoalesces(t *testing.T) {
	var b Broadcaster
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.Subscribe(ctx)
	b.Notify()
	b.Notify()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("expected a signal")
	}
	select {
	case <-ch:
		t.Fatalf("expected signals to collapse")
	default:
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected channel to close")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
	b.Notify()
}

func TestSortDailyUsage(t *testing.T) {
	records := []DailyUsage{{Date: "2024-01-01"}, {Date: "2024-01-03"}, {Date: "2024-01-02"}}
	got := SortDailyUsage(records, 2)
	if len(got) != 2 || got[0].Date != "2024-01-03" || got[1].Date != "2024-01-02" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestSortEventsStable(t *testing.T) {
	ts := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	events := []RawEvent{
		{AppKey: "b", Timestamp: ts, Seq: 2},
		{AppKey: "c", Timestamp: ts.Add(-time.Second), Seq: 3},
		{AppKey: "a", Timestamp: ts, Seq: 1},
	}
	SortEvents(events)
	if events[0].AppKey != "c" || events[1].AppKey != "a" || events[2].AppKey != "b" {
		t.Fatalf("unexpected order: %+v", events)
	}
}
