package usage

import "time"

// Fold reconstructs per-app foreground durations from an ordered event batch.
//
// Events must be sorted by timestamp and windowEnd must not precede the last
// event. A Resumed event opens a span for its app, silently replacing any span
// that was never closed. A Paused event closes the open span for its app and is
// ignored when none is open. Spans still open after the last event are closed
// against windowEnd. Malformed orderings never produce negative durations.
func Fold(events []UsageEvent, windowEnd time.Time) AppDurations {
	durations := make(AppDurations)
	open := make(map[string]time.Time)

	for _, event := range events {
		switch event.Kind {
		case EventResumed:
			open[event.AppKey] = event.Timestamp
			if _, ok := durations[event.AppKey]; !ok {
				durations[event.AppKey] = 0
			}
		case EventPaused:
			startedAt, ok := open[event.AppKey]
			if !ok {
				continue
			}
			durations[event.AppKey] += spanMillis(startedAt, event.Timestamp)
			delete(open, event.AppKey)
		}
	}

	for appKey, startedAt := range open {
		durations[appKey] += spanMillis(startedAt, windowEnd)
	}

	return durations
}

func spanMillis(start, end time.Time) int64 {
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Milliseconds()
}
