package eventsource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/usage"
	"github.com/rs/zerolog"
)

// Source is an event source whose availability can be probed.
type Source interface {
	usage.EventSource
	// Available returns nil when QueryEvents is expected to succeed.
	Available(ctx context.Context) error
}

// StoreSource reads raw events from the event log store.
type StoreSource struct {
	events storage.EventLogStore
}

// NewStoreSource creates a source backed by the event log store.
func NewStoreSource(events storage.EventLogStore) *StoreSource {
	return &StoreSource{events: events}
}

// QueryEvents returns the foreground transitions in [from, to).
func (s *StoreSource) QueryEvents(ctx context.Context, from, to time.Time) ([]usage.UsageEvent, error) {
	raw, err := s.events.Query(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: query event log: %v", usage.ErrSourceUnavailable, err)
	}
	return TranslateAll(raw), nil
}

// Available probes the event log with an empty window.
func (s *StoreSource) Available(ctx context.Context) error {
	now := time.Now()
	if _, err := s.events.Query(ctx, now, now); err != nil {
		return fmt.Errorf("%w: %v", usage.ErrSourceUnavailable, err)
	}
	return nil
}

// FileSource reads raw events from a JSON lines file written by a platform
// agent. The file disappearing or becoming unreadable is how the agent
// signals that usage access was revoked.
type FileSource struct {
	path   string
	logger zerolog.Logger
}

// NewFileSource creates a source reading path.
func NewFileSource(path string, logger zerolog.Logger) *FileSource {
	return &FileSource{
		path:   path,
		logger: logger.With().Str("component", "file-source").Logger(),
	}
}

// Path returns the watched file.
func (s *FileSource) Path() string {
	return s.path
}

// QueryEvents returns the foreground transitions in [from, to). Malformed
// lines are skipped.
func (s *FileSource) QueryEvents(ctx context.Context, from, to time.Time) ([]usage.UsageEvent, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, s.unavailable(err)
	}
	defer func() { _ = f.Close() }()

	var (
		raw     []storage.RawEvent
		skipped int
		seq     uint64
	)
	err = scanLines(f, func(line int, event storage.RawEvent, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			skipped++
			return nil
		}
		seq++
		if event.Timestamp.Before(from) || !event.Timestamp.Before(to) {
			return nil
		}
		event.Seq = seq
		raw = append(raw, event)
		return nil
	})
	if err != nil {
		return nil, s.unavailable(err)
	}

	if skipped > 0 {
		s.logger.Warn().Int("skipped", skipped).Str("path", s.path).Msg("Skipped malformed event lines")
	}

	storage.SortEvents(raw)
	return TranslateAll(raw), nil
}

// Available checks that the file exists and can be opened.
func (s *FileSource) Available(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return s.unavailable(err)
	}
	return f.Close()
}

func (s *FileSource) unavailable(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s does not exist", usage.ErrSourceUnavailable, s.path)
	}
	return fmt.Errorf("%w: %v", usage.ErrSourceUnavailable, err)
}
