package eventsource

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Controller is the part of the recompute scheduler the monitor drives.
type Controller interface {
	SetEnabled(on bool)
	Trigger()
}

// Monitor probes event source availability and enables tracking whenever
// the source is reachable. Failures are left to the scheduler, which
// suspends itself on the next run; the next successful probe resumes it.
type Monitor struct {
	source     Source
	controller Controller
	interval   time.Duration
	watchPath  string
	logger     zerolog.Logger

	available bool
	probed    bool
}

// MonitorConfig holds monitor settings.
type MonitorConfig struct {
	// Interval between availability probes.
	Interval time.Duration
	// WatchPath, when set, is watched for changes that trigger an immediate
	// probe and recompute.
	WatchPath string
}

// NewMonitor creates a new availability monitor
func NewMonitor(source Source, controller Controller, config MonitorConfig, logger zerolog.Logger) *Monitor {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	return &Monitor{
		source:     source,
		controller: controller,
		interval:   config.Interval,
		watchPath:  config.WatchPath,
		logger:     logger.With().Str("component", "source-monitor").Logger(),
	}
}

// Run probes immediately, then on every tick and file-system event until
// ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	var fsEvents <-chan fsnotify.Event
	var fsErrors <-chan error

	if m.watchPath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			m.logger.Warn().Err(err).Msg("File watching unavailable, relying on probes")
		} else {
			defer func() { _ = watcher.Close() }()
			// Watch the directory so creation and replacement are seen too.
			if err := watcher.Add(filepath.Dir(m.watchPath)); err != nil {
				m.logger.Warn().Err(err).Str("path", m.watchPath).Msg("Failed to watch event file directory")
			} else {
				fsEvents = watcher.Events
				fsErrors = watcher.Errors
			}
		}
	}

	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Probe(ctx)
		case event, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.watchPath) {
				continue
			}
			m.logger.Debug().Str("op", event.Op.String()).Msg("Event file changed")
			if m.Probe(ctx) && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				m.controller.Trigger()
			}
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			m.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

// Probe checks availability once, enables tracking when the source is
// reachable and reports the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	err := m.source.Available(ctx)
	available := err == nil

	if !m.probed || available != m.available {
		if available {
			m.logger.Info().Msg("Event source available")
		} else {
			m.logger.Warn().Err(err).Msg("Event source unavailable")
		}
	}
	m.probed = true
	m.available = available

	if available {
		m.controller.SetEnabled(true)
	}
	return available
}
