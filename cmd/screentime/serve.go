package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/goodtune/screentime/internal/eventsource"
	"github.com/goodtune/screentime/internal/metrics"
	"github.com/goodtune/screentime/internal/output"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/systemd"
	"github.com/goodtune/screentime/internal/usage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the usage tracking service",
	Long: `Run the tracking service: recompute today's foreground total periodically and
whenever exclusions change, persist it, and serve it on the metrics endpoint.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting screentime")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().Str("type", cfg.Storage.Type).Msg("Storage initialized")

	source := openEventSource(cfg.EventSource, store, logger)
	aggregator, err := newAggregator(cfg, source, store.Exclusions(), logger)
	if err != nil {
		return err
	}

	interval, _ := cfg.Tracking.IntervalDuration()
	probeInterval, _ := cfg.Tracking.ProbeIntervalDuration()
	location, _ := cfg.Tracking.Location()

	publisher := usage.NewPublisher()
	scheduler := usage.NewScheduler(aggregator, store.Usage(), publisher, usage.SchedulerConfig{
		Interval: interval,
	}, logger)

	retention, err := usage.NewRetentionScheduler(store.Usage(), store.Events(), usage.RetentionConfig{
		RunAt:          cfg.Retention.RunAt,
		EventDays:      cfg.Retention.EventDays,
		DailyUsageDays: cfg.Retention.DailyUsageDays,
		Location:       location,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize retention: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.Run(ctx)
	})

	g.Go(func() error {
		watchExclusions(ctx, store.Exclusions(), scheduler.Trigger, logger)
		return nil
	})

	if cfg.Tracking.Enabled {
		watchPath := ""
		if fileSource, ok := source.(*eventsource.FileSource); ok {
			watchPath = fileSource.Path()
		}
		monitor := eventsource.NewMonitor(source, scheduler, eventsource.MonitorConfig{
			Interval:  probeInterval,
			WatchPath: watchPath,
		}, logger)
		g.Go(func() error {
			return monitor.Run(ctx)
		})
	} else {
		logger.Warn().Msg("Tracking disabled by configuration")
		scheduler.SetEnabled(false)
	}

	if cfg.Retention.EventDays > 0 || cfg.Retention.DailyUsageDays > 0 {
		g.Go(func() error {
			return retention.Run(ctx)
		})
	}

	// Initialize Metrics Server
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		metricsServer := metrics.NewServer(metricsAddr, func() any {
			return publisher.Latest()
		}, logger)
		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		g.Go(func() error {
			<-ctx.Done()
			return metricsServer.Stop()
		})
	}

	g.Go(func() error {
		reportStatus(ctx, publisher, logger)
		return nil
	})

	if wd := systemd.WatchdogInterval(); wd > 0 {
		g.Go(func() error {
			pingWatchdog(ctx, wd, logger)
			return nil
		})
	}

	// SIGHUP requests an immediate recompute
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				logger.Info().Msg("SIGHUP received, recomputing")
				scheduler.Trigger()
			}
		}
	})

	// Notify systemd that we're ready
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}
	logger.Info().Msg("screentime startup complete")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	err = g.Wait()
	logger.Info().Msg("screentime stopped")
	return err
}

// watchExclusions triggers a recompute whenever the exclusion set changes.
// It returns when ctx is done or the store stops delivering changes.
func watchExclusions(ctx context.Context, exclusions storage.ExclusionStore, trigger func(), logger zerolog.Logger) {
	for range exclusions.Changes(ctx) {
		logger.Debug().Msg("Exclusion set changed")
		trigger()
	}
	if ctx.Err() == nil {
		logger.Error().Msg("Exclusion change feed closed, recomputes now rely on the interval only")
	}
}

// reportStatus mirrors the live total into the systemd status line.
func reportStatus(ctx context.Context, publisher *usage.Publisher, logger zerolog.Logger) {
	snapshots, cancel := publisher.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			status := fmt.Sprintf("%s: %s (%s)", snap.Date, output.FormatMillis(snap.TotalMillis), snap.Status)
			if err := systemd.NotifyStatus(status); err != nil {
				logger.Debug().Err(err).Msg("Failed to send systemd status")
			}
		}
	}
}

func pingWatchdog(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := systemd.NotifyWatchdog(); err != nil {
				logger.Warn().Err(err).Msg("Failed to ping systemd watchdog")
			}
		}
	}
}
