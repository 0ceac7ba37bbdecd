package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/goodtune/screentime/internal/config"
	"github.com/goodtune/screentime/internal/eventsource"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/storage/bolt"
	"github.com/goodtune/screentime/internal/storage/redis"
	"github.com/goodtune/screentime/internal/storage/sqlite"
	"github.com/goodtune/screentime/internal/usage"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "screentime",
	Short: "screentime - foreground app usage tracker",
	Long: `screentime reconstructs how long each app spent in the foreground today
from platform usage events, keeps a live total and persists one total per day.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to serve when no subcommand is provided
		return runServe(cmd, args)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/screentime/config.yaml", "Path to configuration file")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and sets up the global logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, setupLogger(cfg.Logging), nil
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Logs go to stderr so command output on stdout stays clean.
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "bolt":
		return bolt.Open(cfg.Path)
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// openEventSource builds the configured event source. Store-backed sources
// read the event log of store.
func openEventSource(cfg config.EventSourceConfig, store storage.Store, logger zerolog.Logger) eventsource.Source {
	if cfg.Type == "file" {
		return eventsource.NewFileSource(cfg.Path, logger)
	}
	return eventsource.NewStoreSource(store.Events())
}

// exclusionSource reads the user's exclusion set from storage.
func exclusionSource(store storage.ExclusionStore) usage.ExclusionSource {
	return usage.ExclusionSourceFunc(func(ctx context.Context) (usage.ExclusionSet, error) {
		keys, err := store.List(ctx)
		if err != nil {
			return nil, err
		}
		return usage.NewExclusionSet(keys...), nil
	})
}

// newAggregator wires the aggregator from configuration.
func newAggregator(cfg *config.Config, source usage.EventSource, exclusions storage.ExclusionStore, logger zerolog.Logger) (*usage.Aggregator, error) {
	location, err := cfg.Tracking.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	reserved := usage.ReservedKeys(
		cfg.Tracking.SelfKey,
		cfg.Tracking.LauncherKey,
		cfg.Tracking.ShellKey,
		cfg.Tracking.ReservedKeys...,
	)

	return usage.NewAggregator(source, exclusionSource(exclusions), usage.AggregatorConfig{
		Reserved: reserved,
		Location: location,
	}, logger), nil
}
