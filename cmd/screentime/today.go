package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goodtune/screentime/internal/apps"
	"github.com/goodtune/screentime/internal/output"
	"github.com/goodtune/screentime/internal/usage"
)

var (
	todayPersist bool
	todayJSON    bool
)

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Compute today's foreground usage",
	Long:  `Compute today's total once from the configured event source and print the per-app breakdown.`,
	Args:  cobra.NoArgs,
	RunE:  runToday,
}

func init() {
	todayCmd.Flags().BoolVar(&todayPersist, "persist", false, "Store the computed total as today's daily usage")
	todayCmd.Flags().BoolVar(&todayJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(todayCmd)
}

func runToday(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	source := openEventSource(cfg.EventSource, store, logger)
	aggregator, err := newAggregator(cfg, source, store.Exclusions(), logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	result, err := aggregator.ComputeToday(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute today's usage: %w", err)
	}

	if todayPersist {
		if err := store.Usage().UpsertDailyUsage(ctx, result.Date, result.TotalMillis); err != nil {
			return fmt.Errorf("%w: %v", usage.ErrPersistence, err)
		}
		logger.Info().Str("date", result.Date).Int64("total_ms", result.TotalMillis).Msg("Daily usage stored")
	}

	keys, err := store.Exclusions().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list exclusions: %w", err)
	}

	catalog, err := newCatalog(cfg, store, logger)
	if err != nil {
		return err
	}
	rows, err := catalog.Usage(ctx, result, usage.NewExclusionSet(keys...))
	if err != nil {
		return err
	}

	if todayJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Date        string     `json:"date"`
			TotalMillis int64      `json:"total_ms"`
			Apps        []apps.Row `json:"apps"`
		}{result.Date, result.TotalMillis, rows})
	}

	return output.Today(os.Stdout, result, rows)
}
