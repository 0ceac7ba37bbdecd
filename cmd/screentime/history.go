package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goodtune/screentime/internal/output"
)

var historyDays int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show persisted daily totals",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyDays, "days", 14, "Number of days to show (0 shows all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	records, err := store.Usage().ListDailyUsage(cmd.Context(), historyDays)
	if err != nil {
		return fmt.Errorf("failed to list daily usage: %w", err)
	}

	return output.History(os.Stdout, records)
}
