package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var excludeCmd = &cobra.Command{
	Use:   "exclude APP...",
	Short: "Remove apps from the daily total",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeExclusions(cmd, args, true)
	},
}

var includeCmd = &cobra.Command{
	Use:   "include APP...",
	Short: "Count previously excluded apps again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeExclusions(cmd, args, false)
	},
}

var exclusionsCmd = &cobra.Command{
	Use:   "exclusions",
	Short: "List excluded apps",
	Args:  cobra.NoArgs,
	RunE:  runExclusions,
}

func init() {
	rootCmd.AddCommand(excludeCmd, includeCmd, exclusionsCmd)
}

// changeExclusions updates the stored set. A running service picks the
// change up through the store's change notifications.
func changeExclusions(cmd *cobra.Command, keys []string, exclude bool) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	if exclude {
		err = store.Exclusions().Add(cmd.Context(), keys...)
	} else {
		err = store.Exclusions().Remove(cmd.Context(), keys...)
	}
	if err != nil {
		return fmt.Errorf("failed to update exclusions: %w", err)
	}

	logger.Info().Strs("apps", keys).Bool("excluded", exclude).Msg("Exclusions updated")
	return nil
}

func runExclusions(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	keys, err := store.Exclusions().List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list exclusions: %w", err)
	}

	catalog, err := newCatalog(cfg, store, logger)
	if err != nil {
		return err
	}
	for _, key := range keys {
		_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", key, catalog.Label(cmd.Context(), key))
	}
	return nil
}
