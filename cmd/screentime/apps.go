package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/goodtune/screentime/internal/apps"
	"github.com/goodtune/screentime/internal/config"
	"github.com/goodtune/screentime/internal/output"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/usage"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List the installed app inventory",
	Args:  cobra.NoArgs,
	RunE:  runApps,
}

var appsImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import the app inventory from a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppsImport,
}

func init() {
	appsCmd.AddCommand(appsImportCmd)
	rootCmd.AddCommand(appsCmd)
}

func newCatalog(cfg *config.Config, store storage.Store, logger zerolog.Logger) (*apps.Catalog, error) {
	return apps.NewCatalog(store.Apps(), cfg.Apps.CacheSize, logger)
}

func runApps(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	catalog, err := newCatalog(cfg, store, logger)
	if err != nil {
		return err
	}

	keys, err := store.Exclusions().List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list exclusions: %w", err)
	}

	rows, err := catalog.Usage(cmd.Context(), nil, usage.NewExclusionSet(keys...))
	if err != nil {
		return err
	}
	return output.AppTable(os.Stdout, rows)
}

func runAppsImport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open inventory: %w", err)
	}
	defer func() { _ = f.Close() }()

	inventory, err := apps.ReadInventory(f)
	if err != nil {
		return err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	catalog, err := newCatalog(cfg, store, logger)
	if err != nil {
		return err
	}
	return catalog.Import(cmd.Context(), inventory)
}
