package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/goodtune/screentime/internal/eventsource"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE|-",
	Short: "Append raw platform events to the event log",
	Long: `Read platform usage events as JSON lines and append them to the stored event
log. Each line holds "package", "type" (numeric code or name) and "timestamp"
(epoch milliseconds or RFC 3339). Use "-" to read from standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open events: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	events, err := eventsource.ReadJSONLines(r)
	if err != nil {
		return err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Events().Append(cmd.Context(), events...); err != nil {
		return fmt.Errorf("failed to append events: %w", err)
	}

	logger.Info().Int("count", len(events)).Msg("Events ingested")
	return nil
}
