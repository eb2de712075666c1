package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kjd1374/shopping-sub000/api/handler"
	"github.com/kjd1374/shopping-sub000/config"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "concierge",
	Short: "Product data pipeline for the Korea to Vietnam shopping concierge",
	Long: `concierge collects best-seller rankings from Korean shopping sites,
previews customer-submitted product links and normalizes product pages
into purchase-ready records.

Configuration is read from CONCIERGE_* environment variables; a .env file
in the working directory is applied first when present.`,
	Version:       handler.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// ── 1. Load configuration ───────────────────────────────────
		cfg = config.Load()

		// ── 2. Initialise structured logging ────────────────────────
		initLogger(cfg.Log)
		return nil
	},
}

func main() {
	rootCmd.AddCommand(newServeCommand(), newIngestCommand(), newCatalogCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(h))
}
