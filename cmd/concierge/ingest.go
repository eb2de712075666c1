package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kjd1374/shopping-sub000/ranking"
	"github.com/spf13/cobra"
)

func newIngestCommand() *cobra.Command {
	var categories []string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ranking ingestion and print the report",
		Long: `Runs ranking ingestion once, category by category, in a single browser
session, and prints the run report as JSON.

Example:
  concierge ingest
  concierge ingest --categories skincare,makeup`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(categories) == 0 {
				categories = cfg.Ranking.Categories
			}
			return runIngest(cmd.Context(), categories)
		},
	}
	cmd.Flags().StringSliceVarP(&categories, "categories", "c", nil, "Category keys to ingest (default: whole catalog)")
	return cmd
}

func runIngest(parent context.Context, categories []string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	report, runErr := svc.rankings.Run(ctx, ranking.TriggerManual, categories)
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		if runErr == nil && report.Succeeded() < len(report.Categories) {
			return fmt.Errorf("%d of %d categories failed", len(report.Categories)-report.Succeeded(), len(report.Categories))
		}
	}
	return runErr
}
