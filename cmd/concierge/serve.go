package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kjd1374/shopping-sub000/api"
	"github.com/kjd1374/shopping-sub000/ranking"
	"github.com/spf13/cobra"
)

// shutdownGrace is how long in-flight requests get to finish.
const shutdownGrace = 5 * time.Second

func newServeCommand() *cobra.Command {
	var noSchedule bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the ranking scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), noSchedule)
		},
	}
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "Disable scheduled ranking ingestion")
	return cmd
}

func runServe(parent context.Context, noSchedule bool) error {
	if parent == nil {
		parent = context.Background()
	}
	slog.Info("concierge starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"fetchMode", cfg.Preview.FetchMode,
	)

	// ── 3. Wire services ────────────────────────────────────────────
	svc, err := newServices(parent, cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	// ── 4. Scheduler ────────────────────────────────────────────────
	if cfg.Ranking.Schedule != "" && !noSchedule {
		sched, err := ranking.NewScheduler(svc.rankings, cfg.Ranking.Schedule, cfg.Ranking.Categories)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(api.Deps{
		Browsers:   svc.browsers,
		Rankings:   svc.rankings,
		Store:      svc.store,
		Previews:   svc.previews,
		Reconciler: svc.reconciler,
	}, cfg, time.Now())

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	case <-parent.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("concierge stopped")
	return nil
}
