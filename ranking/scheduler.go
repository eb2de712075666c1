package ranking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kjd1374/shopping-sub000/models"
	"github.com/robfig/cron/v3"
)

// Runner starts an ingestion run.
type Runner interface {
	Run(ctx context.Context, trigger string, keys []string) (*models.IngestionReport, error)
}

// Scheduler runs the full catalog on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	keys   []string
	spec   string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler parses a standard 5-field cron expression. keys restricts
// every scheduled run; empty means the whole catalog.
func NewScheduler(runner Runner, spec string, keys []string) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, runner: runner, keys: keys, spec: spec, ctx: ctx, cancel: cancel}

	if _, err := c.AddFunc(spec, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid ranking schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	report, err := s.runner.Run(s.ctx, TriggerScheduled, s.keys)
	if models.HasCode(err, models.ErrCodeBusy) {
		slog.Info("scheduled ranking run skipped, another run is active")
		return
	}
	if err != nil {
		slog.Error("scheduled ranking run failed", "error", err)
		return
	}
	slog.Info("scheduled ranking run completed",
		"run_id", report.RunID,
		"succeeded", report.Succeeded(),
	)
}

// Start begins firing the schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("ranking scheduler started", "schedule", s.spec)
}

// Stop cancels an active scheduled run and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	slog.Info("ranking scheduler stopped")
}
