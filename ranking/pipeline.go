// Package ranking ingests best-seller lists into ranking partitions.
//
// Categories of a run are processed one after another in one browser, each
// in its own tab, with a pause between them. A category either replaces its
// whole partition or leaves it untouched.
package ranking

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kjd1374/shopping-sub000/browser"
	"github.com/kjd1374/shopping-sub000/models"
	"github.com/kjd1374/shopping-sub000/scraper"
	"github.com/kjd1374/shopping-sub000/store"
	"github.com/kjd1374/shopping-sub000/webhook"
)

// Run triggers.
const (
	TriggerOnDemand  = "on_demand"
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// Extractor reads signals from a rendered page.
type Extractor interface {
	Extract(page *models.RenderedPage, family models.SiteFamily) (*models.SignalBag, error)
}

// Options tunes a Pipeline.
type Options struct {
	Profile            browser.Profile
	InterCategoryDelay time.Duration
	MaxListings        int

	// SelectorTimeout bounds the wait for the list selector.
	SelectorTimeout time.Duration
}

// Pipeline runs ingestion. At most one run is active per Pipeline.
type Pipeline struct {
	catalog   *Catalog
	browsers  browser.Acquirer
	fetcher   scraper.Fetcher
	extractor Extractor
	store     store.Store
	events    *webhook.Sender
	opts      Options

	running atomic.Bool

	mu   sync.RWMutex
	last *models.IngestionReport

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPipeline wires a Pipeline. events may be nil.
func NewPipeline(
	catalog *Catalog,
	browsers browser.Acquirer,
	fetcher scraper.Fetcher,
	extractor Extractor,
	st store.Store,
	events *webhook.Sender,
	opts Options,
) *Pipeline {
	if opts.MaxListings <= 0 {
		opts.MaxListings = 50
	}
	if opts.SelectorTimeout <= 0 {
		opts.SelectorTimeout = 10 * time.Second
	}
	return &Pipeline{
		catalog:   catalog,
		browsers:  browsers,
		fetcher:   fetcher,
		extractor: extractor,
		store:     st,
		events:    events,
		opts:      opts,
		sleep:     sleepCtx,
	}
}

// Catalog returns the category list the pipeline iterates.
func (p *Pipeline) Catalog() *Catalog { return p.catalog }

// Running reports whether a run is in progress.
func (p *Pipeline) Running() bool { return p.running.Load() }

// LastReport returns the report of the most recent finished run, or nil.
func (p *Pipeline) LastReport() *models.IngestionReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Run ingests the given categories (all when keys is empty).
//
// Per-category failures are recorded in the report and do not fail the run.
// The returned error is non-nil when no run happened (unknown category,
// another run active) or when the run as a whole failed: the browser could
// not start, or every category came back empty, which is reported as
// SITE_STRUCTURE_CHANGED. The report is returned whenever the run started.
func (p *Pipeline) Run(ctx context.Context, trigger string, keys []string) (*models.IngestionReport, error) {
	cats, err := p.catalog.Select(keys)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err)
	}
	if !p.running.CompareAndSwap(false, true) {
		return nil, models.NewScrapeError(models.ErrCodeBusy, "a ranking ingestion run is already in progress", nil)
	}
	defer p.running.Store(false)

	report := &models.IngestionReport{
		RunID:      uuid.NewString(),
		Site:       p.catalog.Site,
		Trigger:    trigger,
		StartedAt:  time.Now(),
		Categories: make([]models.CategoryOutcome, len(cats)),
	}
	for i, cat := range cats {
		report.Categories[i] = models.CategoryOutcome{
			Category:    cat.Key,
			ProductType: p.catalog.PartitionKey(cat.Key),
			State:       models.StateIdle,
		}
	}

	slog.Info("ranking run started",
		"run_id", report.RunID,
		"trigger", trigger,
		"categories", len(cats),
	)

	runErr := browser.WithSession(ctx, p.browsers, p.opts.Profile, func(h browser.Handle) error {
		for i, cat := range cats {
			if i > 0 && p.opts.InterCategoryDelay > 0 {
				if err := p.sleep(ctx, p.opts.InterCategoryDelay); err != nil {
					failRemaining(report.Categories[i:], models.StateIdle,
						models.NewScrapeError(models.ErrCodeTimeout, "run cancelled before category started", err))
					return nil
				}
			}
			p.runCategory(ctx, h, cat, &report.Categories[i])
		}
		return nil
	})
	if runErr != nil {
		failRemaining(report.Categories, models.StateLaunching, runErr)
		report.Error = models.AsScrapeError(runErr).ToDetail()
	} else if allEmpty(report.Categories) {
		report.Error = &models.ErrorDetail{
			Code:    models.ErrCodeSiteChanged,
			Message: "every category of " + p.catalog.Site + " returned zero listings",
		}
	}
	report.FinishedAt = time.Now()

	p.finish(report)

	if report.Error != nil {
		return report, models.NewScrapeError(report.Error.Code, report.Error.Message, runErr)
	}
	return report, nil
}

// runCategory drives one category through its states. It never returns an
// error; the outcome records where it stopped.
func (p *Pipeline) runCategory(ctx context.Context, h browser.Handle, cat Category, out *models.CategoryOutcome) {
	t := &tracker{out: out}
	log := slog.With("category", cat.Key, "product_type", out.ProductType)

	// ── Navigating ───────────────────────────────────────────────────
	t.enter(models.StateNavigating)
	page, err := p.fetcher.Fetch(ctx, h, cat.URL, scraper.FetchOptions{
		Wait:    scraper.SelectorPresent(p.catalog.ListSelector, p.opts.SelectorTimeout),
		Stealth: true,
	})
	if err != nil {
		t.fail(err)
		log.Warn("category navigation failed", "error", err)
		return
	}

	// ── Extracting ───────────────────────────────────────────────────
	t.enter(models.StateExtracting)
	bag, err := p.extractor.Extract(page, models.FamilyRankingList)
	if err != nil {
		t.fail(err)
		log.Warn("category extraction failed", "error", err)
		return
	}
	listings := toRankedListings(bag.Listings, out.ProductType, p.opts.MaxListings)
	if len(listings) == 0 {
		t.fail(models.NewScrapeError(models.ErrCodeExtraction, "no listing had both a title and a link", nil))
		log.Warn("category yielded no usable listings")
		return
	}

	// ── Persisting ───────────────────────────────────────────────────
	t.enter(models.StatePersisting)
	if err := p.store.ReplacePartition(ctx, out.ProductType, listings); err != nil {
		t.fail(err)
		log.Error("category persistence failed", "error", err)
		return
	}

	out.Listings = len(listings)
	t.enter(models.StateDone)
	log.Info("category ingested", "listings", len(listings))
}

func (p *Pipeline) finish(report *models.IngestionReport) {
	p.mu.Lock()
	p.last = report
	p.mu.Unlock()

	slog.Info("ranking run finished",
		"run_id", report.RunID,
		"succeeded", report.Succeeded(),
		"categories", len(report.Categories),
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)

	if p.events.Enabled() {
		eventType := webhook.EventRankingCompleted
		if report.Succeeded() == 0 {
			eventType = webhook.EventRankingFailed
		}
		p.events.DeliverAsync(webhook.NewEvent(eventType, report.RunID, report))
	}
}

// tracker records state transitions of one category.
type tracker struct {
	out *models.CategoryOutcome
}

func (t *tracker) enter(state string) {
	t.out.State = state
}

func (t *tracker) fail(err error) {
	t.out.FailedIn = t.out.State
	t.out.State = models.StateFailed
	t.out.Error = models.AsScrapeError(err).ToDetail()
}

func failRemaining(outs []models.CategoryOutcome, stage string, err error) {
	detail := models.AsScrapeError(err).ToDetail()
	for i := range outs {
		if outs[i].State == models.StateDone || outs[i].State == models.StateFailed {
			continue
		}
		outs[i].State = models.StateFailed
		outs[i].FailedIn = stage
		outs[i].Error = detail
	}
}

// allEmpty reports whether every category reached extraction and found
// nothing there.
func allEmpty(outs []models.CategoryOutcome) bool {
	if len(outs) == 0 {
		return false
	}
	for _, o := range outs {
		if o.FailedIn != models.StateExtracting || o.Error == nil || o.Error.Code != models.ErrCodeExtraction {
			return false
		}
	}
	return true
}

// toRankedListings keeps listings with a title and link, ordered by rank
// and capped at limit. Ranks are taken as extracted.
func toRankedListings(in []models.ListingSignal, productType string, limit int) []models.RankedListing {
	sorted := append([]models.ListingSignal(nil), in...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	out := make([]models.RankedListing, 0, min(len(sorted), limit))
	seen := make(map[string]bool, len(sorted))
	for _, l := range sorted {
		if len(out) == limit {
			break
		}
		if l.Title == "" || l.OriginURL == "" || l.Rank < 1 || seen[l.OriginURL] {
			continue
		}
		seen[l.OriginURL] = true
		out = append(out, models.RankedListing{
			Rank:        l.Rank,
			Title:       l.Title,
			Brand:       l.Brand,
			Image:       l.Image,
			OriginURL:   l.OriginURL,
			CategoryKey: productType,
		})
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
