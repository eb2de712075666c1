package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kjd1374/shopping-sub000/browser"
	"github.com/kjd1374/shopping-sub000/cache"
	"github.com/kjd1374/shopping-sub000/config"
	"github.com/kjd1374/shopping-sub000/extractor"
	"github.com/kjd1374/shopping-sub000/llm"
	"github.com/kjd1374/shopping-sub000/preview"
	"github.com/kjd1374/shopping-sub000/ranking"
	"github.com/kjd1374/shopping-sub000/reconcile"
	"github.com/kjd1374/shopping-sub000/scraper"
	"github.com/kjd1374/shopping-sub000/store"
	"github.com/kjd1374/shopping-sub000/webhook"
)

// browserHostTTL is how long a host stays on the browser-only list.
const browserHostTTL = 24 * time.Hour

// services is everything the commands run against.
type services struct {
	browsers   *browser.Manager
	store      store.Store
	rankings   *ranking.Pipeline
	previews   *preview.Pipeline
	reconciler *reconcile.Reconciler

	closers []func()
}

// close releases resources in reverse order of creation.
func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStore selects Postgres when a DSN is configured, else the in-memory store.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	if cfg.DSN == "" {
		slog.Warn("no database configured, rankings are kept in memory")
		return store.NewMemory(), func() {}, nil
	}

	pg, err := store.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			slog.Warn("closing database", "error", err)
		}
	}, nil
}

func newServices(ctx context.Context, cfg *config.Config) (*services, error) {
	s := &services{}

	st, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s.store = st
	s.closers = append(s.closers, closeStore)

	catalog, err := ranking.LoadCatalog(cfg.Ranking.CatalogFile)
	if err != nil {
		s.close()
		return nil, err
	}
	if cfg.Ranking.Site != "" && cfg.Ranking.Site != catalog.Site {
		s.close()
		return nil, fmt.Errorf("catalog site %q does not match configured site %q", catalog.Site, cfg.Ranking.Site)
	}

	profile := browser.ParseProfile(cfg.Browser.Profile)
	s.browsers = browser.NewManager(cfg.Browser)
	fetcher := scraper.NewBrowserFetcher(cfg.Scraper)
	ex := extractor.New(extractor.Options{MaxTextRunes: cfg.Scraper.MaxTextRunes})

	s.rankings = ranking.NewPipeline(
		catalog,
		s.browsers,
		fetcher,
		ex,
		st,
		webhook.NewSender(cfg.Webhook.URL, cfg.Webhook.Secret),
		ranking.Options{
			Profile:            profile,
			InterCategoryDelay: cfg.Ranking.InterCategoryDelay,
			MaxListings:        cfg.Ranking.MaxListings,
		},
	)

	hosts := scraper.NewBrowserHosts(browserHostTTL)
	s.closers = append(s.closers, hosts.Stop)
	previewCache := cache.New(cfg.Cache.MaxEntries)
	s.closers = append(s.closers, previewCache.Stop)

	s.previews = preview.New(
		s.browsers,
		fetcher,
		scraper.NewHTTPFetcher(cfg.Scraper, cfg.Browser.DefaultProxy),
		hosts,
		ex,
		previewCache,
		preview.Options{
			Concurrency: cfg.Preview.Concurrency,
			Timeout:     cfg.Preview.Timeout,
			FetchMode:   cfg.Preview.FetchMode,
			Profile:     profile,
		},
	)

	model := llm.NewClient(cfg.LLM, nil)
	if !model.Available() {
		slog.Warn("no model credential configured, product parsing will fail with AI_UNAVAILABLE")
	}
	s.reconciler = reconcile.New(model)

	return s, nil
}
