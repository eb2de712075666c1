// Package preview turns customer-submitted product links into preview
// cards. Every URL is an isolated, time-bounded branch; the result slice
// always mirrors the input order.
package preview

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/kjd1374/shopping-sub000/browser"
	"github.com/kjd1374/shopping-sub000/cache"
	"github.com/kjd1374/shopping-sub000/models"
	"github.com/kjd1374/shopping-sub000/reconcile"
	"github.com/kjd1374/shopping-sub000/scraper"
)

// Fetch modes.
const (
	ModeAuto    = "auto"
	ModeHTTP    = "http"
	ModeBrowser = "browser"
)

// Extractor reads signals from a rendered page.
type Extractor interface {
	Extract(page *models.RenderedPage, family models.SiteFamily) (*models.SignalBag, error)
}

// Options tunes a Pipeline.
type Options struct {
	// Concurrency bounds branches running at once.
	Concurrency int

	// Timeout bounds each branch, fetch and extraction together.
	Timeout time.Duration

	// FetchMode is ModeAuto, ModeHTTP or ModeBrowser.
	FetchMode string

	Profile browser.Profile
}

// Pipeline previews URLs. It is safe for concurrent use.
type Pipeline struct {
	browsers  browser.Acquirer
	fetcher   scraper.Fetcher
	static    scraper.StaticFetcher
	hosts     *scraper.BrowserHosts
	extractor Extractor
	cache     *cache.Cache
	opts      Options
}

// New wires a Pipeline. static, hosts and c may be nil; without a static
// fetcher every URL goes through the browser.
func New(
	browsers browser.Acquirer,
	fetcher scraper.Fetcher,
	static scraper.StaticFetcher,
	hosts *scraper.BrowserHosts,
	extractor Extractor,
	c *cache.Cache,
	opts Options,
) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	switch opts.FetchMode {
	case ModeHTTP, ModeBrowser:
	default:
		opts.FetchMode = ModeAuto
	}
	if static == nil {
		opts.FetchMode = ModeBrowser
	}
	return &Pipeline{
		browsers:  browsers,
		fetcher:   fetcher,
		static:    static,
		hosts:     hosts,
		extractor: extractor,
		cache:     c,
		opts:      opts,
	}
}

// PreviewMany previews every URL without consulting the cache.
func (p *Pipeline) PreviewMany(ctx context.Context, urls []string) []models.PreviewResult {
	return p.PreviewManyMaxAge(ctx, urls, 0)
}

// PreviewManyMaxAge returns one result per URL in input order. A cached
// preview younger than maxAge is reused. At most one browser is launched
// per call, on the first branch that needs it, and it is released before
// returning.
func (p *Pipeline) PreviewManyMaxAge(ctx context.Context, urls []string, maxAge time.Duration) []models.PreviewResult {
	results := make([]models.PreviewResult, len(urls))
	if len(urls) == 0 {
		return results
	}

	lazy := browser.NewLazy(ctx, p.browsers, p.opts.Profile)
	defer lazy.Release()

	sem := make(chan struct{}, p.opts.Concurrency)
	var wg sync.WaitGroup
	for i, raw := range urls {
		wg.Add(1)
		go func(i int, raw string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = models.FailedPreview(raw,
					models.NewScrapeError(models.ErrCodeTimeout, "preview cancelled before start", ctx.Err()))
				return
			}
			results[i] = p.previewOne(ctx, lazy, raw, maxAge)
		}(i, raw)
	}
	wg.Wait()
	return results
}

// previewOne runs one branch. Work continues in its own goroutine so a
// fetch that ignores cancellation still cannot hold the branch past its
// deadline.
func (p *Pipeline) previewOne(ctx context.Context, lazy *browser.Lazy, raw string, maxAge time.Duration) models.PreviewResult {
	if err := validateURL(raw); err != nil {
		return models.FailedPreview(raw, err)
	}

	key := cache.Key(raw)
	if p.cache != nil {
		if hit, ok := p.cache.Get(key, maxAge); ok {
			hit.URL = raw
			return hit
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	done := make(chan models.PreviewResult, 1)
	go func() {
		done <- p.build(ctx, lazy, raw)
	}()

	var res models.PreviewResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = models.FailedPreview(raw,
			models.NewScrapeError(models.ErrCodeTimeout, "preview timed out after "+p.opts.Timeout.String(), ctx.Err()))
	}

	if res.Error != nil {
		slog.Warn("preview failed", "url", raw, "code", res.Error.Code, "error", res.Error.Message)
		return res
	}
	if p.cache != nil {
		p.cache.Set(key, res)
	}
	return res
}

func (p *Pipeline) build(ctx context.Context, lazy *browser.Lazy, raw string) models.PreviewResult {
	page, err := p.fetch(ctx, lazy, raw)
	if err != nil {
		return models.FailedPreview(raw, err)
	}

	bag, err := p.extractor.Extract(page, models.FamilyProductDetail)
	if err != nil {
		return models.FailedPreview(raw, err)
	}

	product, err := reconcile.Deterministic(bag)
	switch {
	case err == nil:
		return models.PreviewResult{
			URL:           raw,
			Title:         product.Name,
			Brand:         product.Brand,
			Price:         product.Price,
			OriginalPrice: product.OriginalPrice,
			Images:        product.Images,
		}
	case models.HasCode(err, models.ErrCodePriceMissing) && bag.Title != "":
		return models.PreviewResult{
			URL:    raw,
			Title:  bag.Title,
			Brand:  bag.Brand,
			Images: nonNil(bag.Images),
		}
	default:
		return models.FailedPreview(raw, err)
	}
}

// Signals fetches one product page and returns its raw signals, for callers
// that reconcile the record themselves. It uses its own browser lifetime
// and the branch timeout.
func (p *Pipeline) Signals(ctx context.Context, raw string) (*models.SignalBag, error) {
	if err := validateURL(raw); err != nil {
		return nil, err
	}

	lazy := browser.NewLazy(ctx, p.browsers, p.opts.Profile)
	defer lazy.Release()

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	page, err := p.fetch(ctx, lazy, raw)
	if err != nil {
		return nil, err
	}
	return p.extractor.Extract(page, models.FamilyProductDetail)
}

// fetch picks the static or browser path. In auto mode a static page that
// turns out to be a JS shell or a challenge is retried once in the browser,
// and the host is remembered as browser-only.
func (p *Pipeline) fetch(ctx context.Context, lazy *browser.Lazy, raw string) (*models.RenderedPage, error) {
	switch p.opts.FetchMode {
	case ModeHTTP:
		return p.static.FetchStatic(ctx, raw)
	case ModeBrowser:
		return p.fetchBrowser(ctx, lazy, raw)
	}

	if p.hosts != nil && p.hosts.Needs(raw) {
		return p.fetchBrowser(ctx, lazy, raw)
	}

	page, err := p.static.FetchStatic(ctx, raw)
	switch {
	case err == nil && !scraper.NeedsBrowser(page.HTML):
		return page, nil
	case err != nil && !models.HasCode(err, models.ErrCodeChallenge):
		return nil, err
	}

	slog.Debug("static fetch insufficient, escalating to browser", "url", raw, "error", err)
	if p.hosts != nil {
		p.hosts.Mark(raw)
	}
	return p.fetchBrowser(ctx, lazy, raw)
}

func (p *Pipeline) fetchBrowser(ctx context.Context, lazy *browser.Lazy, raw string) (*models.RenderedPage, error) {
	h, err := lazy.Get()
	if err != nil {
		return nil, err
	}
	return p.fetcher.Fetch(ctx, h, raw, scraper.FetchOptions{
		Wait:           scraper.DOMReady(),
		ScrollToBottom: true,
		Stealth:        true,
	})
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.NewScrapeError(models.ErrCodeInvalidInput, "not an http(s) url: "+raw, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
