package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/kjd1374/shopping-sub000/browser"
	"github.com/kjd1374/shopping-sub000/config"
	"github.com/kjd1374/shopping-sub000/models"
	"github.com/ysmood/gson"
)

// BrowserFetcher renders pages in tabs of a job-owned browser.
type BrowserFetcher struct {
	cfg config.ScraperConfig
}

// NewBrowserFetcher creates a BrowserFetcher.
func NewBrowserFetcher(cfg config.ScraperConfig) *BrowserFetcher {
	return &BrowserFetcher{cfg: cfg}
}

// Fetch opens a tab, navigates to rawURL and returns the rendered HTML.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Timeout guard          – hard deadline on navigation + wait + capture
//  2. Open tab               – one tab per fetch, never shared
//  3. DEFER: close tab       – runs on every exit path
//  4. Stealth + identity     – UA, Accept-Language, Referer (before navigation!)
//  5. Hijack mount           – block configured resource types (before navigation!)
//  6. Wait listener setup    – MUST be registered before Navigate
//  7. Navigate
//  8. Wait                   – per WaitPolicy
//  9. Status + scroll/settle
//  10. Capture               – page.HTML() + final URL, challenge detection
func (f *BrowserFetcher) Fetch(ctx context.Context, h browser.Handle, rawURL string, opts FetchOptions) (*models.RenderedPage, error) {
	// ── 1. Timeout guard ──────────────────────────────────────────────
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = f.cfg.NavigationTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// ── 2. Open tab ───────────────────────────────────────────────────
	page, err := h.NewTab(ctx)
	if err != nil {
		return nil, err
	}

	// ── 3. Close tab on every path ───────────────────────────────────
	// page is not bound to ctx, so Close still works past the deadline.
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			slog.Debug("tab close failed", "session", h.ID(), "error", closeErr)
		}
	}()

	p := page.Context(ctx)

	// ── 4. Stealth + identity ─────────────────────────────────────────
	if opts.Stealth {
		if _, evalErr := p.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}
	if f.cfg.UserAgent != "" {
		if uaErr := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      f.cfg.UserAgent,
			AcceptLanguage: f.cfg.AcceptLanguage,
		}); uaErr != nil {
			slog.Debug("user agent override failed", "session", h.ID(), "error", uaErr)
		}
	}
	if hdrErr := (proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{
			"Referer":         refererFor(rawURL, opts.Referer),
			"Accept-Language": f.cfg.AcceptLanguage,
		}),
	}).Call(p); hdrErr != nil {
		slog.Debug("extra headers not applied", "session", h.ID(), "error", hdrErr)
	}

	// ── 5. Hijack ─────────────────────────────────────────────────────
	// Mounted on the unbound page so Stop works after the deadline.
	blocked := blockedTypes(f.cfg.BlockedResourceTypes, opts)
	router := setupHijack(page, blocked, f.cfg.BlockAds)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 6. Wait listener setup ────────────────────────────────────────
	// WaitRequestIdle uses the Fetch domain, which conflicts with an active
	// hijack router; with a router the idle wait degrades to DOM stability.
	var waitFn func()
	switch opts.Wait.Kind {
	case WaitNetworkIdle:
		if router == nil {
			waitFn = p.WaitRequestIdle(500*time.Millisecond, nil, nil, nil)
		}
	case WaitDOMReady:
		waitFn = p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	}

	// ── 7. Navigate ───────────────────────────────────────────────────
	if navErr := p.Navigate(rawURL); navErr != nil {
		return nil, categorizeError(navErr, "navigation to "+rawURL+" failed")
	}

	// ── 8. Wait ───────────────────────────────────────────────────────
	switch {
	case waitFn != nil:
		waitFn()
	case opts.Wait.Kind == WaitSelector:
		waitForSelector(ctx, p, opts.Wait)
	default:
		if stableErr := p.WaitDOMStable(500*time.Millisecond, 0); stableErr != nil {
			slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
				"error", stableErr,
			)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, categorizeError(err, "page did not become ready in time")
	}

	// ── 9. Status + lazy content ─────────────────────────────────────
	statusCode := navigationStatus(p)
	if statusCode >= 300 {
		return nil, models.NewScrapeError(
			models.ErrCodeNavigation,
			fmt.Sprintf("HTTP %d for %s", statusCode, rawURL),
			nil,
		)
	}
	if opts.ScrollToBottom {
		settle := opts.SettleDelay
		if settle <= 0 {
			settle = f.cfg.SettleDelay
		}
		if scrollErr := scrollToBottom(ctx, p, settle); scrollErr != nil {
			return nil, categorizeError(scrollErr, "scroll/settle interrupted")
		}
	}

	// ── 10. Capture ───────────────────────────────────────────────────
	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeError(htmlErr, "failed to extract page HTML")
	}
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = rawURL
	}

	if marker, hit := DetectChallenge(rawHTML); hit {
		return nil, models.NewScrapeError(
			models.ErrCodeChallenge,
			"anti-bot challenge page detected ("+marker+")",
			nil,
		)
	}

	return &models.RenderedPage{
		HTML:       rawHTML,
		FinalURL:   finalURL,
		StatusCode: statusCode,
	}, nil
}

// waitForSelector waits for the selector within the policy timeout. A missing
// selector is not an error here: the extractor decides whether the DOM is usable.
func waitForSelector(ctx context.Context, p *rod.Page, w WaitPolicy) {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := p.Context(sctx).Element(w.Selector); err != nil {
		slog.Debug("wait selector not found, proceeding with current DOM",
			"selector", w.Selector,
			"error", err,
		)
	}
}

// navigationStatus reads the main document status without CDP event listeners.
// Returns 0 when the browser does not expose it.
func navigationStatus(p *rod.Page) int {
	res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// scrollToBottom scrolls one viewport at a time until the bottom is reached,
// then waits settle for lazy-loaded images.
func scrollToBottom(ctx context.Context, p *rod.Page, settle time.Duration) error {
	const maxSteps = 30

	for i := 0; i < maxSteps; i++ {
		res, err := p.Eval(`() => {
			window.scrollBy(0, window.innerHeight);
			return Math.ceil(window.scrollY + window.innerHeight) >= document.body.scrollHeight;
		}`)
		if err != nil {
			return fmt.Errorf("scroll step %d failed: %w", i, err)
		}
		if res.Value.Bool() {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(150 * time.Millisecond):
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(settle):
		return nil
	}
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		if v == "" {
			continue
		}
		m[k] = gson.New(v)
	}
	return m
}

// refererFor returns the explicit referer or a search-engine referer for the
// target host.
func refererFor(rawURL, explicit string) string {
	if explicit != "" {
		return explicit
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
}

// categorizeError wraps raw errors into typed ScrapeErrors so callers can
// tell timeouts from other navigation failures.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
