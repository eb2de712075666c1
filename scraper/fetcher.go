package scraper

import (
	"context"
	"time"

	"github.com/kjd1374/shopping-sub000/browser"
	"github.com/kjd1374/shopping-sub000/models"
)

// WaitKind selects how navigation readiness is detected.
type WaitKind int

const (
	// WaitDOMReady returns once DOMContentLoaded has fired.
	WaitDOMReady WaitKind = iota

	// WaitNetworkIdle returns once the page stops issuing requests.
	WaitNetworkIdle

	// WaitSelector returns once a CSS selector matches, or after its timeout.
	WaitSelector
)

// WaitPolicy is the readiness condition for a navigation.
type WaitPolicy struct {
	Kind     WaitKind
	Selector string
	Timeout  time.Duration
}

// DOMReady waits for DOMContentLoaded.
func DOMReady() WaitPolicy { return WaitPolicy{Kind: WaitDOMReady} }

// NetworkIdle waits for network quiescence.
func NetworkIdle() WaitPolicy { return WaitPolicy{Kind: WaitNetworkIdle} }

// SelectorPresent waits up to timeout for selector to appear.
func SelectorPresent(selector string, timeout time.Duration) WaitPolicy {
	return WaitPolicy{Kind: WaitSelector, Selector: selector, Timeout: timeout}
}

func (w WaitPolicy) String() string {
	switch w.Kind {
	case WaitNetworkIdle:
		return "networkIdle"
	case WaitSelector:
		return "selectorPresent(" + w.Selector + ")"
	default:
		return "domReady"
	}
}

// FetchOptions tunes one navigation.
type FetchOptions struct {
	Wait WaitPolicy

	// BlockedResources overrides the configured blocked resource types.
	BlockedResources []string

	// AllowImages lets image requests through. Only set it when image URLs
	// cannot be read from the DOM without loading them.
	AllowImages bool

	// ScrollToBottom scrolls the page and waits SettleDelay so lazy images
	// receive their real src.
	ScrollToBottom bool
	SettleDelay    time.Duration

	// Timeout overrides the configured navigation timeout.
	Timeout time.Duration

	// Referer is sent with the navigation. Defaults to a search referer.
	Referer string

	// Stealth injects evasion scripts before navigation.
	Stealth bool
}

// Fetcher navigates a tab of a job's browser and returns the rendered page.
type Fetcher interface {
	Fetch(ctx context.Context, h browser.Handle, rawURL string, opts FetchOptions) (*models.RenderedPage, error)
}

// StaticFetcher retrieves a page without a browser.
type StaticFetcher interface {
	FetchStatic(ctx context.Context, rawURL string) (*models.RenderedPage, error)
}
