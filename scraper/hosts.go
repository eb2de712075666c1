package scraper

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

type hostEntry struct {
	expiresAt time.Time
}

// BrowserHosts remembers hosts whose pages could not be used without a
// browser, so later fetches skip the static attempt. Entries expire after
// the TTL and are pruned periodically.
type BrowserHosts struct {
	store sync.Map // host (string) -> *hostEntry
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
}

// NewBrowserHosts creates a BrowserHosts and starts its pruning goroutine.
func NewBrowserHosts(ttl time.Duration) *BrowserHosts {
	bh := &BrowserHosts{
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go bh.cleanupLoop()
	return bh
}

// Needs reports whether rawURL's host was recently marked as browser-only.
func (bh *BrowserHosts) Needs(rawURL string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	val, ok := bh.store.Load(host)
	if !ok {
		return false
	}
	if time.Now().After(val.(*hostEntry).expiresAt) {
		bh.store.Delete(host)
		return false
	}
	return true
}

// Mark records that rawURL's host needs a browser.
func (bh *BrowserHosts) Mark(rawURL string) {
	if host := hostOf(rawURL); host != "" {
		bh.store.Store(host, &hostEntry{expiresAt: time.Now().Add(bh.ttl)})
	}
}

// Stop terminates the pruning goroutine.
func (bh *BrowserHosts) Stop() {
	bh.once.Do(func() { close(bh.done) })
}

func (bh *BrowserHosts) cleanupLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-bh.done:
			return
		case <-ticker.C:
			now := time.Now()
			bh.store.Range(func(key, value any) bool {
				if now.After(value.(*hostEntry).expiresAt) {
					bh.store.Delete(key)
				}
				return true
			})
		}
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
