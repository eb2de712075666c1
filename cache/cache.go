package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/kjd1374/shopping-sub000/models"
)

// entry holds a cached preview with its creation timestamp.
type entry struct {
	result    models.PreviewResult
	createdAt time.Time
}

// Cache is a simple in-memory cache for successful previews.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a new Cache with the given maximum number of entries.
// A background goroutine runs every 5 minutes to evict entries older
// than 1 hour.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go c.cleanupLoop()
	return c
}

// Key generates a cache key from a product URL. Scheme and host are
// case-insensitive; the fragment never reaches the server and is dropped.
func Key(rawURL string) string {
	u := strings.TrimSpace(rawURL)
	if i := strings.IndexByte(u, '#'); i >= 0 {
		u = u[:i]
	}
	if i := strings.Index(u, "://"); i >= 0 {
		rest := u[i+3:]
		host, path := rest, ""
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			host, path = rest[:j], rest[j:]
		}
		u = strings.ToLower(u[:i+3]+host) + path
	}
	h := sha256.Sum256([]byte(u))
	return hex.EncodeToString(h[:])
}

// Get retrieves a cached preview if it exists and is younger than maxAge.
// If maxAge <= 0, no cache lookup is performed.
func (c *Cache) Get(key string, maxAge time.Duration) (models.PreviewResult, bool) {
	if maxAge <= 0 {
		return models.PreviewResult{}, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return models.PreviewResult{}, false
	}
	if c.now().Sub(e.createdAt) > maxAge {
		return models.PreviewResult{}, false
	}
	return e.result, true
}

// Set stores a preview. Failed previews are never cached. If the cache is
// at capacity, a random entry is evicted to make room.
func (c *Cache) Set(key string, result models.PreviewResult) {
	if result.Error != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		result:    result,
		createdAt: c.now(),
	}
}

// Len returns the number of cached previews.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stop ends the cleanup goroutine.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// cleanupLoop evicts entries older than 1 hour every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictBefore(c.now().Add(-1 * time.Hour))
		}
	}
}

func (c *Cache) evictBefore(cutoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
