package browser

import (
	"context"
	"sync"

	"github.com/kjd1374/shopping-sub000/models"
)

// Lazy defers the browser launch until the first caller needs a tab, then
// shares that one process among the job's concurrent branches.
type Lazy struct {
	ctx     context.Context
	a       Acquirer
	profile Profile

	once sync.Once
	mu   sync.Mutex
	h    Handle
	err  error
}

// NewLazy binds a lazily acquired session to the job context ctx.
func NewLazy(ctx context.Context, a Acquirer, profile Profile) *Lazy {
	return &Lazy{ctx: ctx, a: a, profile: profile}
}

// Get returns the shared handle, launching the browser on first use.
// A failed launch is remembered; every later call gets the same error.
func (l *Lazy) Get() (Handle, error) {
	l.once.Do(func() {
		h, err := l.a.Acquire(l.ctx, l.profile)
		l.mu.Lock()
		l.h, l.err = h, err
		l.mu.Unlock()
	})
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.h == nil && l.err == nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserLaunch, "browser session already released", nil)
	}
	return l.h, l.err
}

// Release frees the browser if one was launched.
func (l *Lazy) Release() {
	// Block any launch that has not started yet.
	l.once.Do(func() {})

	l.mu.Lock()
	h := l.h
	l.h = nil
	l.mu.Unlock()
	if h != nil {
		l.a.Release(h)
	}
}
