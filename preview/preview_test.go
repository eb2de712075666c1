package preview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/kjd1374/shopping-sub000/browser"
	"github.com/kjd1374/shopping-sub000/cache"
	"github.com/kjd1374/shopping-sub000/config"
	"github.com/kjd1374/shopping-sub000/extractor"
	"github.com/kjd1374/shopping-sub000/models"
	"github.com/kjd1374/shopping-sub000/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct{}

func (fakeHandle) ID() string { return "fake" }

func (fakeHandle) NewTab(context.Context) (*rod.Page, error) {
	return nil, errors.New("no tabs in tests")
}

type spyAcquirer struct {
	mu       sync.Mutex
	acquired int
	released int
}

func (s *spyAcquirer) Acquire(context.Context, browser.Profile) (browser.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquired++
	return fakeHandle{}, nil
}

func (s *spyAcquirer) Release(browser.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
}

// fakeFetcher serves canned pages for both the browser and static paths.
// URLs listed in hang never return on their own.
type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	hang     map[string]bool
	release  chan struct{}
	browsed  []string
	fetchErr map[string]error
}

func (f *fakeFetcher) serve(rawURL string) (*models.RenderedPage, error) {
	if f.hang[rawURL] {
		<-f.release
	}
	if err := f.fetchErr[rawURL]; err != nil {
		return nil, err
	}
	html, ok := f.pages[rawURL]
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "HTTP 404 for "+rawURL, nil)
	}
	return &models.RenderedPage{HTML: html, FinalURL: rawURL, StatusCode: 200}, nil
}

func (f *fakeFetcher) Fetch(_ context.Context, _ browser.Handle, rawURL string, _ scraper.FetchOptions) (*models.RenderedPage, error) {
	f.mu.Lock()
	f.browsed = append(f.browsed, rawURL)
	f.mu.Unlock()
	return f.serve(rawURL)
}

func (f *fakeFetcher) FetchStatic(_ context.Context, rawURL string) (*models.RenderedPage, error) {
	return f.serve(rawURL)
}

func productPage(title string, price int) string {
	filler := strings.Repeat("피부 결을 정돈하고 촉촉하게 마무리해 주는 데일리 제품입니다. ", 8)
	return fmt.Sprintf(`<html><head>
<meta property="og:title" content="%s">
<meta property="og:image" content="https://img.test/%d.jpg">
<meta property="product:price:amount" content="%d">
</head><body><main><h1>%s</h1><p>%s</p></main></body></html>`, title, price, price, title, filler)
}

func newTestPipeline(acq browser.Acquirer, f *fakeFetcher, mode string, timeout time.Duration) *Pipeline {
	return New(acq, f, f, nil, extractor.New(extractor.Options{}), nil, Options{
		Concurrency: 3,
		Timeout:     timeout,
		FetchMode:   mode,
	})
}

func TestPreviewMany_OneTimeoutOfFive(t *testing.T) {
	urls := []string{
		"https://shop.test/1", "https://shop.test/2", "https://shop.test/slow",
		"https://shop.test/4", "https://shop.test/5",
	}
	f := &fakeFetcher{
		pages:   map[string]string{},
		hang:    map[string]bool{"https://shop.test/slow": true},
		release: make(chan struct{}),
	}
	defer close(f.release)
	for i, u := range urls {
		f.pages[u] = productPage(fmt.Sprintf("상품 %d", i+1), 10000*(i+1))
	}
	acq := &spyAcquirer{}
	p := newTestPipeline(acq, f, ModeBrowser, 150*time.Millisecond)

	start := time.Now()
	results := p.PreviewMany(context.Background(), urls)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, urls[i], r.URL)
		if i == 2 {
			require.NotNil(t, r.Error)
			assert.Equal(t, models.ErrCodeTimeout, r.Error.Code)
			assert.Equal(t, models.PreviewFailedTitle, r.Title)
			assert.Empty(t, r.Images)
			continue
		}
		assert.Nil(t, r.Error, urls[i])
		assert.Equal(t, fmt.Sprintf("상품 %d", i+1), r.Title)
		assert.Equal(t, float64(10000*(i+1)), r.Price)
	}

	assert.Equal(t, 1, acq.acquired)
	assert.Equal(t, 1, acq.released)
}

func TestPreviewMany_HTTP500IsolatedPerURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/b" {
			http.Error(w, "internal", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, productPage("독도 토너", 19000))
	}))
	defer srv.Close()

	static := scraper.NewHTTPFetcher(config.ScraperConfig{
		NavigationTimeout: 5 * time.Second,
		UserAgent:         "test-agent",
	}, "")
	acq := &spyAcquirer{}
	p := New(acq, &fakeFetcher{}, static, nil, extractor.New(extractor.Options{}), nil, Options{FetchMode: ModeHTTP})

	results := p.PreviewMany(context.Background(), []string{srv.URL + "/a", srv.URL + "/b"})
	require.Len(t, results, 2)

	assert.Equal(t, srv.URL+"/a", results[0].URL)
	assert.Equal(t, "독도 토너", results[0].Title)
	assert.Equal(t, []string{"https://img.test/19000.jpg"}, results[0].Images)
	assert.Nil(t, results[0].Error)

	assert.Equal(t, srv.URL+"/b", results[1].URL)
	assert.Equal(t, models.PreviewFailedTitle, results[1].Title)
	assert.Equal(t, []string{}, results[1].Images)
	require.NotNil(t, results[1].Error)
	assert.Equal(t, models.ErrCodeNavigation, results[1].Error.Code)

	assert.Equal(t, 0, acq.acquired, "http mode never launches a browser")
}

func TestPreviewMany_AutoEscalatesShellPages(t *testing.T) {
	shell := `<html><body><div id="root"></div><script src="/app.js"></script></body></html>`
	f := &fakeFetcher{pages: map[string]string{"https://spa.test/p/1": shell}}
	acq := &spyAcquirer{}
	hosts := scraper.NewBrowserHosts(time.Hour)
	defer hosts.Stop()

	browserPages := &fakeFetcher{pages: map[string]string{"https://spa.test/p/1": productPage("세럼", 25000)}}
	p := New(acq, browserPages, f, hosts, extractor.New(extractor.Options{}), nil, Options{FetchMode: ModeAuto})

	results := p.PreviewMany(context.Background(), []string{"https://spa.test/p/1"})
	require.Nil(t, results[0].Error)
	assert.Equal(t, "세럼", results[0].Title)
	assert.Equal(t, []string{"https://spa.test/p/1"}, browserPages.browsed)
	assert.True(t, hosts.Needs("https://spa.test/p/2"))
	assert.Equal(t, 1, acq.released)
}

func TestPreviewMany_AutoStaysStaticForServerPages(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://shop.test/ok": productPage("크림", 30000)}}
	acq := &spyAcquirer{}
	p := New(acq, f, f, nil, extractor.New(extractor.Options{}), nil, Options{FetchMode: ModeAuto})

	results := p.PreviewMany(context.Background(), []string{"https://shop.test/ok"})
	require.Nil(t, results[0].Error)
	assert.Empty(t, f.browsed)
	assert.Equal(t, 0, acq.acquired)
}

func TestPreviewMany_InvalidURL(t *testing.T) {
	p := newTestPipeline(&spyAcquirer{}, &fakeFetcher{}, ModeBrowser, time.Second)

	results := p.PreviewMany(context.Background(), []string{"ftp://shop.test/x", "not a url"})
	require.Len(t, results, 2)
	for _, r := range results {
		require.NotNil(t, r.Error)
		assert.Equal(t, models.ErrCodeInvalidInput, r.Error.Code)
	}
}

func TestPreviewMany_PriceMissingStillPreviews(t *testing.T) {
	html := `<html><head><meta property="og:title" content="가격 문의 상품"></head><body><h1>가격 문의 상품</h1></body></html>`
	f := &fakeFetcher{pages: map[string]string{"https://shop.test/np": html}}
	p := newTestPipeline(&spyAcquirer{}, f, ModeBrowser, time.Second)

	results := p.PreviewMany(context.Background(), []string{"https://shop.test/np"})
	require.Nil(t, results[0].Error)
	assert.Equal(t, "가격 문의 상품", results[0].Title)
	assert.Zero(t, results[0].Price)
	assert.NotNil(t, results[0].Images)
}

func TestPreviewManyMaxAge_UsesCache(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://shop.test/c": productPage("캐시", 5000)}}
	c := cache.New(10)
	defer c.Stop()
	p := New(&spyAcquirer{}, f, nil, nil, extractor.New(extractor.Options{}), c, Options{})

	first := p.PreviewManyMaxAge(context.Background(), []string{"https://shop.test/c"}, time.Minute)
	require.Nil(t, first[0].Error)

	delete(f.pages, "https://shop.test/c")
	second := p.PreviewManyMaxAge(context.Background(), []string{"https://shop.test/c"}, time.Minute)
	require.Nil(t, second[0].Error)
	assert.Equal(t, "캐시", second[0].Title)
	assert.Len(t, f.browsed, 1)

	third := p.PreviewMany(context.Background(), []string{"https://shop.test/c"})
	assert.NotNil(t, third[0].Error)
}

func TestPreviewMany_Empty(t *testing.T) {
	acq := &spyAcquirer{}
	p := newTestPipeline(acq, &fakeFetcher{}, ModeBrowser, time.Second)
	assert.Empty(t, p.PreviewMany(context.Background(), nil))
	assert.Equal(t, 0, acq.acquired)
}

func TestSignals(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://shop.test/s": productPage("앰플", 42000)}}
	acq := &spyAcquirer{}
	p := newTestPipeline(acq, f, ModeBrowser, time.Second)

	bag, err := p.Signals(context.Background(), "https://shop.test/s")
	require.NoError(t, err)
	assert.Equal(t, "앰플", bag.Title)
	assert.Equal(t, []float64{42000}, bag.PriceCandidates)
	assert.Equal(t, 1, acq.released)

	_, err = p.Signals(context.Background(), "mailto:x@y")
	assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err))

	_, err = p.Signals(context.Background(), "https://shop.test/missing")
	assert.Equal(t, models.ErrCodeNavigation, models.CodeOf(err))
}
