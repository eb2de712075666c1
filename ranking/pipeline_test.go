package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/kjd1374/shopping-sub000/browser"
	"github.com/kjd1374/shopping-sub000/extractor"
	"github.com/kjd1374/shopping-sub000/models"
	"github.com/kjd1374/shopping-sub000/scraper"
	"github.com/kjd1374/shopping-sub000/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct{}

func (fakeHandle) ID() string { return "fake" }

func (fakeHandle) NewTab(context.Context) (*rod.Page, error) {
	return nil, errors.New("no tabs in tests")
}

type spyAcquirer struct {
	mu         sync.Mutex
	acquired   int
	released   int
	acquireErr error
}

func (s *spyAcquirer) Acquire(context.Context, browser.Profile) (browser.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	s.acquired++
	return fakeHandle{}, nil
}

func (s *spyAcquirer) Release(browser.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
}

// fakeFetcher serves canned HTML per URL.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	order  []string
	waits  []scraper.WaitPolicy
	block  chan struct{}
	called chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ browser.Handle, rawURL string, opts scraper.FetchOptions) (*models.RenderedPage, error) {
	f.mu.Lock()
	f.order = append(f.order, rawURL)
	f.waits = append(f.waits, opts.Wait)
	f.mu.Unlock()

	if f.called != nil {
		f.called <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if err := f.errs[rawURL]; err != nil {
		return nil, err
	}
	return &models.RenderedPage{HTML: f.pages[rawURL], FinalURL: rawURL, StatusCode: 200}, nil
}

// failingStore rejects writes to one partition.
type failingStore struct {
	*store.Memory
	reject string
}

func (s *failingStore) ReplacePartition(ctx context.Context, productType string, listings []models.RankedListing) error {
	if productType == s.reject {
		return models.NewScrapeError(models.ErrCodePersistence, "write rejected", errors.New("disk full"))
	}
	return s.Memory.ReplacePartition(ctx, productType, listings)
}

const base = "https://www.oliveyoung.co.kr/store/main/getBestList.do?cat="

func listPage(names ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="cate_prd_list">`)
	for i, n := range names {
		fmt.Fprintf(&b, `<li><div class="prd_info">
<a class="prd_thumb" href="/store/goods/getGoodsDetail.do?goodsNo=%s"><span class="thumb_flag best">%d</span><img src="https://image.oliveyoung.co.kr/%s.jpg"></a>
<span class="tx_brand">브랜드</span><p class="tx_name">%s</p></div></li>`, n, i+1, n, n)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

func testCatalog(keys ...string) *Catalog {
	c := &Catalog{Site: "oliveyoung", ListSelector: "ul.cate_prd_list > li"}
	for _, k := range keys {
		c.Categories = append(c.Categories, Category{Key: k, Label: k, URL: base + k})
	}
	return c
}

func newTestPipeline(cat *Catalog, acq browser.Acquirer, f scraper.Fetcher, st store.Store) *Pipeline {
	p := NewPipeline(cat, acq, f, extractor.New(extractor.Options{}), st, nil, Options{
		InterCategoryDelay: time.Second,
		MaxListings:        2,
	})
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestRun_SequentialCategoriesOneBrowser(t *testing.T) {
	acq := &spyAcquirer{}
	f := &fakeFetcher{pages: map[string]string{
		base + "skincare": listPage("A1", "A2", "A3"),
		base + "makeup":   listPage("B1"),
	}}
	mem := store.NewMemory()
	p := newTestPipeline(testCatalog("skincare", "makeup"), acq, f, mem)

	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	report, err := p.Run(context.Background(), TriggerManual, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, acq.acquired)
	assert.Equal(t, 1, acq.released)
	assert.Equal(t, []string{base + "skincare", base + "makeup"}, f.order)
	assert.Equal(t, []time.Duration{time.Second}, slept)
	assert.Equal(t, scraper.WaitSelector, f.waits[0].Kind)
	assert.Equal(t, "ul.cate_prd_list > li", f.waits[0].Selector)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, TriggerManual, report.Trigger)
	assert.Equal(t, 2, report.Succeeded())
	assert.Equal(t, 2, report.Categories[0].Listings)

	rows, _ := mem.ListPartition(context.Background(), "oliveyoung_skincare")
	require.Len(t, rows, 2)
	assert.Equal(t, "A1", rows[0].Title)
	assert.Equal(t, "https://www.oliveyoung.co.kr/store/goods/getGoodsDetail.do?goodsNo=A1", rows[0].OriginURL)

	assert.Same(t, report, p.LastReport())
	assert.False(t, p.Running())
}

func TestRun_RepeatedRunYieldsSamePartitions(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		base + "skincare": listPage("A1", "A2", "A3"),
		base + "makeup":   listPage("B1"),
	}}
	mem := store.NewMemory()
	p := newTestPipeline(testCatalog("skincare", "makeup"), &spyAcquirer{}, f, mem)
	ctx := context.Background()

	snapshot := func() map[string][]models.RankedListing {
		out := map[string][]models.RankedListing{}
		for _, key := range []string{"oliveyoung_skincare", "oliveyoung_makeup"} {
			rows, err := mem.ListPartition(ctx, key)
			require.NoError(t, err)
			for i := range rows {
				rows[i].CapturedAt = time.Time{}
			}
			out[key] = rows
		}
		return out
	}

	_, err := p.Run(ctx, TriggerManual, nil)
	require.NoError(t, err)
	first := snapshot()

	_, err = p.Run(ctx, TriggerScheduled, nil)
	require.NoError(t, err)
	second := snapshot()

	require.Len(t, first["oliveyoung_skincare"], 2)
	require.Len(t, first["oliveyoung_makeup"], 1)
	assert.Equal(t, first, second)
}

func TestRun_FailedCategoryKeepsPartition(t *testing.T) {
	acq := &spyAcquirer{}
	mem := store.NewMemory()
	ctx := context.Background()
	prior := []models.RankedListing{{Rank: 1, Title: "old", OriginURL: "https://old.test/1"}}
	require.NoError(t, mem.ReplacePartition(ctx, "oliveyoung_skincare", prior))

	f := &fakeFetcher{
		pages: map[string]string{base + "makeup": listPage("B1")},
		errs: map[string]error{
			base + "skincare": models.NewScrapeError(models.ErrCodeTimeout, "navigation timed out", context.DeadlineExceeded),
		},
	}
	p := newTestPipeline(testCatalog("skincare", "makeup"), acq, f, mem)

	report, err := p.Run(ctx, TriggerScheduled, nil)
	require.NoError(t, err)

	sk := report.Categories[0]
	assert.Equal(t, models.StateFailed, sk.State)
	assert.Equal(t, models.StateNavigating, sk.FailedIn)
	assert.Equal(t, models.ErrCodeTimeout, sk.Error.Code)
	assert.Equal(t, models.StateDone, report.Categories[1].State)

	rows, _ := mem.ListPartition(ctx, "oliveyoung_skincare")
	require.Len(t, rows, 1)
	assert.Equal(t, "old", rows[0].Title)
}

func TestRun_PersistenceFailureIsPerCategory(t *testing.T) {
	st := &failingStore{Memory: store.NewMemory(), reject: "oliveyoung_skincare"}
	f := &fakeFetcher{pages: map[string]string{
		base + "skincare": listPage("A1"),
		base + "makeup":   listPage("B1"),
	}}
	p := newTestPipeline(testCatalog("skincare", "makeup"), &spyAcquirer{}, f, st)

	report, err := p.Run(context.Background(), TriggerManual, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatePersisting, report.Categories[0].FailedIn)
	assert.Equal(t, models.ErrCodePersistence, report.Categories[0].Error.Code)
	assert.Equal(t, models.StateDone, report.Categories[1].State)
}

func TestRun_AllEmptyIsSiteChange(t *testing.T) {
	acq := &spyAcquirer{}
	f := &fakeFetcher{pages: map[string]string{
		base + "skincare": "<html><body><div class='new-layout'></div></body></html>",
		base + "makeup":   "<html><body><div class='new-layout'></div></body></html>",
	}}
	p := newTestPipeline(testCatalog("skincare", "makeup"), acq, f, store.NewMemory())

	report, err := p.Run(context.Background(), TriggerManual, nil)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeSiteChanged, models.CodeOf(err))
	require.NotNil(t, report)
	assert.Equal(t, models.ErrCodeSiteChanged, report.Error.Code)
	for _, c := range report.Categories {
		assert.Equal(t, models.StateExtracting, c.FailedIn)
	}
	assert.Equal(t, 1, acq.released)
}

func TestRun_LaunchFailureFailsEveryCategory(t *testing.T) {
	acq := &spyAcquirer{acquireErr: models.NewScrapeError(models.ErrCodeBrowserLaunch, "no chrome", nil)}
	p := newTestPipeline(testCatalog("skincare", "makeup"), acq, &fakeFetcher{}, store.NewMemory())

	report, err := p.Run(context.Background(), TriggerManual, nil)
	assert.Equal(t, models.ErrCodeBrowserLaunch, models.CodeOf(err))
	require.NotNil(t, report)
	for _, c := range report.Categories {
		assert.Equal(t, models.StateFailed, c.State)
		assert.Equal(t, models.StateLaunching, c.FailedIn)
	}
	assert.Equal(t, 0, acq.released)
}

func TestRun_UnknownCategory(t *testing.T) {
	p := newTestPipeline(testCatalog("skincare"), &spyAcquirer{}, &fakeFetcher{}, store.NewMemory())

	_, err := p.Run(context.Background(), TriggerOnDemand, []string{"shoes"})
	assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err))
}

func TestRun_SingleCategory(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{base + "makeup": listPage("B1")}}
	p := newTestPipeline(testCatalog("skincare", "makeup"), &spyAcquirer{}, f, store.NewMemory())

	report, err := p.Run(context.Background(), TriggerOnDemand, []string{"makeup"})
	require.NoError(t, err)
	require.Len(t, report.Categories, 1)
	assert.Equal(t, []string{base + "makeup"}, f.order)
}

func TestRun_RejectsOverlappingRun(t *testing.T) {
	f := &fakeFetcher{
		pages:  map[string]string{base + "skincare": listPage("A1")},
		block:  make(chan struct{}),
		called: make(chan struct{}, 1),
	}
	p := newTestPipeline(testCatalog("skincare"), &spyAcquirer{}, f, store.NewMemory())

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), TriggerScheduled, nil)
		done <- err
	}()
	<-f.called

	assert.True(t, p.Running())
	_, err := p.Run(context.Background(), TriggerManual, nil)
	assert.Equal(t, models.ErrCodeBusy, models.CodeOf(err))

	close(f.block)
	require.NoError(t, <-done)
	assert.False(t, p.Running())
}

func TestRun_CancelledBetweenCategories(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{base + "skincare": listPage("A1")}}
	p := newTestPipeline(testCatalog("skincare", "makeup"), &spyAcquirer{}, f, store.NewMemory())
	p.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	report, err := p.Run(context.Background(), TriggerManual, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, report.Categories[0].State)
	assert.Equal(t, models.StateFailed, report.Categories[1].State)
	assert.Equal(t, []string{base + "skincare"}, f.order)
}

func TestToRankedListings(t *testing.T) {
	in := []models.ListingSignal{
		{Rank: 3, Title: "c", OriginURL: "https://x/3"},
		{Rank: 1, Title: "a", OriginURL: "https://x/1"},
		{Rank: 2, Title: "", OriginURL: "https://x/2"},
		{Rank: 4, Title: "dup", OriginURL: "https://x/1"},
		{Rank: 5, Title: "e", OriginURL: "https://x/5"},
	}
	out := toRankedListings(in, "oliveyoung_skincare", 2)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Title)
	assert.Equal(t, "c", out[1].Title)
	assert.Equal(t, "oliveyoung_skincare", out[1].CategoryKey)
}
