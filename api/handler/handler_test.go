package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kjd1374/shopping-sub000/models"
	"github.com/kjd1374/shopping-sub000/ranking"
	"github.com/kjd1374/shopping-sub000/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubIngester struct {
	mu      sync.Mutex
	catalog *ranking.Catalog
	store   store.Store
	rows    []models.RankedListing
	err     error
	outcome *models.ErrorDetail
	running bool
	calls   [][]string
	ran     chan struct{}
}

func (s *stubIngester) Run(ctx context.Context, trigger string, keys []string) (*models.IngestionReport, error) {
	s.mu.Lock()
	s.calls = append(s.calls, keys)
	s.mu.Unlock()
	if s.ran != nil {
		defer func() { s.ran <- struct{}{} }()
	}
	if s.err != nil {
		return nil, s.err
	}
	report := &models.IngestionReport{RunID: "run-1", Trigger: trigger}
	for _, k := range keys {
		out := models.CategoryOutcome{Category: k, ProductType: s.catalog.PartitionKey(k), State: models.StateDone}
		if s.outcome != nil {
			out.State, out.Error = models.StateFailed, s.outcome
		} else if len(s.rows) > 0 {
			_ = s.store.ReplacePartition(ctx, out.ProductType, s.rows)
		}
		report.Categories = append(report.Categories, out)
	}
	return report, nil
}

func (s *stubIngester) Running() bool             { return s.running }
func (s *stubIngester) Catalog() *ranking.Catalog { return s.catalog }

func (s *stubIngester) LastReport() *models.IngestionReport { return nil }

func newIngester(st store.Store) *stubIngester {
	return &stubIngester{
		catalog: &ranking.Catalog{
			Site:         "oliveyoung",
			ListSelector: "li",
			Categories: []ranking.Category{
				{Key: "skincare", URL: "https://shop.test/skincare"},
				{Key: "makeup", URL: "https://shop.test/makeup"},
			},
		},
		store: st,
	}
}

func serve(h gin.HandlerFunc, method, route, target string, body any) *httptest.ResponseRecorder {
	r := gin.New()
	r.Handle(method, route, h)

	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestGetRanking_ServesStoredPartition(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.ReplacePartition(context.Background(), "oliveyoung_skincare", []models.RankedListing{
		{Rank: 1, Title: "토너", OriginURL: "https://shop.test/p/1"},
	}))
	ing := newIngester(mem)

	w := serve(GetRanking(ing, mem), http.MethodGet, "/rankings/:category", "/rankings/skincare", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.RankingResponse](t, w)
	assert.True(t, resp.Success)
	assert.False(t, resp.Fetched)
	require.Len(t, resp.Listings, 1)
	assert.Empty(t, ing.calls)
}

func TestGetRanking_EmptyPartitionIngestsOnDemand(t *testing.T) {
	mem := store.NewMemory()
	ing := newIngester(mem)
	ing.rows = []models.RankedListing{{Rank: 1, Title: "립", OriginURL: "https://shop.test/p/9"}}

	w := serve(GetRanking(ing, mem), http.MethodGet, "/rankings/:category", "/rankings/makeup", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.RankingResponse](t, w)
	assert.True(t, resp.Fetched)
	assert.Equal(t, "oliveyoung_makeup", resp.ProductType)
	require.Len(t, resp.Listings, 1)
	assert.Equal(t, [][]string{{"makeup"}}, ing.calls)
}

func TestGetRanking_OnDemandFailureIsEmptyState(t *testing.T) {
	mem := store.NewMemory()
	ing := newIngester(mem)
	ing.outcome = &models.ErrorDetail{Code: models.ErrCodeChallenge, Message: "challenge page"}

	w := serve(GetRanking(ing, mem), http.MethodGet, "/rankings/:category", "/rankings/skincare", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	resp := decode[models.RankingResponse](t, w)
	assert.False(t, resp.Success)
	assert.NotNil(t, resp.Listings)
	assert.Empty(t, resp.Listings)
	assert.Equal(t, models.ErrCodeChallenge, resp.Error.Code)
}

func TestGetRanking_Busy(t *testing.T) {
	mem := store.NewMemory()
	ing := newIngester(mem)
	ing.err = models.NewScrapeError(models.ErrCodeBusy, "busy", nil)

	w := serve(GetRanking(ing, mem), http.MethodGet, "/rankings/:category", "/rankings/skincare", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetRanking_UnknownCategory(t *testing.T) {
	mem := store.NewMemory()
	w := serve(GetRanking(newIngester(mem), mem), http.MethodGet, "/rankings/:category", "/rankings/shoes", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshRankings(t *testing.T) {
	t.Run("async accepted", func(t *testing.T) {
		ing := newIngester(store.NewMemory())
		ing.ran = make(chan struct{}, 1)

		w := serve(RefreshRankings(ing), http.MethodPost, "/refresh", "/refresh", nil)
		assert.Equal(t, http.StatusAccepted, w.Code)

		select {
		case <-ing.ran:
		case <-time.After(2 * time.Second):
			t.Fatal("background run never started")
		}
	})

	t.Run("wait returns report", func(t *testing.T) {
		ing := newIngester(store.NewMemory())
		w := serve(RefreshRankings(ing), http.MethodPost, "/refresh", "/refresh?wait=true",
			models.RefreshRequest{Categories: []string{"makeup"}})
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[models.RefreshResponse](t, w)
		require.NotNil(t, resp.Report)
		assert.Equal(t, ranking.TriggerManual, resp.Report.Trigger)
		assert.Equal(t, [][]string{{"makeup"}}, ing.calls)
	})

	t.Run("unknown category", func(t *testing.T) {
		w := serve(RefreshRankings(newIngester(store.NewMemory())), http.MethodPost, "/refresh", "/refresh",
			models.RefreshRequest{Categories: []string{"shoes"}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("already running", func(t *testing.T) {
		ing := newIngester(store.NewMemory())
		ing.running = true
		w := serve(RefreshRankings(ing), http.MethodPost, "/refresh", "/refresh", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Empty(t, ing.calls)
	})
}

type stubPreviewer struct {
	results []models.PreviewResult
	maxAge  time.Duration
	bag     *models.SignalBag
	err     error
}

func (s *stubPreviewer) PreviewManyMaxAge(_ context.Context, urls []string, maxAge time.Duration) []models.PreviewResult {
	s.maxAge = maxAge
	return s.results
}

func (s *stubPreviewer) Signals(context.Context, string) (*models.SignalBag, error) {
	return s.bag, s.err
}

type stubReconciler struct {
	got     *models.SignalBag
	product *models.NormalizedProduct
	err     error
}

func (s *stubReconciler) Reconcile(_ context.Context, bag *models.SignalBag) (*models.NormalizedProduct, error) {
	s.got = bag
	return s.product, s.err
}

func TestPreview(t *testing.T) {
	pv := &stubPreviewer{results: []models.PreviewResult{
		{URL: "https://shop.test/a", Title: "토너", Images: []string{}},
		models.FailedPreview("https://shop.test/b", models.NewScrapeError(models.ErrCodeNavigation, "HTTP 500", nil)),
	}}

	w := serve(Preview(pv), http.MethodPost, "/preview", "/preview", models.PreviewRequest{
		URLs:   []string{"https://shop.test/a", "https://shop.test/b"},
		MaxAge: 60000,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Minute, pv.maxAge)

	resp := decode[models.PreviewResponse](t, w)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, models.PreviewFailedTitle, resp.Results[1].Title)
	assert.Equal(t, models.ErrCodeNavigation, resp.Results[1].Error.Code)
}

func TestPreview_RejectsEmptyList(t *testing.T) {
	w := serve(Preview(&stubPreviewer{}), http.MethodPost, "/preview", "/preview", models.PreviewRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseProduct(t *testing.T) {
	pv := &stubPreviewer{bag: &models.SignalBag{Title: "토너", PriceCandidates: []float64{50000, 89000}}}
	rc := &stubReconciler{product: &models.NormalizedProduct{Name: "토너", Price: 50000, OriginalPrice: 89000, Weight: 0.3}}

	w := serve(ParseProduct(pv, rc), http.MethodPost, "/parse", "/parse",
		models.ParseRequest{URL: "https://shop.test/p/1", Category: "스킨케어"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "스킨케어", rc.got.Category)

	resp := decode[models.ParseResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, 50000.0, resp.Product.Price)
}

func TestParseProduct_ModelErrorsSurface(t *testing.T) {
	pv := &stubPreviewer{bag: &models.SignalBag{Title: "토너"}}
	rc := &stubReconciler{err: models.NewScrapeError(models.ErrCodeAIUnavailable, "no model credential", nil)}

	w := serve(ParseProduct(pv, rc), http.MethodPost, "/parse", "/parse", models.ParseRequest{URL: "https://shop.test/p/1"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, models.ErrCodeAIUnavailable, decode[models.ParseResponse](t, w).Error.Code)
}

func TestParseProduct_FetchError(t *testing.T) {
	pv := &stubPreviewer{err: models.NewScrapeError(models.ErrCodeTimeout, "timed out", nil)}
	w := serve(ParseProduct(pv, &stubReconciler{}), http.MethodPost, "/parse", "/parse", models.ParseRequest{URL: "https://shop.test/p/1"})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

type liveStub int

func (l liveStub) Live() int { return int(l) }

type reportStub struct{ r *models.IngestionReport }

func (s reportStub) LastReport() *models.IngestionReport { return s.r }

func TestHealth(t *testing.T) {
	w := serve(Health(liveStub(2), reportStub{}, time.Now()), http.MethodGet, "/health", "/health", nil)
	resp := decode[models.HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 2, resp.LiveBrowsers)

	failed := &models.IngestionReport{Error: &models.ErrorDetail{Code: models.ErrCodeSiteChanged}}
	w = serve(Health(liveStub(0), reportStub{failed}, time.Now()), http.MethodGet, "/health", "/health", nil)
	assert.Equal(t, "degraded", decode[models.HealthResponse](t, w).Status)
}

func TestMapErrorToStatus(t *testing.T) {
	cases := map[string]int{
		models.ErrCodeTimeout:       http.StatusGatewayTimeout,
		models.ErrCodeChallenge:     http.StatusBadGateway,
		models.ErrCodePriceMissing:  http.StatusUnprocessableEntity,
		models.ErrCodeBusy:          http.StatusConflict,
		models.ErrCodeBrowserLaunch: http.StatusServiceUnavailable,
		models.ErrCodePersistence:   http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, mapErrorToStatus(models.NewScrapeError(code, "", nil)), code)
	}
}
