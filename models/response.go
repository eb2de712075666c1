package models

import "time"

// PreviewFailedTitle is the title shown for a preview that could not load.
const PreviewFailedTitle = "불러오기 실패"

// PreviewResult is the outcome for one submitted URL.
// Error is non-nil exactly when the preview failed.
type PreviewResult struct {
	URL           string       `json:"url"`
	Title         string       `json:"title"`
	Brand         string       `json:"brand,omitempty"`
	Price         float64      `json:"price,omitempty"`
	OriginalPrice float64      `json:"originalPrice,omitempty"`
	Images        []string     `json:"images"`
	Error         *ErrorDetail `json:"error,omitempty"`
}

// FailedPreview builds the placeholder result for a URL that failed.
func FailedPreview(url string, err error) PreviewResult {
	return PreviewResult{
		URL:    url,
		Title:  PreviewFailedTitle,
		Images: []string{},
		Error:  AsScrapeError(err).ToDetail(),
	}
}

// PreviewResponse is the response for POST /api/v1/preview.
type PreviewResponse struct {
	Results []PreviewResult `json:"results"`
	Timing  TimingInfo      `json:"timing"`
}

// RankingResponse is the response for GET /api/v1/rankings/:category.
type RankingResponse struct {
	Success     bool            `json:"success"`
	ProductType string          `json:"product_type"`
	Listings    []RankedListing `json:"listings"`

	// Fetched is true when the partition was empty and was scraped on demand.
	Fetched bool         `json:"fetched,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ParseResponse is the response for POST /api/v1/products/parse.
type ParseResponse struct {
	Success bool               `json:"success"`
	Product *NormalizedProduct `json:"product,omitempty"`
	Timing  TimingInfo         `json:"timing"`
	Error   *ErrorDetail       `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// NavigationMs is the time spent navigating and rendering the page.
	NavigationMs int64 `json:"navigation_ms,omitempty"`

	// ReconcileMs is the time spent in model reconciliation.
	ReconcileMs int64 `json:"reconcile_ms,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string           `json:"status"` // "healthy" or "degraded"
	Uptime       string           `json:"uptime"`
	LiveBrowsers int              `json:"live_browsers"`
	LastRun      *IngestionReport `json:"last_run,omitempty"`
	Version      string           `json:"version"`
}

// Category pipeline states.
const (
	StateIdle       = "idle"
	StateLaunching  = "launching"
	StateNavigating = "navigating"
	StateExtracting = "extracting"
	StatePersisting = "persisting"
	StateDone       = "done"
	StateFailed     = "failed"
)

// CategoryOutcome is the final state of one category in a run.
type CategoryOutcome struct {
	Category    string       `json:"category"`
	ProductType string       `json:"product_type"`
	State       string       `json:"state"`
	FailedIn    string       `json:"failed_in,omitempty"`
	Listings    int          `json:"listings"`
	Error       *ErrorDetail `json:"error,omitempty"`
}

// IngestionReport summarises one ranking ingestion run.
type IngestionReport struct {
	RunID      string            `json:"run_id"`
	Site       string            `json:"site"`
	Trigger    string            `json:"trigger"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Categories []CategoryOutcome `json:"categories"`
	Error      *ErrorDetail      `json:"error,omitempty"`
}

// Succeeded counts categories that reached StateDone.
func (r *IngestionReport) Succeeded() int {
	n := 0
	for _, c := range r.Categories {
		if c.State == StateDone {
			n++
		}
	}
	return n
}

// ErrorResponse is the body of a request rejected before reaching a handler.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// RefreshResponse is the response for POST /api/v1/rankings/refresh.
type RefreshResponse struct {
	Success bool             `json:"success"`
	Report  *IngestionReport `json:"report,omitempty"`
	Error   *ErrorDetail     `json:"error,omitempty"`
}
