package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kjd1374/shopping-sub000/models"
)

// Previewer turns product links into preview cards.
type Previewer interface {
	PreviewManyMaxAge(ctx context.Context, urls []string, maxAge time.Duration) []models.PreviewResult
	Signals(ctx context.Context, rawURL string) (*models.SignalBag, error)
}

// Reconciler turns signals into a validated product record.
type Reconciler interface {
	Reconcile(ctx context.Context, bag *models.SignalBag) (*models.NormalizedProduct, error)
}

// Preview returns a handler for POST /api/v1/preview.
//
// Per-URL failures are part of a 200 response; each failed entry carries
// its own error.
func Preview(pv Previewer) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.PreviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		results := pv.PreviewManyMaxAge(c.Request.Context(), req.URLs, time.Duration(req.MaxAge)*time.Millisecond)

		c.JSON(http.StatusOK, models.PreviewResponse{
			Results: results,
			Timing:  models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()},
		})
	}
}

// ParseProduct returns a handler for POST /api/v1/products/parse.
//
// The model is required here: without a credential, or when its reply
// cannot be used, the request fails instead of degrading to page signals.
func ParseProduct(pv Previewer, rc Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.ParseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		// ── 1. Fetch + extract ──────────────────────────────────────
		navStart := time.Now()
		bag, err := pv.Signals(c.Request.Context(), req.URL)
		navigationMs := time.Since(navStart).Milliseconds()
		if err != nil {
			status, detail := statusOf(err)
			c.JSON(status, models.ParseResponse{
				Error:  detail,
				Timing: models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds(), NavigationMs: navigationMs},
			})
			return
		}
		if bag.Category == "" {
			bag.Category = req.Category
		}

		// ── 2. Reconcile ────────────────────────────────────────────
		rcStart := time.Now()
		product, err := rc.Reconcile(c.Request.Context(), bag)
		timing := models.TimingInfo{
			TotalMs:      time.Since(totalStart).Milliseconds(),
			NavigationMs: navigationMs,
			ReconcileMs:  time.Since(rcStart).Milliseconds(),
		}
		if err != nil {
			status, detail := statusOf(err)
			c.JSON(status, models.ParseResponse{Error: detail, Timing: timing})
			return
		}

		c.JSON(http.StatusOK, models.ParseResponse{Success: true, Product: product, Timing: timing})
	}
}
