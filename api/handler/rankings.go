package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kjd1374/shopping-sub000/models"
	"github.com/kjd1374/shopping-sub000/ranking"
	"github.com/kjd1374/shopping-sub000/store"
)

// Ingester runs ranking ingestion.
type Ingester interface {
	Run(ctx context.Context, trigger string, keys []string) (*models.IngestionReport, error)
	Running() bool
	Catalog() *ranking.Catalog
}

// RankingService is the ranking pipeline as seen by the API.
type RankingService interface {
	Ingester
	RunReporter
}

// GetRanking returns a handler for GET /api/v1/rankings/:category.
//
// Flow:
//  1. Resolve the category against the catalog.
//  2. Read the partition; non-empty → 200.
//  3. Empty partition → ingest this one category, then read again.
//
// A failed on-demand ingestion answers with an empty listing array and the
// category's error, so clients can offer a manual refresh.
func GetRanking(ing Ingester, st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("category")
		catalog := ing.Catalog()
		if _, ok := catalog.Lookup(key); !ok {
			c.JSON(http.StatusNotFound, models.RankingResponse{
				Success:  false,
				Listings: []models.RankedListing{},
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "unknown category " + key,
				},
			})
			return
		}
		productType := catalog.PartitionKey(key)
		ctx := c.Request.Context()

		// ── 1. Read ─────────────────────────────────────────────────
		rows, err := st.ListPartition(ctx, productType)
		if err != nil {
			status, detail := statusOf(err)
			c.JSON(status, models.RankingResponse{ProductType: productType, Listings: []models.RankedListing{}, Error: detail})
			return
		}
		if len(rows) > 0 {
			c.JSON(http.StatusOK, models.RankingResponse{Success: true, ProductType: productType, Listings: rows})
			return
		}

		// ── 2. On-demand ingestion ──────────────────────────────────
		report, err := ing.Run(ctx, ranking.TriggerOnDemand, []string{key})
		if err == nil && report != nil && len(report.Categories) == 1 && report.Categories[0].Error != nil {
			err = models.NewScrapeError(report.Categories[0].Error.Code, report.Categories[0].Error.Message, nil)
		}
		if err != nil {
			slog.Warn("on-demand ingestion failed", "product_type", productType, "error", err)
			status, detail := statusOf(err)
			c.JSON(status, models.RankingResponse{
				ProductType: productType,
				Listings:    []models.RankedListing{},
				Fetched:     true,
				Error:       detail,
			})
			return
		}

		// ── 3. Re-read ──────────────────────────────────────────────
		rows, err = st.ListPartition(ctx, productType)
		if err != nil {
			status, detail := statusOf(err)
			c.JSON(status, models.RankingResponse{ProductType: productType, Listings: []models.RankedListing{}, Error: detail})
			return
		}
		c.JSON(http.StatusOK, models.RankingResponse{
			Success:     true,
			ProductType: productType,
			Listings:    rows,
			Fetched:     true,
		})
	}
}

// RefreshRankings returns a handler for POST /api/v1/rankings/refresh.
//
// The run continues in the background after the response; ?wait=true keeps
// the request open and returns the finished report instead.
func RefreshRankings(ing Ingester) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RefreshRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err)
				return
			}
		}
		if _, err := ing.Catalog().Select(req.Categories); err != nil {
			badRequest(c, err)
			return
		}

		if c.Query("wait") == "true" {
			report, err := ing.Run(c.Request.Context(), ranking.TriggerManual, req.Categories)
			if err != nil {
				status, detail := statusOf(err)
				c.JSON(status, models.RefreshResponse{Report: report, Error: detail})
				return
			}
			c.JSON(http.StatusOK, models.RefreshResponse{Success: true, Report: report})
			return
		}

		if ing.Running() {
			status, detail := statusOf(models.NewScrapeError(models.ErrCodeBusy, "a ranking ingestion run is already in progress", nil))
			c.JSON(status, models.RefreshResponse{Error: detail})
			return
		}

		go func(keys []string) {
			if _, err := ing.Run(context.Background(), ranking.TriggerManual, keys); err != nil {
				slog.Warn("manual ranking refresh failed", "error", err)
			}
		}(req.Categories)

		c.JSON(http.StatusAccepted, models.RefreshResponse{Success: true})
	}
}
