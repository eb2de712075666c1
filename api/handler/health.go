package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kjd1374/shopping-sub000/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// BrowserStats reports live browser processes.
type BrowserStats interface {
	Live() int
}

// RunReporter exposes the latest ingestion report.
type RunReporter interface {
	LastReport() *models.IngestionReport
}

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when the last ingestion run ended with a run-level error.
func Health(browsers BrowserStats, runs RunReporter, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		last := runs.LastReport()

		status := "healthy"
		if last != nil && last.Error != nil {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       status,
			Uptime:       time.Since(startTime).Round(time.Second).String(),
			LiveBrowsers: browsers.Live(),
			LastRun:      last,
			Version:      Version,
		})
	}
}
