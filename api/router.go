package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kjd1374/shopping-sub000/api/handler"
	"github.com/kjd1374/shopping-sub000/api/middleware"
	"github.com/kjd1374/shopping-sub000/config"
	"github.com/kjd1374/shopping-sub000/store"
)

// Deps are the services behind the routes.
type Deps struct {
	Browsers   handler.BrowserStats
	Rankings   handler.RankingService
	Store      store.Store
	Previews   handler.Previewer
	Reconciler handler.Reconciler
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// The health endpoint sits outside auth for monitoring probes.
func NewRouter(d Deps, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health: no auth.
	v1.GET("/health", handler.Health(d.Browsers, d.Rankings, startTime))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Rankings
	protected.GET("/rankings/:category", handler.GetRanking(d.Rankings, d.Store))
	protected.POST("/rankings/refresh", handler.RefreshRankings(d.Rankings))

	// Ad-hoc links
	protected.POST("/preview", handler.Preview(d.Previews))
	protected.POST("/products/parse", handler.ParseProduct(d.Previews, d.Reconciler))

	return r
}
