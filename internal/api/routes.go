package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tibiamarket/tracker/internal/api/handlers"
	"github.com/tibiamarket/tracker/internal/metrics"
	"github.com/tibiamarket/tracker/internal/services"
)

// Options configures the router
type Options struct {
	AllowedOrigins []string
}

func SetupRouter(snapshotStore *services.SnapshotStore, quoteStore *services.QuoteStore, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), metricsMiddleware())

	// The website is served from another origin and only reads
	config := cors.DefaultConfig()
	if len(opts.AllowedOrigins) > 0 {
		config.AllowOrigins = opts.AllowedOrigins
	} else {
		config.AllowAllOrigins = true
	}
	config.AllowMethods = []string{"GET", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	config.AllowCredentials = false
	router.Use(cors.New(config))

	// Initialize handlers
	var history handlers.HistoryReader
	var runs handlers.RunLister
	if quoteStore != nil {
		history = quoteStore
		runs = quoteStore
	}
	itemHandler := handlers.NewItemHandler(snapshotStore, history)
	scanHandler := handlers.NewScanHandler(runs)

	// Route the website has always used
	router.GET("/get_items", itemHandler.GetItems)

	api := router.Group("/api")
	{
		items := api.Group("/items")
		{
			items.GET("", itemHandler.GetItems)
			items.GET("/:name/history", itemHandler.GetItemHistory)
		}

		api.GET("/scans", scanHandler.GetScans)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		rows, loadedAt, loaded := snapshotStore.Status()
		body := gin.H{"status": "ok", "snapshot_loaded": loaded, "snapshot_rows": rows}
		if loaded {
			body["snapshot_loaded_at"] = loadedAt
		}
		c.JSON(http.StatusOK, body)
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
