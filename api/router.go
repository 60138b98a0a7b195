package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sridip-de/yt-dlp-gui/api/handlers"
	"github.com/sridip-de/yt-dlp-gui/api/middleware"
	"github.com/sridip-de/yt-dlp-gui/internal/app"
)

// RouterConfig carries what the HTTP surface needs besides the manager
type RouterConfig struct {
	Binary  string // downloader binary checked by /ready
	LogsDir string // category logs; empty disables the log endpoints
}

// SetupRouter sets up the HTTP router
func SetupRouter(manager *app.Manager, hub *handlers.EventHub, config RouterConfig, log *zap.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(manager, config.Binary)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		opHandler := handlers.NewOperationHandler(manager, log)
		v1.POST("/formats", opHandler.FetchFormats)
		v1.POST("/downloads", opHandler.Download)
		v1.GET("/operations/:id", opHandler.GetOperation)

		slots := v1.Group("/slots")
		{
			slots.GET("", opHandler.ListSlots)
			slots.POST("/:slot/cancel", opHandler.Cancel)
		}

		v1.GET("/events", hub.HandleWebSocket)

		if config.LogsDir != "" {
			logHandler := handlers.NewLogHandler(config.LogsDir)
			logs := v1.Group("/logs")
			{
				logs.GET("/categories", logHandler.GetCategories)
				logs.GET("/:category", logHandler.GetLogs)
				logs.GET("/:category/search", logHandler.SearchLogs)
				logs.GET("/:category/export", logHandler.ExportLogs)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "not found"})
	})

	return router
}
