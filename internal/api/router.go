package api

import (
	"github.com/Lexcubia/EM-automate/internal/api/handler"
	"github.com/Lexcubia/EM-automate/internal/api/middleware"
	"github.com/Lexcubia/EM-automate/internal/events"
	"github.com/Lexcubia/EM-automate/internal/logger"
	"github.com/Lexcubia/EM-automate/internal/queue"
	"github.com/Lexcubia/EM-automate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies bundles everything the router needs.
type Dependencies struct {
	Queue      *queue.Manager
	Controller *service.Controller
	History    *service.HistoryService
	Hub        *events.Hub
	Logger     *logger.Logger
	CORS       middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(deps Dependencies, mode string) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	queueHandler := handler.NewQueueHandler(deps.Queue)
	runHandler := handler.NewRunHandler(deps.Controller, deps.Hub)
	historyHandler := handler.NewHistoryHandler(deps.History)

	// Health check and metrics
	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Queue
		v1.GET("/queue", queueHandler.List)
		v1.POST("/queue", queueHandler.Add)
		v1.DELETE("/queue", queueHandler.Clear)
		v1.PATCH("/queue/:id", queueHandler.Update)
		v1.DELETE("/queue/:id", queueHandler.Remove)
		v1.POST("/queue/:id/move-up", queueHandler.MoveUp)
		v1.POST("/queue/:id/move-down", queueHandler.MoveDown)

		// Run control
		v1.POST("/run/start", runHandler.Start)
		v1.POST("/run/stop", runHandler.Stop)
		v1.POST("/run/pause", runHandler.Pause)
		v1.POST("/run/resume", runHandler.Resume)
		v1.GET("/run/status", runHandler.Status)
		v1.GET("/run/events", runHandler.Events)

		// History
		v1.GET("/history", historyHandler.List)
		v1.POST("/history/refresh", historyHandler.Refresh)
		v1.DELETE("/history", historyHandler.Clear)
	}

	return r
}
