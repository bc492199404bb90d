package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imyashkale/previewserver/internal/handlers"
	"github.com/imyashkale/previewserver/internal/middleware"
	"github.com/imyashkale/previewserver/internal/services"
)

// Setup configures and returns the application router
func Setup(
	auth *services.AuthService,
	healthHandler *handlers.HealthHandler,
	previewHandler *handlers.PreviewHandler,
	webhookHandler *handlers.WebhookHandler,
	logsHandler *handlers.LogsHandler,
) *gin.Engine {

	// Create a new Gin router
	router := gin.Default()

	// Apply global middleware
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())

	// Unauthenticated surface
	router.GET("/health", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes, all behind platform API key validation
	api := router.Group("/api")
	api.Use(middleware.APIKeyAuth(auth))

	// Preview lifecycle
	previews := api.Group("/previews")
	{
		previews.GET("", previewHandler.List)
		previews.POST("", previewHandler.Upsert)
		previews.DELETE("", previewHandler.Delete)
		previews.GET("/:identifier", previewHandler.Detail)
		previews.GET("/:identifier/containers/:service/logs", logsHandler.PreviewServiceLogs)
	}

	// Raw container access
	containers := api.Group("/containers")
	{
		containers.GET("", logsHandler.ListContainers)
		containers.GET("/:name/logs", logsHandler.ContainerLogs)
	}

	// Azure DevOps service hooks
	webhooks := api.Group("/webhooks/azure")
	{
		webhooks.POST("/pr-comment", webhookHandler.PrComment)
		webhooks.POST("/pr-updated", webhookHandler.PrUpdated)
		webhooks.POST("/build-completed", webhookHandler.BuildCompleted)
	}

	return router
}
