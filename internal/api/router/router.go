package router

import (
	"net/http"

	"github.com/fieldlens/fieldlens/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "fieldlens-api",
		})
	})

	jobHandler := handler.NewJobHandler(deps)
	farmHandler := handler.NewFarmHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit a processing job
			jobs.POST("", jobHandler.SubmitJob)

			// GET /api/v1/jobs/:job_id - Get job status
			jobs.GET("/:job_id", jobHandler.GetJobStatus)

			// POST /api/v1/jobs/:job_id/cancel - Cancel a job
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)
		}

		farms := v1.Group("/farms")
		{
			// GET /api/v1/farms/:farm_id/series - Computed time series
			farms.GET("/:farm_id/series", farmHandler.GetSeries)

			// GET /api/v1/farms/:farm_id/latest - Most recent point per variable
			farms.GET("/:farm_id/latest", farmHandler.GetLatest)

			// GET /api/v1/farms/:farm_id/summary - Per-variable aggregates
			farms.GET("/:farm_id/summary", farmHandler.GetSummary)
		}
	}

	return r
}
