package router

import (
	"context"
	"net/http"
	"time"

	"github.com/cuongbtq/videogen/internal/api/handler"
	"github.com/gin-gonic/gin"
)

const serviceName = "videogen-api-service"

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", healthHandler(deps.DB))

	videoHandler := handler.NewVideoHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/videos - Generate a video and wait for the media
		v1.POST("/videos", videoHandler.GenerateVideo)

		jobs := v1.Group("/video-jobs")
		{
			// POST /api/v1/video-jobs - Queue a generation job
			jobs.POST("", videoHandler.CreateVideoJob)

			// GET /api/v1/video-jobs - List jobs with filtering and pagination
			jobs.GET("", videoHandler.ListVideoJobs)

			// GET /api/v1/video-jobs/:job_id - Get job details
			jobs.GET("/:job_id", videoHandler.GetVideoJob)

			// GET /api/v1/video-jobs/:job_id/content - Download the finished video
			jobs.GET("/:job_id/content", videoHandler.GetVideoJobContent)
		}
	}

	return r
}

func healthHandler(db handler.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			if err := db.HealthCheck(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": serviceName,
					"error":   err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
		})
	}
}
