package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nextslurm/backend/internal/api/handler"
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
			"service": "job-api-service",
		})
	})

	// Initialize job handler
	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes, behind the gateway-provided identity headers
	v1 := r.Group("/api/v1")
	v1.Use(IdentityMiddleware())
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit a new job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)
		}
	}

	// Status-mutation callbacks invoked from the cluster side. They carry
	// the per-job auth code instead of a user identity, so they sit outside
	// the identity middleware.
	callbacks := r.Group("/api/jobs")
	{
		callbacks.POST("/:job_id/markrunning", jobHandler.MarkRunning)
		callbacks.POST("/:job_id/markcomplete", jobHandler.MarkComplete)
		callbacks.POST("/:job_id/markfailed", jobHandler.MarkFailed)
	}

	return r
}
