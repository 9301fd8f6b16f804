package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cuongbtq/invoice-ocr/internal/api/handler"
)

// Options configures the parts of the router that are not handlers.
type Options struct {
	APIKeys []string
	// UploadRate limits /extract and /train in requests per second. Zero disables it.
	UploadRate  float64
	UploadBurst int
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	h := handler.NewHandler(deps)

	if opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}
	r.GET("/health", h.Health)

	var limiter *rate.Limiter
	if opts.UploadRate > 0 {
		burst := opts.UploadBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.UploadRate), burst)
	}

	api := r.Group("/api")
	{
		// GET /api/health is left open for connection monitoring
		api.GET("/health", h.Health)

		authed := api.Group("", APIKeyMiddleware(opts.APIKeys))
		{
			authed.GET("/models", h.ListModels)
			authed.GET("/models/:model_id/status", h.ModelStatus)

			uploads := authed.Group("", RateLimitMiddleware(limiter))
			{
				// POST /api/extract - Extract fields from one document
				uploads.POST("/extract", h.Extract)

				// POST /api/train - Start training a model
				uploads.POST("/train", h.Train)
			}
		}
	}

	return r
}
