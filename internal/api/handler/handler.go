package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/invoice-ocr/internal/api/dto"
	"github.com/cuongbtq/invoice-ocr/internal/api/model"
)

// DefaultMaxUploadSize caps multipart request bodies.
const DefaultMaxUploadSize int64 = 32 << 20

// ModelStore is the model table as the handlers use it.
type ModelStore interface {
	CreateModel(ctx context.Context, m *model.Model) error
	GetModel(ctx context.Context, id string) (*model.Model, error)
	ListModels(ctx context.Context) ([]model.Model, error)
	MarkFailed(ctx context.Context, id, message string) error
}

// BlobStore keeps uploaded training documents.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Publisher queues training messages.
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Extractor produces field values for a document.
type Extractor interface {
	Extract(ctx context.Context, data []byte, fields []string) (map[string]string, error)
}

// ExtractionRecorder counts extraction outcomes.
type ExtractionRecorder interface {
	RecordExtraction(ctx context.Context, outcome string)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Storage       ModelStore
	Blobs         BlobStore
	Publisher     Publisher
	Extractor     Extractor
	Metrics       ExtractionRecorder
	HealthCheck   func(ctx context.Context) error
	ServiceName   string
	MaxUploadSize int64
}

// Handler serves the OCR backend endpoints
type Handler struct {
	logger        *slog.Logger
	storage       ModelStore
	blobs         BlobStore
	publisher     Publisher
	extractor     Extractor
	metrics       ExtractionRecorder
	healthCheck   func(ctx context.Context) error
	serviceName   string
	maxUploadSize int64
}

// NewHandler creates a new Handler instance
func NewHandler(deps *Dependencies) *Handler {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopRecorder{}
	}
	maxUpload := deps.MaxUploadSize
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadSize
	}
	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "ocr-api-service"
	}

	return &Handler{
		logger:        deps.Logger,
		storage:       deps.Storage,
		blobs:         deps.Blobs,
		publisher:     deps.Publisher,
		extractor:     deps.Extractor,
		metrics:       metrics,
		healthCheck:   deps.HealthCheck,
		serviceName:   serviceName,
		maxUploadSize: maxUpload,
	}
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	if h.healthCheck != nil {
		if err := h.healthCheck(c.Request.Context()); err != nil {
			h.logger.Warn("Health check failed", slog.Any("error", err))
			c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{Status: "unhealthy", Service: h.serviceName})
			return
		}
	}

	c.JSON(http.StatusOK, dto.HealthResponse{Status: "healthy", Service: h.serviceName})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, dto.ErrorResponse{Success: false, Error: message})
}

// isTooLarge reports whether err came from the request body size limit.
func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

type noopRecorder struct{}

func (noopRecorder) RecordExtraction(context.Context, string) {}
