package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/invoice-ocr/internal/api/domain"
	"github.com/cuongbtq/invoice-ocr/internal/api/dto"
)

// ListModels handles GET /models
func (h *Handler) ListModels(c *gin.Context) {
	models, err := h.storage.ListModels(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list models", slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Failed to list models")
		return
	}

	resp := dto.ListModelsResponse{Models: make([]dto.ModelDTO, 0, len(models))}
	for _, m := range models {
		resp.Models = append(resp.Models, dto.ModelDTO{
			ID:          m.ID,
			Name:        m.Name,
			Description: m.Description,
			CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339),
			Status:      m.Status,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// ModelStatus handles GET /models/:model_id/status
// Unknown ids report the "unknown" status rather than an error.
func (h *Handler) ModelStatus(c *gin.Context) {
	modelID := c.Param("model_id")

	m, err := h.storage.GetModel(c.Request.Context(), modelID)
	if errors.Is(err, domain.ErrModelNotFound) {
		c.JSON(http.StatusOK, dto.ModelStatusResponse{Status: domain.ModelStatusUnknown})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get model status",
			slog.String("model_id", modelID),
			slog.Any("error", err),
		)
		respondError(c, http.StatusInternalServerError, "Failed to get model status")
		return
	}

	c.JSON(http.StatusOK, dto.ModelStatusResponse{Status: m.Status})
}
