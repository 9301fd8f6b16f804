package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/invoice-ocr/internal/api/domain"
	"github.com/cuongbtq/invoice-ocr/internal/api/dto"
)

// Extraction outcomes reported to the metrics recorder.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Extract handles POST /extract
// Runs the requested model over one uploaded document.
func (h *Handler) Extract(c *gin.Context) {
	ctx := c.Request.Context()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)

	fh, err := c.FormFile(dto.FieldFile)
	if err != nil {
		h.metrics.RecordExtraction(ctx, OutcomeRejected)
		switch {
		case isTooLarge(err):
			respondError(c, http.StatusRequestEntityTooLarge, "File too large")
		case c.Request.MultipartForm != nil && len(c.Request.MultipartForm.Value[dto.FieldFile]) > 0:
			// A part without a filename is parsed as a plain form value.
			respondError(c, http.StatusBadRequest, "Empty filename")
		default:
			respondError(c, http.StatusBadRequest, "No file provided")
		}
		return
	}

	modelID := strings.TrimSpace(c.PostForm(dto.FieldModelID))
	if modelID == "" {
		modelID = domain.DefaultModelID
	}

	h.logger.Info("Extraction requested",
		slog.String("model_id", modelID),
		slog.String("filename", fh.Filename),
		slog.Int64("size", fh.Size),
	)

	doc, err := readUpload(fh)
	if err != nil {
		h.metrics.RecordExtraction(ctx, OutcomeFailed)
		h.logger.Error("Failed to read upload", slog.Any("error", err))
		respondError(c, http.StatusBadRequest, "Failed to read file")
		return
	}
	if len(doc.data) == 0 {
		h.metrics.RecordExtraction(ctx, OutcomeRejected)
		respondError(c, http.StatusBadRequest, "Empty file")
		return
	}
	if !doc.accepted() {
		h.metrics.RecordExtraction(ctx, OutcomeRejected)
		respondError(c, http.StatusUnsupportedMediaType, unsupportedTypeMessage(doc.contentType))
		return
	}

	m, err := h.storage.GetModel(ctx, modelID)
	if err != nil {
		if errors.Is(err, domain.ErrModelNotFound) {
			h.metrics.RecordExtraction(ctx, OutcomeRejected)
			respondError(c, http.StatusNotFound, fmt.Sprintf("Model %s not found", modelID))
			return
		}
		h.metrics.RecordExtraction(ctx, OutcomeFailed)
		h.logger.Error("Failed to get model", slog.String("model_id", modelID), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Failed to load model")
		return
	}
	if m.Status != domain.ModelStatusReady {
		h.metrics.RecordExtraction(ctx, OutcomeRejected)
		respondError(c, http.StatusConflict, fmt.Sprintf("Model %s is not ready (status: %s)", modelID, m.Status))
		return
	}

	fields, err := m.FieldList()
	if err != nil {
		h.logger.Warn("Model has unreadable field list, using defaults",
			slog.String("model_id", modelID),
			slog.Any("error", err),
		)
	}
	if len(fields) == 0 {
		fields = domain.DefaultFields
	}

	extracted, err := h.extractor.Extract(ctx, doc.data, fields)
	if err != nil {
		h.metrics.RecordExtraction(ctx, OutcomeFailed)
		h.logger.Error("Extraction failed", slog.String("model_id", modelID), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Extraction failed")
		return
	}

	h.metrics.RecordExtraction(ctx, OutcomeSucceeded)
	c.JSON(http.StatusOK, dto.ExtractResponse{Success: true, ExtractedData: extracted})
}
