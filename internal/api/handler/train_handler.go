package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/invoice-ocr/internal/api/domain"
	"github.com/cuongbtq/invoice-ocr/internal/api/dto"
	"github.com/cuongbtq/invoice-ocr/internal/api/model"
)

const uploadConcurrency = 4

// Train handles POST /train
// Stores the training documents, records a training model and queues it for the worker.
func (h *Handler) Train(c *gin.Context) {
	ctx := c.Request.Context()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)

	form, err := c.MultipartForm()
	if err != nil {
		if isTooLarge(err) {
			respondError(c, http.StatusRequestEntityTooLarge, "Files too large")
			return
		}
		respondError(c, http.StatusBadRequest, "No files provided")
		return
	}

	files := form.File[dto.FieldTrainingFiles]
	if len(files) == 0 {
		respondError(c, http.StatusBadRequest, "No files provided")
		return
	}

	name := strings.TrimSpace(c.PostForm(dto.FieldName))
	if name == "" {
		name = domain.DefaultModelName
	}
	description := strings.TrimSpace(c.PostForm(dto.FieldDescription))

	docs := make([]*upload, 0, len(files))
	for _, fh := range files {
		if fh.Filename == "" {
			continue
		}
		doc, err := readUpload(fh)
		if err != nil {
			h.logger.Error("Failed to read training upload", slog.String("filename", fh.Filename), slog.Any("error", err))
			respondError(c, http.StatusBadRequest, "Failed to read file")
			return
		}
		if len(doc.data) == 0 {
			continue
		}
		if !doc.accepted() {
			respondError(c, http.StatusUnsupportedMediaType,
				fmt.Sprintf("%s: %s", fh.Filename, unsupportedTypeMessage(doc.contentType)))
			return
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		respondError(c, http.StatusBadRequest, "No valid files provided")
		return
	}

	modelID := uuid.NewString()
	keys, err := h.storeDocuments(ctx, modelID, docs)
	if err != nil {
		h.logger.Error("Failed to store training documents",
			slog.String("model_id", modelID),
			slog.Any("error", err),
		)
		respondError(c, http.StatusInternalServerError, "Failed to store training files")
		return
	}

	now := time.Now().UTC()
	m := &model.Model{
		ID:           modelID,
		Name:         name,
		Description:  description,
		Status:       domain.ModelStatusTraining,
		Fields:       model.EncodeList(nil),
		DocumentKeys: model.EncodeList(keys),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.storage.CreateModel(ctx, m); err != nil {
		h.logger.Error("Failed to create model", slog.String("model_id", modelID), slog.Any("error", err))
		h.deleteDocuments(ctx, keys)
		respondError(c, http.StatusInternalServerError, "Failed to create model")
		return
	}

	body, err := json.Marshal(dto.TrainingMessage{ModelID: modelID})
	if err == nil {
		err = h.publisher.PublishWithRetry(ctx, body, "application/json")
	}
	if err != nil {
		h.logger.Error("Failed to queue training job",
			slog.String("model_id", modelID),
			slog.Any("error", err),
		)
		if markErr := h.storage.MarkFailed(context.WithoutCancel(ctx), modelID, "failed to queue training job"); markErr != nil {
			h.logger.Error("Failed to mark model failed",
				slog.String("model_id", modelID),
				slog.Any("error", markErr),
			)
		}
		respondError(c, http.StatusServiceUnavailable, "Training queue unavailable")
		return
	}

	h.logger.Info("Training job queued",
		slog.String("model_id", modelID),
		slog.String("name", name),
		slog.Int("documents", len(keys)),
	)

	c.JSON(http.StatusOK, dto.TrainResponse{Success: true, ModelName: name, ModelID: modelID})
}

// storeDocuments uploads docs concurrently and returns their keys in upload order.
// Nothing is left behind when any upload fails.
func (h *Handler) storeDocuments(ctx context.Context, modelID string, docs []*upload) ([]string, error) {
	keys := make([]string, len(docs))
	for i, doc := range docs {
		keys[i] = fmt.Sprintf("training/%s/%d-%s", modelID, i, baseName(doc.filename))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for i, doc := range docs {
		g.Go(func() error {
			if err := h.blobs.Put(gctx, keys[i], doc.data, doc.contentType); err != nil {
				return fmt.Errorf("failed to upload %s: %w", keys[i], err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		h.deleteDocuments(ctx, keys)
		return nil, err
	}
	return keys, nil
}

func (h *Handler) deleteDocuments(ctx context.Context, keys []string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := h.blobs.Delete(ctx, key); err != nil {
			h.logger.Warn("Failed to delete training document",
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
	}
}
