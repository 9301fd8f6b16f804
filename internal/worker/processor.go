package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/cuongbtq/invoice-ocr/internal/api/dto"
	"github.com/cuongbtq/invoice-ocr/internal/worker/domain"
	"github.com/cuongbtq/invoice-ocr/shared/objectstore"
)

// Training outcomes reported to the metrics recorder.
const (
	OutcomeReady   = "ready"
	OutcomeFailed  = "failed"
	OutcomeRetried = "retried"
	OutcomeSkipped = "skipped"
)

// processTraining claims a model, trains it under the job timeout with a
// heartbeat running, and records the terminal status.
func (w *Worker) processTraining(ctx context.Context, modelID string) error {
	w.logger.Info("Processing training job",
		slog.String("model_id", modelID),
		slog.String("worker_id", w.workerID),
	)

	job, err := w.store.ClaimTraining(ctx, modelID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrModelNotTraining):
			w.metrics.RecordTraining(ctx, OutcomeSkipped)
			return fmt.Errorf("skipping model %s: %w", modelID, err)
		case errors.Is(err, domain.ErrInvalidDocument):
			return w.handleFailure(ctx, &domain.TrainingJob{ModelID: modelID}, err)
		default:
			w.metrics.RecordTraining(ctx, OutcomeRetried)
			return domain.NewRetryableError(fmt.Errorf("failed to claim model: %w", err))
		}
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go w.sendHeartbeat(jobCtx, job.ModelID, heartbeatDone)
	defer close(heartbeatDone)

	fields, err := w.train(jobCtx, job)
	if err != nil {
		return w.handleFailure(ctx, job, err)
	}

	if err := w.store.CompleteTraining(ctx, job.ModelID, fields); err != nil {
		if errors.Is(err, domain.ErrModelNotTraining) {
			w.logger.Warn("Model left training state before completion",
				slog.String("model_id", job.ModelID),
			)
			return nil
		}
		return w.handleFailure(ctx, job, domain.NewRetryableError(fmt.Errorf("failed to complete training: %w", err)))
	}

	w.metrics.RecordTraining(ctx, OutcomeReady)
	w.logger.Info("Training completed",
		slog.String("model_id", job.ModelID),
		slog.Int("fields", len(fields)),
		slog.Int("attempts", job.Attempts),
	)
	return nil
}

// train fetches the job's documents and runs the trainer.
func (w *Worker) train(ctx context.Context, job *domain.TrainingJob) ([]string, error) {
	if len(job.DocumentKeys) == 0 {
		return nil, fmt.Errorf("%w: no training documents", domain.ErrInvalidDocument)
	}

	docs := make([]domain.Document, 0, len(job.DocumentKeys))
	for _, key := range job.DocumentKeys {
		data, err := w.blobs.Get(ctx, key)
		if err != nil {
			if errors.Is(err, objectstore.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s is missing", domain.ErrInvalidDocument, key)
			}
			return nil, domain.NewRetryableError(fmt.Errorf("failed to fetch %s: %w", key, err))
		}

		contentType, _, _ := mime.ParseMediaType(mimetype.Detect(data).String())
		if !dto.IsAcceptedContentType(contentType) {
			return nil, fmt.Errorf("%w: %s has unsupported type %s", domain.ErrInvalidDocument, key, contentType)
		}
		docs = append(docs, domain.Document{Key: key, ContentType: contentType, Data: data})
	}

	w.logger.Info("Training model",
		slog.String("model_id", job.ModelID),
		slog.Int("documents", len(docs)),
	)

	return w.trainer.Train(ctx, docs)
}

// handleFailure decides between requeue and a terminal failed status.
// Shutdown and transient errors are requeued while attempts remain.
func (w *Worker) handleFailure(ctx context.Context, job *domain.TrainingJob, err error) error {
	if ctx.Err() != nil {
		w.metrics.RecordTraining(context.WithoutCancel(ctx), OutcomeRetried)
		return domain.NewRetryableError(fmt.Errorf("training interrupted: %w", err))
	}

	retryable := domain.IsRetryable(err)
	if retryable && job.Attempts <= w.maxRetries {
		w.metrics.RecordTraining(ctx, OutcomeRetried)
		w.logger.Info("Training will be retried",
			slog.String("model_id", job.ModelID),
			slog.Int("attempts", job.Attempts),
			slog.Int("max_retries", w.maxRetries),
		)
		return err
	}

	if failErr := w.store.FailTraining(ctx, job.ModelID, err.Error()); failErr != nil && !errors.Is(failErr, domain.ErrModelNotTraining) {
		w.logger.Error("Failed to mark model failed",
			slog.String("model_id", job.ModelID),
			slog.Any("error", failErr),
		)
		return domain.NewRetryableError(fmt.Errorf("failed to mark model failed: %w", failErr))
	}
	w.metrics.RecordTraining(ctx, OutcomeFailed)

	if retryable {
		w.logger.Warn("Training exceeded max retries",
			slog.String("model_id", job.ModelID),
			slog.Int("attempts", job.Attempts),
		)
		return fmt.Errorf("%w: %v", domain.ErrMaxRetriesExceeded, err)
	}
	return err
}

// sendHeartbeat periodically touches the model row while training runs.
func (w *Worker) sendHeartbeat(ctx context.Context, modelID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, modelID); err != nil {
				w.logger.Warn("Failed to update heartbeat",
					slog.String("model_id", modelID),
					slog.Any("error", err),
				)
			}
		}
	}
}
