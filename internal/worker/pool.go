package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/invoice-ocr/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop processes dispatched messages until jobsChan is closed.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for msg := range w.jobsChan {
		w.logger.Info("Worker received training job",
			slog.String("worker_name", workerName),
			slog.String("model_id", msg.modelID),
			slog.Uint64("delivery_tag", msg.delivery.DeliveryTag),
		)

		err := w.processTraining(ctx, msg.modelID)
		w.acknowledge(workerName, msg, err)
	}

	w.logger.Debug("Worker goroutine stopping - jobsChan closed",
		slog.String("worker_name", workerName),
	)
}

// acknowledge ACKs a processed delivery or NACKs it, requeueing retryable failures.
func (w *Worker) acknowledge(workerName string, msg *trainingDelivery, err error) {
	if err == nil {
		if ackErr := msg.delivery.Ack(false); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.String("model_id", msg.modelID),
				slog.Any("error", ackErr),
			)
		}
		return
	}

	requeue := shouldRequeue(err)
	w.logger.Error("Training job processing failed",
		slog.String("worker_name", workerName),
		slog.String("model_id", msg.modelID),
		slog.Bool("requeue", requeue),
		slog.Any("error", err),
	)

	if nackErr := msg.delivery.Nack(false, requeue); nackErr != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("worker_name", workerName),
			slog.String("model_id", msg.modelID),
			slog.Any("error", nackErr),
		)
	}
}

// shouldRequeue determines if a message should be requeued based on the error type
func shouldRequeue(err error) bool {
	switch {
	case errors.Is(err, domain.ErrModelNotTraining),
		errors.Is(err, domain.ErrMaxRetriesExceeded),
		errors.Is(err, domain.ErrInvalidMessage),
		errors.Is(err, domain.ErrInvalidDocument):
		return false
	default:
		return domain.IsRetryable(err)
	}
}
