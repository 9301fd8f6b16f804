// Package worker consumes training messages and drives each model from
// training to ready or failed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/invoice-ocr/internal/worker/domain"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultJobTimeout        = 5 * time.Minute
)

// TrainingStore is the model table as the worker uses it.
type TrainingStore interface {
	ClaimTraining(ctx context.Context, modelID string) (*domain.TrainingJob, error)
	CompleteTraining(ctx context.Context, modelID string, fields []string) error
	FailTraining(ctx context.Context, modelID, errorMsg string) error
	Heartbeat(ctx context.Context, modelID string) error
}

// BlobFetcher reads training documents.
type BlobFetcher interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// DeliverySource is the queue the worker consumes from.
type DeliverySource interface {
	SetQoS(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Trainer turns training documents into a field list.
type Trainer interface {
	Train(ctx context.Context, docs []domain.Document) ([]string, error)
}

// OutcomeRecorder counts training outcomes.
type OutcomeRecorder interface {
	RecordTraining(ctx context.Context, outcome string)
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	Store             TrainingStore
	Blobs             BlobFetcher
	Source            DeliverySource
	Trainer           Trainer
	Metrics           OutcomeRecorder
	WorkerID          string
	Concurrency       int
	PrefetchCount     int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	MaxRetries        int
}

// Worker represents the background training worker
type Worker struct {
	logger            *slog.Logger
	store             TrainingStore
	blobs             BlobFetcher
	source            DeliverySource
	trainer           Trainer
	metrics           OutcomeRecorder
	workerID          string
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	maxRetries        int

	jobsChan chan *trainingDelivery
	wg       sync.WaitGroup
}

// trainingDelivery pairs a decoded message with the delivery to acknowledge.
type trainingDelivery struct {
	modelID  string
	delivery amqp.Delivery
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}
	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopRecorder{}
	}

	return &Worker{
		logger:            cfg.Logger,
		store:             cfg.Store,
		blobs:             cfg.Blobs,
		source:            cfg.Source,
		trainer:           cfg.Trainer,
		metrics:           metrics,
		workerID:          cfg.WorkerID,
		concurrency:       concurrency,
		prefetchCount:     prefetch,
		jobTimeout:        jobTimeout,
		heartbeatInterval: heartbeat,
		maxRetries:        cfg.MaxRetries,
		jobsChan:          make(chan *trainingDelivery),
	}
}

// ErrDeliveriesClosed is returned by Start when the broker closes the consumer.
var ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// Start consumes and processes messages until ctx is cancelled. It returns
// once every worker goroutine has finished its current message.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Int("max_retries", w.maxRetries),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	err = w.startMessageDispatcher(ctx, deliveries)

	close(w.jobsChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))

	return err
}

type noopRecorder struct{}

func (noopRecorder) RecordTraining(context.Context, string) {}
