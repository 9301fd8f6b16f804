package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/invoice-ocr/internal/worker/domain"
)

// SimulatedTrainer waits for Duration and assigns the default field list.
type SimulatedTrainer struct {
	Duration time.Duration
}

func (t SimulatedTrainer) Train(ctx context.Context, docs []domain.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no training documents", domain.ErrInvalidDocument)
	}

	timer := time.NewTimer(t.Duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, domain.NewRetryableError(fmt.Errorf("training canceled: %w", ctx.Err()))
	}

	fields := make([]string, len(domain.DefaultFields))
	copy(fields, domain.DefaultFields)
	return fields, nil
}
