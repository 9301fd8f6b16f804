package client

import (
	"context"
	"fmt"

	"github.com/cuongbtq/invoice-ocr/internal/poller"
)

// TrainingQuerier adapts ModelStatus to the poller. An "unknown" report
// counts as a failed poll, so the loop retries it on the next tick.
func (c *Client) TrainingQuerier() poller.Querier {
	return poller.QueryFunc(func(ctx context.Context, handle string) (poller.Observation, error) {
		status, err := c.ModelStatus(ctx, handle)
		if err != nil {
			return poller.ObservationPending, err
		}

		switch status {
		case TrainingStatusTraining:
			return poller.ObservationPending, nil
		case TrainingStatusReady:
			return poller.ObservationSucceeded, nil
		case TrainingStatusFailed:
			return poller.ObservationFailed, nil
		default:
			return poller.ObservationPending, fmt.Errorf("model %s reported status %q", handle, status)
		}
	})
}
