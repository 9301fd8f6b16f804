package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/invoice-ocr/internal/client"
	"github.com/cuongbtq/invoice-ocr/internal/poller"
)

// ErrTrainingFailed is returned when a followed model ends in the failed state.
var ErrTrainingFailed = errors.New("training failed")

var statusCmd = &cobra.Command{
	Use:   "status <model-id>",
	Short: "Show the training status of a model",
	Long: `Show the training status of a model.

With --follow the status is polled every --poll-interval until the model is
ready or failed. Polling gives up after --max-poll-failures consecutive
failed queries.`,
	Example: `  ocrctl status 3f2a9c1e-...
  ocrctl status 3f2a9c1e-... --follow --poll-interval 2s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")

		return withSession(cmd, func(ctx context.Context, s *session) error {
			p := newPrinter(ctx, s.state)
			job := &client.TrainingJob{ModelID: args[0], Status: client.TrainingStatusTraining}

			status, err := s.client.ModelStatus(ctx, job.ModelID)
			if err != nil {
				return p.reportError(cmd.OutOrStdout(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", p.dim("Model:"), job.ModelID)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", p.dim("Status:"), p.trainingStatus(status))

			if !follow || status.IsTerminal() {
				if status == client.TrainingStatusFailed {
					return ErrTrainingFailed
				}
				return nil
			}
			return p.reportError(cmd.OutOrStdout(), followTraining(ctx, cmd, s, p, job))
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolP("follow", "f", false, "poll until training finishes")
}

// followTraining polls job until it reaches a terminal state and prints the outcome.
func followTraining(ctx context.Context, cmd *cobra.Command, s *session, p printer, job *client.TrainingJob) error {
	out := cmd.OutOrStdout()

	pl := poller.New(s.client.TrainingQuerier(), pollerConfig(s))
	updates, err := pl.Start(ctx, job.ModelID)
	if err != nil {
		return err
	}
	defer pl.Cancel()

	fmt.Fprintln(out, p.dim("Waiting for training to finish..."))
	for u := range updates {
		switch u.State {
		case poller.StatePolling:
			if u.Err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s poll %d failed: %s\n", p.bad("!"), u.Attempt, u.Err)
			}
		case poller.StateSucceeded:
			job.Observe(client.TrainingStatusReady)
			fmt.Fprintf(out, "%s Model %s is ready\n", p.trainingStatus(job.Status), job.ModelID)
			return nil
		case poller.StateFailed:
			if u.Err != nil {
				return fmt.Errorf("stopped polling model %s after %d attempts: %w", job.ModelID, u.Attempt, u.Err)
			}
			job.Observe(client.TrainingStatusFailed)
			fmt.Fprintf(out, "%s Model %s failed to train\n", p.trainingStatus(job.Status), job.ModelID)
			return ErrTrainingFailed
		case poller.StateCancelled:
			return context.Cause(ctx)
		}
	}
	// The stream closes without a final update only when cancelled.
	return context.Cause(ctx)
}
