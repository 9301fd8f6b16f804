package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/invoice-ocr/internal/client"
)

var trainCmd = &cobra.Command{
	Use:   "train <file>...",
	Short: "Train a new extraction model from sample documents",
	Long: `Upload one or more sample documents to train a new model.

The command prints the assigned model id. With --wait it then polls the
training status until the model is ready or has failed.`,
	Example: `  ocrctl train a.pdf b.pdf --name "Receipts" --description "Grocery store receipts"
  ocrctl train scans/*.png -n Utility -d "Monthly utility bills" --wait`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		wait, _ := cmd.Flags().GetBool("wait")

		return withSession(cmd, func(ctx context.Context, s *session) error {
			p := newPrinter(ctx, s.state)

			docs := make([]*client.Document, 0, len(args))
			for _, path := range args {
				doc, err := client.OpenDocument(path)
				if err != nil {
					return p.reportError(cmd.OutOrStdout(), err)
				}
				docs = append(docs, doc)
			}

			job, err := s.client.SubmitTraining(ctx, name, description, docs)
			if err != nil {
				return p.reportError(cmd.OutOrStdout(), err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Training started for %s\n", p.trainingStatus(job.Status), p.bold(job.Name))
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", p.dim("Model ID:"), job.ModelID)

			if !wait {
				fmt.Fprintf(cmd.OutOrStdout(), "\nTrack it with: ocrctl status %s --follow\n", job.ModelID)
				return nil
			}
			return p.reportError(cmd.OutOrStdout(), followTraining(ctx, cmd, s, p, job))
		})
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().StringP("name", "n", "", "model name (required)")
	trainCmd.Flags().StringP("description", "d", "", "model description (required)")
	trainCmd.Flags().Bool("wait", false, "poll until training finishes")
}
