package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/invoice-ocr/internal/client"
	"github.com/cuongbtq/invoice-ocr/internal/history"
)

// extractOutput is the --json form of an extraction.
type extractOutput struct {
	Result client.Result         `json:"result"`
	Job    *client.ExtractionJob `json:"job,omitempty"`
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract invoice fields from a document",
	Long: `Upload a PDF, JPEG or PNG document and print the extracted fields.

Every resolved extraction is appended to the local history.`,
	Example: `  ocrctl extract invoice.pdf
  ocrctl extract scan.png --model 3f2a... --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modelID, _ := cmd.Flags().GetString("model")
		asJSON, _ := cmd.Flags().GetBool("json")

		return withSession(cmd, func(ctx context.Context, s *session) error {
			doc, err := client.OpenDocument(args[0])
			if err != nil {
				return err
			}

			job, submitErr := s.client.SubmitExtraction(ctx, doc, modelID)
			if job != nil && job.IsTerminal() {
				if _, err := history.NewStore(s.state.Storage()).Append(ctx, history.FromJob(job, time.Now())); err != nil {
					s.logger.Warn("Failed to record extraction", slog.Any("error", err))
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(extractOutput{Result: client.ResultOf(submitErr), Job: job}); err != nil {
					return err
				}
				return submitErr
			}

			p := newPrinter(ctx, s.state)
			if submitErr != nil {
				return p.reportError(cmd.OutOrStdout(), submitErr)
			}
			printExtraction(cmd.OutOrStdout(), p, job)
			if job.Status == client.JobStatusFailed {
				return fmt.Errorf("extraction failed: %s", job.ErrorMessage)
			}
			return nil
		})
	},
}

func printExtraction(w io.Writer, p printer, job *client.ExtractionJob) {
	fmt.Fprintf(w, "%s %s\n", p.jobStatus(job.Status), p.bold(job.DocumentRef))
	fmt.Fprintf(w, "%s %s\n", p.dim("Model:"), job.ModelID)
	if job.ErrorMessage != "" {
		fmt.Fprintf(w, "%s %s\n", p.dim("Error:"), p.bad(job.ErrorMessage))
		return
	}

	names := make([]string, 0, len(job.Fields))
	for name := range job.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s %s\n", p.info(name+":"), job.Fields[name])
	}
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringP("model", "m", client.DefaultModelID, "model to extract with")
	extractCmd.Flags().Bool("json", false, "print the job and result as JSON")
}
