package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/invoice-ocr/internal/client"
	"github.com/cuongbtq/invoice-ocr/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past extractions",
	Long: `List past extractions, newest first.

Filters combine: --date takes a YYYY-MM-DD day in UTC, --status takes
SUCCEEDED or FAILED.`,
	Example: `  ocrctl history
  ocrctl history --model default --status FAILED --date 2025-03-14`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := historyFilter(cmd)
		if err != nil {
			return err
		}

		return withSession(cmd, func(ctx context.Context, s *session) error {
			records, err := history.NewStore(s.state.Storage()).List(ctx, filter)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No extractions found")
				return nil
			}

			p := newPrinter(ctx, s.state)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, p.bold("CREATED\tDOCUMENT\tMODEL\tSTATUS\tFIELDS"))
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
					r.CreatedAt.Local().Format(time.DateTime), r.DocumentRef, r.ModelID, p.jobStatus(r.Status), len(r.Fields))
			}
			return w.Flush()
		})
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export past extractions to a spreadsheet or JSON file",
	Example: `  ocrctl history export --out history.xlsx
  ocrctl history export --format json --out -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := historyFilter(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")
		format = strings.ToLower(format)
		if format != history.FormatXLSX && format != history.FormatJSON {
			return fmt.Errorf("unsupported export format %q", format)
		}
		if outPath == "" {
			outPath = fmt.Sprintf("ocr-history-%s.%s", time.Now().Format(history.DateLayout), format)
		}

		return withSession(cmd, func(ctx context.Context, s *session) error {
			records, err := history.NewStore(s.state.Storage()).List(ctx, filter)
			if err != nil {
				return err
			}

			if outPath == "-" {
				return history.Export(cmd.OutOrStdout(), format, records)
			}
			if err := exportToFile(outPath, format, records); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", len(records), outPath)
			return nil
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every recorded extraction",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			if err := history.NewStore(s.state.Storage()).Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyExportCmd, historyClearCmd)

	historyCmd.PersistentFlags().String("date", "", "only show extractions from this day (YYYY-MM-DD, UTC)")
	historyCmd.PersistentFlags().String("model", "", "only show extractions with this model")
	historyCmd.PersistentFlags().String("status", "", "only show extractions with this status")

	historyExportCmd.Flags().String("format", history.FormatXLSX, "export format (xlsx, json)")
	historyExportCmd.Flags().StringP("out", "o", "", `output file, "-" for stdout (default ocr-history-<date>.<format>)`)
}

func historyFilter(cmd *cobra.Command) (history.Filter, error) {
	date, _ := cmd.Flags().GetString("date")
	modelID, _ := cmd.Flags().GetString("model")
	status, _ := cmd.Flags().GetString("status")

	f := history.Filter{
		Date:    date,
		ModelID: modelID,
		Status:  client.JobStatus(strings.ToUpper(status)),
	}
	if err := f.Validate(); err != nil {
		return history.Filter{}, err
	}
	return f, nil
}

func exportToFile(path, format string, records []history.Record) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return history.Export(f, format, records)
}
