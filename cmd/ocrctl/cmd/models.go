package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/invoice-ocr/internal/client"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models known to the backend",
	Long: `List models with their training status.

The list is cached locally. When the backend is unreachable the cached list
is shown instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			p := newPrinter(ctx, s.state)
			out := cmd.OutOrStdout()

			models, err := s.client.ListModels(ctx)
			switch {
			case err == nil:
				if cacheErr := s.state.CacheModels(ctx, models); cacheErr != nil {
					s.logger.Warn("Failed to cache models", slog.Any("error", cacheErr))
				}
			case errors.Is(err, client.ErrBackendUnavailable):
				cached, cacheErr := s.state.CachedModels(ctx)
				if cacheErr != nil || len(cached) == 0 {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), p.bad("Backend unavailable, showing cached models"))
				models = cached
			default:
				return err
			}

			if len(models) == 0 {
				fmt.Fprintln(out, "No models found")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, p.bold("ID\tNAME\tSTATUS\tCREATED"))
			for _, m := range models {
				created := "-"
				if !m.CreatedAt.IsZero() {
					created = m.CreatedAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.Name, p.trainingStatus(m.Status), created)
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
