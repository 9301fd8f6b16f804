package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/invoice-ocr/internal/client"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the OCR backend is reachable",
	Long: `Check GET /health on the backend.

With --watch the check repeats every --interval until interrupted or until
--for has elapsed, printing every connection state change.`,
	Example: `  ocrctl health
  ocrctl health --watch --interval 5s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		interval, _ := cmd.Flags().GetDuration("interval")
		limit, _ := cmd.Flags().GetDuration("for")

		return withSession(cmd, func(ctx context.Context, s *session) error {
			p := newPrinter(ctx, s.state)
			out := cmd.OutOrStdout()

			last := client.ConnectionState("")
			report := func(st client.HealthStatus) {
				if st.State == client.ConnectionChecking || st.State == last {
					return
				}
				last = st.State
				line := fmt.Sprintf("%s %s %s", p.dim(st.CheckedAt.Format(time.TimeOnly)), p.connection(st.State), s.client.BaseURL())
				if st.Error != "" {
					line += " " + p.bad(st.Error)
				}
				fmt.Fprintln(out, line)
			}

			monitor := client.NewHealthMonitor(s.client, interval, report)
			if !watch {
				if st := monitor.Check(ctx); st.State != client.ConnectionConnected {
					return errors.New("backend is unreachable")
				}
				return nil
			}

			if limit > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, limit)
				defer cancel()
			}
			monitor.Run(ctx)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().BoolP("watch", "w", false, "keep checking until interrupted")
	healthCmd.Flags().Duration("interval", client.DefaultHealthInterval, "interval between checks in watch mode")
	healthCmd.Flags().Duration("for", 0, "stop watching after this long (0 watches forever)")
}
