package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage locally stored settings",
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key <api-key>",
	Short: "Store the API key sent to the backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			if err := s.state.SetAPIKey(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key saved")
			return nil
		})
	},
}

var configClearKeyCmd = &cobra.Command{
	Use:   "clear-key",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			if err := s.state.ClearAPIKey(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key cleared")
			return nil
		})
	},
}

var configSetThemeCmd = &cobra.Command{
	Use:       "set-theme <light|dark>",
	Short:     "Choose the output color theme",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"light", "dark"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			if err := s.state.SetTheme(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Theme set to %s\n", strings.ToLower(args[0]))
			return nil
		})
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			key, err := s.state.APIKey(ctx)
			if err != nil {
				return err
			}
			theme, err := s.state.Theme(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "url\t%s\n", s.client.BaseURL())
			fmt.Fprintf(w, "api key\t%s\n", maskKey(key))
			fmt.Fprintf(w, "theme\t%s\n", theme)
			fmt.Fprintf(w, "state\t%s\n", statePath())
			fmt.Fprintf(w, "poll interval\t%s\n", viper.GetDuration("poll-interval"))
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetKeyCmd, configClearKeyCmd, configSetThemeCmd, configShowCmd)
}

// maskKey keeps the last four characters of key.
func maskKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 4:
		return strings.Repeat("*", len(key))
	default:
		return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
	}
}
