package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cuongbtq/invoice-ocr/internal/appstate"
	"github.com/cuongbtq/invoice-ocr/internal/client"
	"github.com/cuongbtq/invoice-ocr/internal/poller"
	"github.com/cuongbtq/invoice-ocr/shared/logger"
)

const envPrefix = "OCRCTL"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ocrctl",
	Short: "ocrctl submits documents to the OCR backend and tracks the results",
	Long: `ocrctl is the command-line client of the invoice OCR backend.

Common workflows:

  Check the backend:
    ocrctl health --watch

  Extract fields from an invoice:
    ocrctl extract invoice.pdf --model default

  Train a model and wait for it:
    ocrctl train a.pdf b.png --name "Receipts" --description "Store receipts" --wait

  Review and export past extractions:
    ocrctl history --status SUCCEEDED
    ocrctl history export --format xlsx --out history.xlsx

Configuration:
  Flags can also be set in $HOME/.ocrctl.yaml or through the environment:
    OCRCTL_URL        Backend URL (default: ` + client.DefaultBaseURL + `)
    OCRCTL_API_KEY    API key sent as a bearer token`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.Root().PersistentFlags())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		// Search config in home directory with name ".ocrctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".ocrctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "OCRCTL_VARNAME"
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ocrctl.yaml)")
	flags.String("url", client.DefaultBaseURL, "OCR backend URL")
	flags.StringP("api-key", "k", "", "API key (defaults to the stored key)")
	flags.String("state", "", "state database path (default is $HOME/.ocrctl/state.db)")
	flags.Duration("poll-interval", poller.DefaultInterval, "interval between training status polls")
	flags.Int("max-poll-failures", poller.DefaultMaxConsecutiveFailures, "consecutive poll failures before giving up")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.Bool("no-color", false, "disable colored output")
}

// openState opens the persistent application state. Tests replace it.
var openState = func(ctx context.Context, path string) (*appstate.State, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	storage, err := appstate.OpenSQLite(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return appstate.New(storage), storage.Close, nil
}

func statePath() string {
	if p := viper.GetString("state"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ocrctl", "state.db")
	}
	return filepath.Join(home, ".ocrctl", "state.db")
}

// session bundles what most commands need.
type session struct {
	state  *appstate.State
	client *client.Client
	logger *slog.Logger
}

// withSession opens the state and a client and runs fn.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()

	st, closeState, err := openState(ctx, statePath())
	if err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}
	defer closeState()

	apiKey := viper.GetString("api-key")
	if apiKey == "" {
		if apiKey, err = st.APIKey(ctx); err != nil {
			return fmt.Errorf("failed to read stored API key: %w", err)
		}
	}

	log, err := logger.New(&logger.Config{
		Level:      viper.GetString("log-level"),
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.Kitchen,
		NoColor:    viper.GetBool("no-color"),
	})
	if err != nil {
		return err
	}

	c, err := client.New(client.Config{
		BaseURL: viper.GetString("url"),
		APIKey:  apiKey,
		Logger:  log.Logger,
	})
	if err != nil {
		return err
	}

	return fn(ctx, &session{state: st, client: c, logger: log.With("url", c.BaseURL()).Logger})
}

func pollerConfig(s *session) poller.Config {
	return poller.Config{
		Interval:               viper.GetDuration("poll-interval"),
		MaxConsecutiveFailures: viper.GetInt("max-poll-failures"),
		Logger:                 s.logger,
	}
}
