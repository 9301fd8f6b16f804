package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/viper"

	"github.com/cuongbtq/invoice-ocr/internal/appstate"
	"github.com/cuongbtq/invoice-ocr/internal/client"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorDim   = "\033[2m"
)

// palette holds the accent colors of a theme.
type palette struct {
	ok, bad, pending, info string
}

var palettes = map[appstate.Theme]palette{
	appstate.ThemeLight: {ok: "\033[32m", bad: "\033[31m", pending: "\033[33m", info: "\033[36m"},
	appstate.ThemeDark:  {ok: "\033[92m", bad: "\033[91m", pending: "\033[93m", info: "\033[96m"},
}

// printer writes themed output. A zero printer prints without colors.
type printer struct {
	colors  palette
	enabled bool
}

func newPrinter(ctx context.Context, st *appstate.State) printer {
	if viper.GetBool("no-color") {
		return printer{}
	}
	theme, err := st.Theme(ctx)
	if err != nil {
		theme = appstate.ThemeLight
	}
	return printer{colors: palettes[theme], enabled: true}
}

func (p printer) paint(color, s string) string {
	if !p.enabled || color == "" {
		return s
	}
	return color + s + colorReset
}

func (p printer) bold(s string) string { return p.paint(colorBold, s) }
func (p printer) dim(s string) string  { return p.paint(colorDim, s) }
func (p printer) bad(s string) string  { return p.paint(p.colors.bad, s) }
func (p printer) info(s string) string { return p.paint(p.colors.info, s) }

func (p printer) jobStatus(s client.JobStatus) string {
	switch s {
	case client.JobStatusSucceeded:
		return p.paint(p.colors.ok, "✓ "+string(s))
	case client.JobStatusFailed:
		return p.paint(p.colors.bad, "✗ "+string(s))
	default:
		return p.paint(p.colors.pending, "⏳ "+string(s))
	}
}

func (p printer) trainingStatus(s client.TrainingStatus) string {
	switch s {
	case client.TrainingStatusReady:
		return p.paint(p.colors.ok, "✓ "+string(s))
	case client.TrainingStatusFailed:
		return p.paint(p.colors.bad, "✗ "+string(s))
	case client.TrainingStatusTraining:
		return p.paint(p.colors.pending, "⏳ "+string(s))
	default:
		return p.paint(p.colors.info, "◯ "+string(s))
	}
}

func (p printer) connection(s client.ConnectionState) string {
	switch s {
	case client.ConnectionConnected:
		return p.paint(p.colors.ok, "● "+string(s))
	case client.ConnectionDisconnected:
		return p.paint(p.colors.bad, "● "+string(s))
	default:
		return p.paint(p.colors.pending, "○ "+string(s))
	}
}

// reportError writes the structured result of err and returns err unchanged.
// A failed training outcome has already been reported and is passed through.
func (p printer) reportError(w io.Writer, err error) error {
	if err == nil || errors.Is(err, ErrTrainingFailed) {
		return err
	}
	r := client.ResultOf(err)
	fmt.Fprintf(w, "%s %s\n", p.bad("✗ "+r.Kind), r.Message)
	return err
}
