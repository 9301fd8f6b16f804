// Package main is the entry point for ocrctl, the terminal client of the OCR backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/invoice-ocr/cmd/ocrctl/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
