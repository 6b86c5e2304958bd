// Package main implements the builder of the interpreter machine code of the
// virtual machine.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/retroenv/buildvm/internal/arch"
	"github.com/retroenv/buildvm/internal/cli"
	"github.com/retroenv/buildvm/internal/config"
	"github.com/retroenv/buildvm/internal/fileprocessor"
	"github.com/retroenv/buildvm/internal/pipeline"
	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/log"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

const (
	exitFailure         = 1
	exitUndefinedGlobal = 2
)

func main() {
	ctx := app.Context()

	opts, buildOpts, err := cli.ParseFlags()
	if err != nil {
		logger := config.CreateLogger(opts.Debug, opts.Quiet)
		var usageErr *cli.UsageError
		if errors.As(err, &usageErr) {
			fileprocessor.PrintBanner(logger, opts, version, commit, date)
			usageErr.ShowUsage()
		} else {
			logger.Error(err.Error())
		}
		os.Exit(exitFailure)
	}

	logger := config.CreateLogger(opts.Debug, opts.Quiet)
	fileprocessor.PrintBanner(logger, opts, version, commit, date)

	if err := fileprocessor.ProcessFile(ctx, logger, opts, buildOpts); err != nil {
		// Handle context cancellation (Ctrl+C) gracefully
		if errors.Is(err, context.Canceled) {
			logger.Info("Operation cancelled")
			os.Exit(exitFailure)
		}
		logger.Error("Building failed", log.Err(err))
		os.Exit(reportError(err))
	}
}

// reportError prints the diagnostic line of a failed build and returns the
// exit code for the error.
func reportError(err error) int {
	var (
		linkErr   *arch.LinkError
		globalErr *pipeline.UndefinedGlobalError
	)

	switch {
	case errors.As(err, &globalErr):
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", globalErr)
		return exitUndefinedGlobal
	case errors.As(err, &linkErr):
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", linkErr)
	default:
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	return exitFailure
}
