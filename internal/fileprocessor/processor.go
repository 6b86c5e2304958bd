// Package fileprocessor handles output file handling and processing operations
package fileprocessor

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/retroenv/buildvm/internal/mode"
	"github.com/retroenv/buildvm/internal/options"
	"github.com/retroenv/buildvm/internal/pipeline"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"
)

// ProcessFile handles the complete build workflow for one output file
func ProcessFile(ctx context.Context, logger *log.Logger, opts options.Program, buildOpts options.Build) error {
	writer := createWriter(opts)
	if nc, ok := writer.(*nopCloser); ok {
		warnBinaryTerminal(logger, buildOpts.Mode, nc.Writer)
	}

	pipe := pipeline.New(logger)
	_, err := pipe.Execute(ctx, opts, buildOpts, writer)
	if closeErr := writer.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("closing output file: %w", closeErr)
	}
	return err
}

// PrintBanner prints application version information
func PrintBanner(logger *log.Logger, opts options.Program, version, commit, date string) {
	if opts.Quiet {
		return
	}

	logger.Info("buildvm - interpreter builder", log.String("version", buildinfo.Version(version, commit, date)))
}

// warnBinaryTerminal warns when the output of a binary mode is written to a
// terminal. It returns whether a warning was logged.
func warnBinaryTerminal(logger *log.Logger, m mode.Mode, w io.Writer) bool {
	if !m.Binary() {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return false
	}
	logger.Warn("Writing binary output to a terminal, use -o to write to a file", log.Stringer("mode", m))
	return true
}

func createWriter(opts options.Program) io.WriteCloser {
	if opts.Output == "" || opts.Output == options.StdStream {
		return &nopCloser{os.Stdout}
	}
	return &outputFile{name: opts.Output}
}

// outputFile creates the file on the first write, a failing build does not
// leave an empty or partial output file behind.
type outputFile struct {
	name string
	file *os.File
}

func (f *outputFile) Write(p []byte) (int, error) {
	if f.file == nil {
		file, err := os.Create(f.name)
		if err != nil {
			return 0, fmt.Errorf("creating output file %s: %w", f.name, err)
		}
		f.file = file
	}
	n, err := f.file.Write(p)
	if err != nil {
		return n, fmt.Errorf("writing output file %s: %w", f.name, err)
	}
	return n, nil
}

func (f *outputFile) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}

// nopCloser wraps an io.Writer to add a no-op Close method
type nopCloser struct {
	io.Writer
}

func (nc *nopCloser) Close() error {
	return nil
}
