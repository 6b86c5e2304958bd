// Package config handles application configuration and setup
package config

import (
	"os"

	"github.com/retroenv/retrogolib/log"
)

// CreateLogger creates a logger with appropriate settings. Debug logging
// includes the build phases, quiet mode only reports errors. Log output goes
// to stderr, stdout is reserved for the generated output.
func CreateLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Output = os.Stderr
	switch {
	case debug:
		cfg.Level = log.DebugLevel
	case quiet:
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}
