// Package detector handles target architecture detection.
package detector

import (
	"fmt"
	"runtime"

	"github.com/retroenv/buildvm/internal/options"
	"github.com/retroenv/buildvm/internal/target"
	"github.com/retroenv/retrogolib/log"
)

// Detector handles target architecture detection from options and the host.
type Detector struct {
	logger *log.Logger
	goarch string
}

// New creates a new target detector for the host architecture.
func New(logger *log.Logger) *Detector {
	return &Detector{
		logger: logger,
		goarch: runtime.GOARCH,
	}
}

// Detect determines the target architecture from options or the host.
// An explicitly specified architecture has to be supported by a backend,
// otherwise the host architecture is used with x64 as fallback.
func (d *Detector) Detect(opts options.Program) (target.Target, error) {
	if opts.Arch != "" {
		t, err := target.FromString(opts.Arch)
		if err != nil {
			return target.Target{}, err
		}
		if !t.IsX86Family() {
			return target.Target{}, fmt.Errorf("no backend available for architecture '%s'", t.Arch)
		}
		return t, nil
	}

	t := target.FromGOARCH(d.goarch)
	if !t.IsX86Family() {
		t = target.FromGOARCH("amd64")
	}
	d.logger.Debug("Auto-detected target",
		log.Stringer("target", t),
		log.String("host", d.goarch))
	return t, nil
}
