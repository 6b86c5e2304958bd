// Package options contains the program options.
package options

import (
	"github.com/retroenv/buildvm/internal/mode"
	"github.com/retroenv/buildvm/internal/reloc"
	"github.com/retroenv/buildvm/internal/symbols"
	"github.com/retroenv/buildvm/internal/target"
)

// StdStream is the output name that selects standard output.
const StdStream = "-"

// Parameters contains output and target options.
type Parameters struct {
	Mode   string `flag:"m" usage:"output mode: elfasm, coffasm, machasm, peobj, raw, bcdef"`
	Output string `flag:"o" usage:"output file name, - for stdout" default:"-"`
	Arch   string `flag:"a" usage:"target architecture: x64, x86 (default: host architecture)"`
}

// Flags contains behavior options.
type Flags struct {
	Exclude      string `flag:"exclude" usage:"comma separated instructions to omit from the symbol table"`
	AssembleTest bool   `flag:"verify" usage:"verify output by reassembling or parsing it and comparing the code"`
	Debug        bool   `flag:"debug" usage:"enable debug logging"`
	Quiet        bool   `flag:"q" usage:"quiet mode"`
}

// Program options of the builder.
type Program struct {
	Parameters
	Flags

	Inputs []string // positional arguments, accepted and ignored
}

// Build defines options to control the build pipeline.
type Build struct {
	Mode   mode.Mode
	Target target.Target

	RelocCapacity int            // maximum number of relocations
	Exclude       symbols.Policy // instructions to omit from the symbol table
}

// NewBuild returns build options with default settings.
func NewBuild(m mode.Mode, t target.Target) Build {
	return Build{
		Mode:          m,
		Target:        t,
		RelocCapacity: reloc.DefaultCapacity,
		Exclude:       symbols.ExcludeNone,
	}
}
