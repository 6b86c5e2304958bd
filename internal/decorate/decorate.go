// Package decorate maps raw symbol names to the names that are exported
// in the object-format family of the selected output mode.
package decorate

import (
	"strings"

	"github.com/retroenv/buildvm/internal/mode"
	"github.com/retroenv/buildvm/internal/target"
)

// LegacyStdcall is the only stdcall symbol that keeps its underscore prefix
// and its argument size suffix in 32 bit COFF output.
const LegacyStdcall = "RtlUnwind"

// Func decorates a raw symbol name.
type Func func(raw string) string

// Decorate returns the exported name of the raw symbol name for the given
// output mode and target.
func Decorate(m mode.Mode, t target.Target, raw string) string {
	name := prefix(m, t) + raw

	at, ok := stdcallSuffix(name)
	if !ok {
		return name
	}

	if t.IsX86Family() && !t.Is64Bit() && (m == mode.COFFAsm || m == mode.PEObj) {
		base := raw[:strings.LastIndexByte(raw, '@')]
		if base == LegacyStdcall {
			return name
		}
		// fastcall naming, the suffix stays
		return "@" + name[1:]
	}

	return name[:at]
}

// For returns a decoration function bound to the mode and target.
func For(m mode.Mode, t target.Target) Func {
	return func(raw string) string {
		return Decorate(m, t, raw)
	}
}

// prefix returns the leading marker character required by the mode.
func prefix(m mode.Mode, t target.Target) string {
	if t.Is64Bit() {
		if m == mode.MachAsm {
			return "_"
		}
		return ""
	}
	if m != mode.ELFAsm {
		return "_"
	}
	return ""
}

// stdcallSuffix returns the index of a trailing "@<digits>" suffix.
func stdcallSuffix(name string) (int, bool) {
	at := strings.LastIndexByte(name, '@')
	if at < 0 || at == len(name)-1 {
		return 0, false
	}
	for _, c := range name[at+1:] {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	return at, true
}
