// Package target describes the machine that the generated code runs on.
package target

import (
	"fmt"
	"strings"
)

// Arch is a target architecture.
type Arch string

// Supported target architectures.
const (
	X86   Arch = "x86"
	X64   Arch = "x64"
	ARM   Arch = "arm"
	ARM64 Arch = "arm64"
	PPC   Arch = "ppc"
	MIPS  Arch = "mips"
)

// Target is a target architecture together with its word size.
type Target struct {
	Arch     Arch
	WordSize int // in bits, 32 or 64
}

var targets = map[Arch]Target{
	X86:   {Arch: X86, WordSize: 32},
	X64:   {Arch: X64, WordSize: 64},
	ARM:   {Arch: ARM, WordSize: 32},
	ARM64: {Arch: ARM64, WordSize: 64},
	PPC:   {Arch: PPC, WordSize: 32},
	MIPS:  {Arch: MIPS, WordSize: 32},
}

// FromString returns the target for the given architecture name.
func FromString(name string) (Target, error) {
	t, ok := targets[Arch(strings.ToLower(name))]
	if !ok {
		return Target{}, fmt.Errorf("unsupported architecture '%s'", name)
	}
	return t, nil
}

// FromGOARCH maps a Go architecture name to a target.
// Unknown architectures default to x64.
func FromGOARCH(goarch string) Target {
	switch goarch {
	case "386":
		return targets[X86]
	case "arm":
		return targets[ARM]
	case "arm64":
		return targets[ARM64]
	case "ppc":
		return targets[PPC]
	case "mips", "mipsle":
		return targets[MIPS]
	default:
		return targets[X64]
	}
}

// Is64Bit returns whether the target uses 64 bit words.
func (t Target) Is64Bit() bool {
	return t.WordSize == 64
}

// IsX86Family returns whether the target is a 32 or 64 bit x86 CPU.
func (t Target) IsX86Family() bool {
	return t.Arch == X86 || t.Arch == X64
}

func (t Target) String() string {
	return string(t.Arch)
}
