// Package mode defines the output modes of the VM builder.
package mode

import (
	"fmt"
	"strings"
)

// Mode is the output format that the generated code is emitted in.
type Mode int

// Available output modes, in the order they are listed in the usage output.
const (
	ELFAsm  Mode = iota // assembly text for ELF targets
	COFFAsm             // assembly text for COFF targets
	MachAsm             // assembly text for Mach-O targets
	PEObj               // native COFF object file
	Raw                 // raw machine code bytes
	BCDef               // C array of bytecode offsets
)

// Family is the object-format family of a mode.
type Family int

// Object-format families.
const (
	FamilyNone Family = iota // no object format involved
	FamilyELF
	FamilyCOFF
	FamilyMachO
)

var names = [...]string{
	ELFAsm:  "elfasm",
	COFFAsm: "coffasm",
	MachAsm: "machasm",
	PEObj:   "peobj",
	Raw:     "raw",
	BCDef:   "bcdef",
}

// All returns all modes in declaration order.
func All() []Mode {
	modes := make([]Mode, len(names))
	for i := range names {
		modes[i] = Mode(i)
	}
	return modes
}

// Names returns the names of all modes in declaration order.
func Names() []string {
	return names[:]
}

// Parse returns the mode matching the given name.
func Parse(name string) (Mode, error) {
	for _, m := range All() {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unsupported mode '%s', valid modes: %s", name, strings.Join(names[:], ", "))
}

// String returns the name of the mode.
func (m Mode) String() string {
	if m < 0 || int(m) >= len(names) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return names[m]
}

// Binary returns whether the output of the mode is binary data.
func (m Mode) Binary() bool {
	return m == Raw || m == PEObj
}

// Family returns the object-format family of the mode.
func (m Mode) Family() Family {
	switch m {
	case ELFAsm:
		return FamilyELF
	case COFFAsm, PEObj:
		return FamilyCOFF
	case MachAsm:
		return FamilyMachO
	default:
		return FamilyNone
	}
}
