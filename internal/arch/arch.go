// Package arch contains types used for multi architecture support.
// It acts as a bridge between the build pipeline and the architecture
// specific code that encodes the interpreter.
package arch

import (
	"github.com/retroenv/buildvm/internal/reloc"
	"github.com/retroenv/buildvm/internal/target"
)

// ExternFunc is called by the backend for every reference to an external
// symbol while the code is encoded. It returns the value to embed in the
// code at the referencing field.
type ExternFunc func(offset int32, index int, kind reloc.Kind) (int32, error)

// Names contains the static name tables of a backend.
type Names struct {
	PCPrefix     string // prefix of instruction labels
	GlobalPrefix string // prefix of global labels

	Instructions []string // instruction names, indexed by instruction number
	Globals      []string // global label names, indexed by global number
	Externs      []string // external symbol names, indexed by extern number
}

// Backend encodes the interpreter of the virtual machine for one target.
type Backend interface {
	// Target returns the target the backend encodes code for.
	Target() target.Target
	// Names returns the static name tables of the backend.
	Names() Names
	// Build describes the interpreter as a list of encoder actions.
	Build() error
	// Link resolves all internal references and returns the code size.
	// The returned error is a *LinkError if the actions are inconsistent.
	Link() (int, error)
	// Encode writes the machine code into the buffer that has to be of the
	// linked size. References to external symbols are passed to the extern function.
	Encode(code []byte, extern ExternFunc) error
	// PCLabel returns the code offset of the instruction handler.
	PCLabel(instruction int) (int32, bool)
	// Global returns the code offset of the global label.
	Global(index int) (int32, bool)
	// Free releases the action list.
	Free()
}
