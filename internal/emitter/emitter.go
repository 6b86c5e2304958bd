// Package emitter defines the interface of the output writers that consume
// a built program.
package emitter

import (
	"io"

	"github.com/retroenv/buildvm/internal/program"
)

// Emitter writes a built program in one output format.
// Constructors need to return this shared interface so that they can be
// assigned to a Constructor variable.
type Emitter interface {
	Write() error
}

// Constructor creates an emitter that writes the program to the writer.
type Constructor func(app *program.Program, writer io.Writer) Emitter
