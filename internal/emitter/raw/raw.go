// Package raw implements an emitter that writes the machine code verbatim.
package raw

import (
	"fmt"
	"io"

	"github.com/retroenv/buildvm/internal/emitter"
	"github.com/retroenv/buildvm/internal/program"
)

// File writes the machine code of a program.
type File struct {
	app    *program.Program
	writer io.Writer
}

// New returns a new raw code writer.
func New(app *program.Program, writer io.Writer) emitter.Emitter {
	return &File{
		app:    app,
		writer: writer,
	}
}

// Write writes the machine code.
func (f *File) Write() error {
	if _, err := f.writer.Write(f.app.Code); err != nil {
		return fmt.Errorf("writing code: %w", err)
	}
	return nil
}
