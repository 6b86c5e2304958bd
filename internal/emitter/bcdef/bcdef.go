// Package bcdef implements an emitter that writes the code offsets of the
// instruction handlers as a C array definition.
package bcdef

import (
	"fmt"
	"io"
	"strings"

	"github.com/retroenv/buildvm/internal/emitter"
	"github.com/retroenv/buildvm/internal/program"
)

const (
	header    = "/* This is a generated file. DO NOT EDIT! */\n\n"
	arrayOpen = "RAVI_DATADEF const uint16_t lj_bc_ofs[] = {\n"
	arrayEnd  = "\n};\n"
)

// File writes the instruction handler offset table of a program.
type File struct {
	app    *program.Program
	writer io.Writer
}

// New returns a new offset table writer.
func New(app *program.Program, writer io.Writer) emitter.Emitter {
	return &File{
		app:    app,
		writer: writer,
	}
}

// Write writes the offset table.
func (f *File) Write() error {
	offsets := make([]string, len(f.app.BCOffsets))
	for i, offset := range f.app.BCOffsets {
		offsets[i] = fmt.Sprintf("%d", offset)
	}

	if _, err := io.WriteString(f.writer, header+arrayOpen); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := io.WriteString(f.writer, strings.Join(offsets, ",\n")); err != nil {
		return fmt.Errorf("writing offsets: %w", err)
	}
	if _, err := io.WriteString(f.writer, arrayEnd); err != nil {
		return fmt.Errorf("writing array end: %w", err)
	}
	return nil
}
