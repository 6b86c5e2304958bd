// Package writer implements common assembly file writing functionality.
package writer

import (
	"fmt"
	"io"
	"strings"
)

const dataBytesPerLine = 16

// Writer implements common assembly file writing functionality.
type Writer struct {
	options Options
	writer  io.Writer
}

// Options of the writer.
type Options struct {
	DirectivePrefix string // indentation of directives
}

// New creates a new writer.
func New(writer io.Writer, options Options) *Writer {
	return &Writer{
		options: options,
		writer:  writer,
	}
}

// BundleDataWrites bundles writes of data bytes to print dataBytesPerLine bytes per line.
func (w Writer) BundleDataWrites(data []byte) error {
	remaining := len(data)
	for i := 0; remaining > 0; {
		toWrite := min(remaining, dataBytesPerLine)

		buf := &strings.Builder{}
		if _, err := fmt.Fprintf(buf, "%s.byte ", w.options.DirectivePrefix); err != nil {
			return fmt.Errorf("writing data prefix: %w", err)
		}

		for j := range toWrite {
			if _, err := fmt.Fprintf(buf, "0x%02x,", data[i+j]); err != nil {
				return fmt.Errorf("writing data byte: %w", err)
			}
		}

		line := strings.TrimRight(buf.String(), ",")
		if _, err := fmt.Fprintf(w.writer, "%s\n", line); err != nil {
			return fmt.Errorf("writing data line: %w", err)
		}

		i += toWrite
		remaining -= toWrite
	}

	return nil
}

// Directive writes an indented assembler directive.
func (w Writer) Directive(format string, args ...any) error {
	if _, err := fmt.Fprintf(w.writer, w.options.DirectivePrefix+format+"\n", args...); err != nil {
		return fmt.Errorf("writing directive: %w", err)
	}
	return nil
}

// Label writes a label definition.
func (w Writer) Label(name string) error {
	if _, err := fmt.Fprintf(w.writer, "%s:\n", name); err != nil {
		return fmt.Errorf("writing label: %w", err)
	}
	return nil
}

// EmptyLine writes an empty line.
func (w Writer) EmptyLine() error {
	if _, err := fmt.Fprintln(w.writer); err != nil {
		return fmt.Errorf("writing line: %w", err)
	}
	return nil
}
