// Package gas implements an emitter that writes the interpreter as GNU
// assembler source for ELF, COFF and Mach-O object files.
package gas

import (
	"fmt"
	"io"

	"github.com/retroenv/buildvm/internal/emitter"
	"github.com/retroenv/buildvm/internal/mode"
	"github.com/retroenv/buildvm/internal/program"
	"github.com/retroenv/buildvm/internal/reloc"
	"github.com/retroenv/buildvm/internal/writer"
)

const (
	codeAlignment = 4 // as power of 2
	fieldSize     = 4
)

// File writes a program as assembler source.
type File struct {
	app    *program.Program
	family mode.Family
	writer *writer.Writer

	pos   int32 // code offset of the next byte to write
	reloc int   // index of the next relocation to write
}

// New returns a new assembler source writer for the object file family of
// the program mode.
func New(app *program.Program, w io.Writer) emitter.Emitter {
	return &File{
		app:    app,
		family: app.Mode.Family(),
		writer: writer.New(w, writer.Options{DirectivePrefix: "\t"}),
	}
}

// Write writes the code with all symbols and relocations.
func (f *File) Write() error {
	if f.family == mode.FamilyNone {
		return fmt.Errorf("mode %s is not an assembler source mode", f.app.Mode)
	}

	if err := f.writeHeader(); err != nil {
		return err
	}

	for i, sym := range f.app.NamedSymbols() {
		if err := f.writeCode(sym.Offset); err != nil {
			return err
		}
		if err := f.writeSymbol(sym.Name, f.app.SymbolSize(i), true); err != nil {
			return fmt.Errorf("writing symbol '%s': %w", sym.Name, err)
		}
	}
	if err := f.writeCode(f.app.CodeSize()); err != nil {
		return err
	}

	return f.writeFooter()
}

func (f *File) writeHeader() error {
	if err := f.writer.Directive(".text"); err != nil {
		return err
	}
	if err := f.writer.Directive(".p2align %d", codeAlignment); err != nil {
		return err
	}
	if err := f.writeSymbol(f.app.BeginSymbol, 0, false); err != nil {
		return fmt.Errorf("writing begin symbol: %w", err)
	}
	return nil
}

func (f *File) writeFooter() error {
	if f.family != mode.FamilyELF {
		return nil
	}
	// mark the stack as not executable
	if err := f.writer.EmptyLine(); err != nil {
		return err
	}
	return f.writer.Directive(`.section .note.GNU-stack,"",@progbits`)
}

// writeSymbol writes an exported symbol with the visibility directives of
// the object file family.
func (f *File) writeSymbol(name string, size int32, function bool) error {
	if err := f.writer.EmptyLine(); err != nil {
		return err
	}

	var directives []string
	switch f.family {
	case mode.FamilyELF:
		symType := "object"
		if function {
			symType = "function"
		}
		directives = []string{
			".globl " + name,
			".hidden " + name,
			fmt.Sprintf(".type %s, @%s", name, symType),
			fmt.Sprintf(".size %s, %d", name, size),
		}

	case mode.FamilyCOFF:
		directives = []string{".globl " + name}
		if function {
			directives = append(directives, fmt.Sprintf(".def %s; .scl 3; .type 32; .endef", name))
		}

	case mode.FamilyMachO:
		directives = []string{
			".private_extern " + name,
			".no_dead_strip " + name,
		}

	default:
	}

	for _, directive := range directives {
		if err := f.writer.Directive("%s", directive); err != nil {
			return err
		}
	}
	return f.writer.Label(name)
}

// writeCode writes the code up to the end offset, replacing the fields of
// relocations by references to their symbols.
func (f *File) writeCode(end int32) error {
	relocs := f.app.Relocs
	for f.pos < end {
		if f.reloc < len(relocs) && relocs[f.reloc].Offset < end {
			r := relocs[f.reloc]
			if err := f.writer.BundleDataWrites(f.app.Code[f.pos:r.Offset]); err != nil {
				return err
			}
			if err := f.writeRelocation(r); err != nil {
				return err
			}
			f.pos = r.Offset + fieldSize
			f.reloc++
			continue
		}

		if err := f.writer.BundleDataWrites(f.app.Code[f.pos:end]); err != nil {
			return err
		}
		f.pos = end
	}
	return nil
}

func (f *File) writeRelocation(r reloc.Relocation) error {
	name := f.app.RelocSymbols[r.Symbol].Name
	switch r.Kind {
	case reloc.Abs32:
		return f.writer.Directive(".long %s", name)
	case reloc.Rel32:
		return f.writer.Directive(".long %s-.-4", name)
	default:
		return fmt.Errorf("unsupported relocation kind %s at offset %d", r.Kind, r.Offset)
	}
}
