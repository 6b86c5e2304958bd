// Package peobj implements an emitter that writes the interpreter as a COFF
// object file for Windows linkers.
package peobj

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/retroenv/buildvm/internal/emitter"
	"github.com/retroenv/buildvm/internal/program"
	"github.com/retroenv/buildvm/internal/reloc"
	"github.com/retroenv/buildvm/internal/target"
)

const (
	fileHeaderSize    = 20
	sectionHeaderSize = 40
	relocationSize    = 10
	symbolSize        = 18

	sectionName = ".text"

	symTypeFunction = 0x20
	symClassExtern  = 2
	symClassStatic  = 3

	// symbols before the relocation symbols: the section symbol and its aux record
	firstRelocSymbol = 2

	// debug/pe does not define the alignment flags and relocation types
	imageScnAlign16Bytes = 0x00500000
	relAMD64Addr32       = 0x0002
	relAMD64Rel32        = 0x0004
	relI386Dir32         = 0x0006
	relI386Rel32         = 0x0014

	sectionCharacteristics = pe.IMAGE_SCN_CNT_CODE | imageScnAlign16Bytes |
		pe.IMAGE_SCN_MEM_EXECUTE | pe.IMAGE_SCN_MEM_READ
)

// File writes a program as COFF object file.
type File struct {
	app    *program.Program
	writer io.Writer

	strtab bytes.Buffer // string table without the leading size field
}

// New returns a new COFF object file writer.
func New(app *program.Program, writer io.Writer) emitter.Emitter {
	return &File{
		app:    app,
		writer: writer,
	}
}

// Write writes the object file.
func (f *File) Write() error {
	machine, relocTypes, err := machineTypes(f.app.Target)
	if err != nil {
		return err
	}

	codeSize := uint32(len(f.app.Code))
	relocOffset := uint32(fileHeaderSize+sectionHeaderSize) + codeSize
	symtabOffset := relocOffset + uint32(len(f.app.Relocs)*relocationSize)

	f.strtab.Reset()
	symbols, err := f.symbolTable()
	if err != nil {
		return err
	}

	buf := &bytes.Buffer{}
	header := pe.FileHeader{
		Machine:              machine,
		NumberOfSections:     1,
		PointerToSymbolTable: symtabOffset,
		NumberOfSymbols:      uint32(len(symbols)),
	}
	section := pe.SectionHeader32{
		SizeOfRawData:        codeSize,
		PointerToRawData:     fileHeaderSize + sectionHeaderSize,
		PointerToRelocations: relocOffset,
		NumberOfRelocations:  uint16(len(f.app.Relocs)),
		Characteristics:      sectionCharacteristics,
	}
	copy(section.Name[:], sectionName)

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("writing file header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, section); err != nil {
		return fmt.Errorf("writing section header: %w", err)
	}
	buf.Write(f.app.Code)

	for _, r := range f.app.Relocs {
		entry := pe.Reloc{
			VirtualAddress:   uint32(r.Offset),
			SymbolTableIndex: uint32(firstRelocSymbol + r.Symbol),
			Type:             relocTypes[r.Kind],
		}
		if err := binary.Write(buf, binary.LittleEndian, entry); err != nil {
			return fmt.Errorf("writing relocation: %w", err)
		}
	}

	for _, sym := range symbols {
		if err := binary.Write(buf, binary.LittleEndian, sym); err != nil {
			return fmt.Errorf("writing symbol: %w", err)
		}
	}

	if err := binary.Write(buf, binary.LittleEndian, uint32(f.strtab.Len()+4)); err != nil {
		return fmt.Errorf("writing string table size: %w", err)
	}
	buf.Write(f.strtab.Bytes())

	if _, err := f.writer.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing object file: %w", err)
	}
	return nil
}

// symbolTable returns the raw symbol records: the section symbol with its aux
// record, the relocation symbols, the begin symbol and all named symbols.
func (f *File) symbolTable() ([]any, error) {
	codeSize := uint32(len(f.app.Code))
	named := f.app.NamedSymbols()
	records := make([]any, 0, firstRelocSymbol+len(f.app.RelocSymbols)+1+len(named))

	records = append(records,
		f.symbol(sectionName, 0, 1, 0, symClassStatic, 1),
		pe.COFFSymbolAuxFormat5{
			Size:      codeSize,
			NumRelocs: uint16(len(f.app.Relocs)),
		},
	)

	for _, sym := range f.app.RelocSymbols {
		records = append(records, f.symbol(sym.Name, 0, 0, symTypeFunction, symClassExtern, 0))
	}

	records = append(records, f.symbol(f.app.BeginSymbol, 0, 1, 0, symClassExtern, 0))
	for _, sym := range named {
		if sym.Offset < 0 || uint32(sym.Offset) > codeSize {
			return nil, fmt.Errorf("symbol '%s' offset %d outside of code", sym.Name, sym.Offset)
		}
		records = append(records, f.symbol(sym.Name, uint32(sym.Offset), 1, symTypeFunction, symClassExtern, 0))
	}
	return records, nil
}

func (f *File) symbol(name string, value uint32, section int16, typ uint16, class, aux uint8) pe.COFFSymbol {
	sym := pe.COFFSymbol{
		Value:              value,
		SectionNumber:      section,
		Type:               typ,
		StorageClass:       class,
		NumberOfAuxSymbols: aux,
	}
	f.setName(&sym, name)
	return sym
}

// setName stores short names inline and longer ones in the string table.
func (f *File) setName(sym *pe.COFFSymbol, name string) {
	if len(name) <= len(sym.Name) {
		copy(sym.Name[:], name)
		return
	}
	offset := uint32(f.strtab.Len() + 4)
	binary.LittleEndian.PutUint32(sym.Name[4:], offset)
	f.strtab.WriteString(name)
	f.strtab.WriteByte(0)
}

func machineTypes(t target.Target) (uint16, map[reloc.Kind]uint16, error) {
	switch t.Arch {
	case target.X64:
		return pe.IMAGE_FILE_MACHINE_AMD64, map[reloc.Kind]uint16{
			reloc.Abs32: relAMD64Addr32,
			reloc.Rel32: relAMD64Rel32,
		}, nil
	case target.X86:
		return pe.IMAGE_FILE_MACHINE_I386, map[reloc.Kind]uint16{
			reloc.Abs32: relI386Dir32,
			reloc.Rel32: relI386Rel32,
		}, nil
	default:
		return 0, nil, fmt.Errorf("unsupported architecture '%s' for COFF objects", t.Arch)
	}
}
