// Package program represents the interpreter code and the metadata that the
// emitters need to write it for the downstream toolchain.
package program

import (
	"github.com/retroenv/buildvm/internal/mode"
	"github.com/retroenv/buildvm/internal/reloc"
	"github.com/retroenv/buildvm/internal/symbols"
	"github.com/retroenv/buildvm/internal/target"
)

// BeginSymbol is the raw name of the symbol at the start of the code.
const BeginSymbol = "vm_asm_begin"

// Program defines the built interpreter. It is filled by the build pipeline
// and only read by the emitters.
type Program struct {
	Mode   mode.Mode
	Target target.Target

	Code      []byte  // machine code, its length is the code size
	BCOffsets []int32 // code offset of every instruction handler

	GlobalNames   []string // raw global label names
	GlobalOffsets []int32  // indexed like GlobalNames

	Relocs       []reloc.Relocation
	RelocSymbols []reloc.Symbol // indexed by the local symbol id of a relocation

	Symbols     []symbols.Symbol // sorted by offset, closed by the sentinel
	BeginSymbol string           // decorated name of the code start symbol
}

// New returns a program for the given mode and target with a global offset
// table sized for the globals. The relocation symbols are set after encoding.
func New(m mode.Mode, t target.Target, globals []string) *Program {
	return &Program{
		Mode:          m,
		Target:        t,
		GlobalNames:   globals,
		GlobalOffsets: make([]int32, len(globals)),
	}
}

// CodeSize returns the size of the machine code in bytes.
func (p *Program) CodeSize() int32 {
	return int32(len(p.Code))
}

// SymbolSize returns the size of the code that the symbol table entry covers,
// which extends to the next entry.
func (p *Program) SymbolSize(i int) int32 {
	if i < 0 || i+1 >= len(p.Symbols) {
		return 0
	}
	return p.Symbols[i+1].Offset - p.Symbols[i].Offset
}

// NamedSymbols returns the symbol table without the closing sentinel.
func (p *Program) NamedSymbols() []symbols.Symbol {
	if len(p.Symbols) == 0 {
		return nil
	}
	return p.Symbols[:len(p.Symbols)-1]
}
