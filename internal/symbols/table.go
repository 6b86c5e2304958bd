// Package symbols builds the sorted symbol table of the generated code.
package symbols

import "strings"

// InternalSuffix marks global labels that are compiler internal aliases
// and must not be exported.
const InternalSuffix = "_Z"

// Symbol is a named offset in the generated code.
type Symbol struct {
	Offset int32
	Name   string // decorated name, empty for the sentinel
}

// Table is a symbol table that is kept sorted ascending by offset.
// Symbols with equal offsets keep their insertion order.
type Table struct {
	symbols []Symbol
}

// New returns a table with preallocated space for the given number of symbols.
func New(capacity int) *Table {
	return &Table{
		symbols: make([]Symbol, 0, capacity),
	}
}

// Insert adds a symbol after the last symbol with an offset lower or equal
// to the given offset.
func (t *Table) Insert(offset int32, name string) {
	i := len(t.symbols)
	t.symbols = append(t.symbols, Symbol{})
	for i > 0 {
		if t.symbols[i-1].Offset <= offset {
			break
		}
		t.symbols[i] = t.symbols[i-1]
		i--
	}
	t.symbols[i] = Symbol{Offset: offset, Name: name}
}

// Symbols returns the sorted symbols.
func (t *Table) Symbols() []Symbol {
	return t.symbols
}

// Len returns the number of symbols in the table.
func (t *Table) Len() int {
	return len(t.symbols)
}

// IsInternal returns whether the raw global label name uses the internal
// linkage naming convention.
func IsInternal(name string) bool {
	return len(name) >= len(InternalSuffix) && strings.HasSuffix(name, InternalSuffix)
}
