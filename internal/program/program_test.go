package program

import (
	"testing"

	"github.com/retroenv/buildvm/internal/mode"
	"github.com/retroenv/buildvm/internal/symbols"
	"github.com/retroenv/buildvm/internal/target"
	"github.com/retroenv/retrogolib/assert"
)

func TestSymbolSize(t *testing.T) {
	p := New(mode.Raw, target.Target{Arch: target.X64, WordSize: 64}, []string{"vm_entry"})
	p.Code = make([]byte, 100)
	p.Symbols = []symbols.Symbol{
		{Offset: 0, Name: "a"},
		{Offset: 10, Name: "b"},
		{Offset: 10, Name: "c"},
		{Offset: 100},
	}

	assert.Equal(t, int32(100), p.CodeSize())
	assert.Len(t, p.GlobalOffsets, 1)
	assert.True(t, p.RelocSymbols == nil)
	assert.Equal(t, int32(10), p.SymbolSize(0))
	assert.Equal(t, int32(0), p.SymbolSize(1))
	assert.Equal(t, int32(90), p.SymbolSize(2))
	assert.Equal(t, int32(0), p.SymbolSize(3))
	assert.Equal(t, int32(0), p.SymbolSize(-1))
	assert.Len(t, p.NamedSymbols(), 3)
}

func TestNamedSymbolsEmpty(t *testing.T) {
	var p Program
	assert.Len(t, p.NamedSymbols(), 0)
}
