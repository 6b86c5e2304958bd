// Package mocks provides mock implementations of arch interfaces for testing.
package mocks

import (
	"encoding/binary"

	"github.com/retroenv/buildvm/internal/arch"
	"github.com/retroenv/buildvm/internal/reloc"
	"github.com/retroenv/buildvm/internal/target"
)

var _ arch.Backend = &Backend{}

// Fill is the byte the mock code consists of.
const Fill = 0x90

// ExternRef is a scripted reference to an external symbol.
type ExternRef struct {
	Offset int32
	Index  int
	Kind   reloc.Kind
}

// Backend is a scripted implementation of arch.Backend. Label offsets that
// are negative are reported as undefined.
type Backend struct {
	TargetValue target.Target
	NamesValue  arch.Names

	Size          int
	PCOffsets     []int32
	GlobalOffsets []int32
	Externs       []ExternRef

	BuildErr error
	LinkErr  error

	Built bool
	Freed bool
}

// NewBackend returns a mock backend for a 64 bit x86 target with the given
// instruction and global names.
func NewBackend(size int, instructions, globals, externs []string) *Backend {
	return &Backend{
		TargetValue: target.Target{Arch: target.X64, WordSize: 64},
		NamesValue: arch.Names{
			PCPrefix:     "ravi_BC_",
			GlobalPrefix: "ravi_",
			Instructions: instructions,
			Globals:      globals,
			Externs:      externs,
		},
		Size:          size,
		PCOffsets:     make([]int32, len(instructions)),
		GlobalOffsets: make([]int32, len(globals)),
	}
}

func (b *Backend) Target() target.Target {
	return b.TargetValue
}

func (b *Backend) Names() arch.Names {
	return b.NamesValue
}

func (b *Backend) Build() error {
	b.Built = true
	return b.BuildErr
}

func (b *Backend) Link() (int, error) {
	if b.LinkErr != nil {
		return 0, b.LinkErr
	}
	return b.Size, nil
}

func (b *Backend) Encode(code []byte, extern arch.ExternFunc) error {
	if len(code) != b.Size {
		return &arch.LinkError{Status: arch.StatusPhase}
	}
	for i := range code {
		code[i] = Fill
	}
	for _, ref := range b.Externs {
		value, err := extern(ref.Offset, ref.Index, ref.Kind)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(code[ref.Offset:], uint32(value))
	}
	return nil
}

func (b *Backend) PCLabel(instruction int) (int32, bool) {
	return offset(b.PCOffsets, instruction)
}

func (b *Backend) Global(index int) (int32, bool) {
	return offset(b.GlobalOffsets, index)
}

func (b *Backend) Free() {
	b.Freed = true
}

func offset(offsets []int32, n int) (int32, bool) {
	if n < 0 || n >= len(offsets) || offsets[n] < 0 {
		return 0, false
	}
	return offsets[n], true
}
