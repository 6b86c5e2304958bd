// Package dasm implements an action list encoder for hand written machine code.
//
// A backend describes its code as a list of actions: raw instruction bytes,
// label definitions and 32 bit fields that reference labels or external
// symbols. Link assigns offsets to all actions and verifies that every
// referenced label is defined, Encode writes the final machine code.
package dasm

import (
	"encoding/binary"

	"github.com/retroenv/buildvm/internal/arch"
	"github.com/retroenv/buildvm/internal/reloc"
	"github.com/retroenv/retrogolib/log"
)

const fieldSize = 4

type actionKind int

const (
	actBytes actionKind = iota
	actAlign
	actDefinePC
	actDefineGlobal
	actRelPC     // 32 bit displacement to a PC label
	actRelGlobal // 32 bit displacement to a global label
	actAbsPC     // 32 bit code offset of a PC label
	actExtern    // 32 bit field referencing an external symbol
)

type action struct {
	kind  actionKind
	data  []byte
	index int // label or extern index, alignment for actAlign
	reloc reloc.Kind
}

// Encoder collects actions and encodes them into machine code.
type Encoder struct {
	logger *log.Logger

	numPC     int
	numGlobal int
	numExtern int

	actions []action
	status  uint32 // first error detected while collecting actions

	pcOffsets     []int32
	globalOffsets []int32
	size          int
	linked        bool
}

// New returns an encoder for the given number of PC labels, global labels
// and external symbols.
func New(logger *log.Logger, numPC, numGlobal, numExtern int) *Encoder {
	return &Encoder{
		logger:    logger,
		numPC:     numPC,
		numGlobal: numGlobal,
		numExtern: numExtern,
	}
}

// Bytes appends raw instruction bytes.
func (e *Encoder) Bytes(data ...byte) {
	if len(data) == 0 {
		return
	}
	e.actions = append(e.actions, action{kind: actBytes, data: data})
}

// Align pads the code with the fill byte to the next multiple of n.
func (e *Encoder) Align(n int, fill byte) {
	if n <= 1 {
		return
	}
	e.actions = append(e.actions, action{kind: actAlign, index: n, data: []byte{fill}})
}

// DefinePC defines the PC label n at the current position.
func (e *Encoder) DefinePC(n int) {
	if !e.checkRange(n, e.numPC, arch.StatusRangePC) {
		return
	}
	e.actions = append(e.actions, action{kind: actDefinePC, index: n})
}

// DefineGlobal defines the global label n at the current position.
func (e *Encoder) DefineGlobal(n int) {
	if !e.checkRange(n, e.numGlobal, arch.StatusRangeGlobal) {
		return
	}
	e.actions = append(e.actions, action{kind: actDefineGlobal, index: n})
}

// RelPC appends a 32 bit displacement from the end of the field to PC label n.
func (e *Encoder) RelPC(n int) {
	if !e.checkRange(n, e.numPC, arch.StatusRangePC) {
		return
	}
	e.actions = append(e.actions, action{kind: actRelPC, index: n})
}

// RelGlobal appends a 32 bit displacement from the end of the field to global label n.
func (e *Encoder) RelGlobal(n int) {
	if !e.checkRange(n, e.numGlobal, arch.StatusRangeGlobal) {
		return
	}
	e.actions = append(e.actions, action{kind: actRelGlobal, index: n})
}

// AbsPC appends the 32 bit code offset of PC label n.
func (e *Encoder) AbsPC(n int) {
	if !e.checkRange(n, e.numPC, arch.StatusRangePC) {
		return
	}
	e.actions = append(e.actions, action{kind: actAbsPC, index: n})
}

// Extern appends a 32 bit field referencing the external symbol n.
func (e *Encoder) Extern(n int, kind reloc.Kind) {
	if !e.checkRange(n, e.numExtern, arch.StatusRangeExtern) {
		return
	}
	e.actions = append(e.actions, action{kind: actExtern, index: n, reloc: kind})
}

// Link assigns offsets to all actions and returns the size of the code.
func (e *Encoder) Link() (int, error) {
	size, err := e.link()
	if err != nil {
		e.logger.Debug("Action list link failed", log.Int("actions", len(e.actions)), log.Err(err))
		return 0, err
	}

	e.logger.Debug("Action list linked",
		log.Int("actions", len(e.actions)),
		log.Int("fields", e.fieldCount()),
		log.Int("size", size))
	return size, nil
}

func (e *Encoder) link() (int, error) {
	if e.status != arch.StatusOK {
		return 0, &arch.LinkError{Status: e.status}
	}

	e.pcOffsets = undefinedOffsets(e.numPC)
	e.globalOffsets = undefinedOffsets(e.numGlobal)

	pos := 0
	for _, act := range e.actions {
		switch act.kind {
		case actBytes:
			pos += len(act.data)
		case actAlign:
			pos += padding(pos, act.index)
		case actDefinePC:
			if e.pcOffsets[act.index] >= 0 {
				return 0, arch.NewLinkError(arch.StatusRangePC, act.index)
			}
			e.pcOffsets[act.index] = int32(pos)
		case actDefineGlobal:
			if e.globalOffsets[act.index] >= 0 {
				return 0, arch.NewLinkError(arch.StatusRangeGlobal, act.index)
			}
			e.globalOffsets[act.index] = int32(pos)
		default:
			pos += fieldSize
		}
	}

	for _, act := range e.actions {
		switch act.kind {
		case actRelPC, actAbsPC:
			if e.pcOffsets[act.index] < 0 {
				return 0, arch.NewLinkError(arch.StatusUndefPC, act.index)
			}
		case actRelGlobal:
			if e.globalOffsets[act.index] < 0 {
				return 0, arch.NewLinkError(arch.StatusUndefGlobal, act.index)
			}
		default:
		}
	}

	e.size = pos
	e.linked = true
	return pos, nil
}

// Encode writes the machine code into the buffer, which must have the linked size.
func (e *Encoder) Encode(code []byte, extern arch.ExternFunc) error {
	if !e.linked || len(code) != e.size {
		return &arch.LinkError{Status: arch.StatusPhase}
	}

	pos := 0
	for _, act := range e.actions {
		switch act.kind {
		case actBytes:
			pos += copy(code[pos:], act.data)

		case actAlign:
			n := padding(pos, act.index)
			for i := range n {
				code[pos+i] = act.data[0]
			}
			pos += n

		case actDefinePC, actDefineGlobal:

		case actRelPC:
			putField(code, pos, e.pcOffsets[act.index]-int32(pos+fieldSize))
			pos += fieldSize

		case actRelGlobal:
			putField(code, pos, e.globalOffsets[act.index]-int32(pos+fieldSize))
			pos += fieldSize

		case actAbsPC:
			putField(code, pos, e.pcOffsets[act.index])
			pos += fieldSize

		case actExtern:
			value, err := extern(int32(pos), act.index, act.reloc)
			if err != nil {
				return err
			}
			putField(code, pos, value)
			pos += fieldSize
		}
	}

	if pos != e.size {
		return &arch.LinkError{Status: arch.StatusPhase}
	}
	return nil
}

// fieldCount returns the number of 32 bit fields in the action list.
func (e *Encoder) fieldCount() int {
	count := 0
	for _, act := range e.actions {
		switch act.kind {
		case actRelPC, actRelGlobal, actAbsPC, actExtern:
			count++
		default:
		}
	}
	return count
}

// PCOffset returns the code offset of PC label n after linking.
func (e *Encoder) PCOffset(n int) (int32, bool) {
	return lookup(e.pcOffsets, n)
}

// GlobalOffset returns the code offset of global label n after linking.
func (e *Encoder) GlobalOffset(n int) (int32, bool) {
	return lookup(e.globalOffsets, n)
}

// Free releases the action list. Label offsets stay available.
func (e *Encoder) Free() {
	e.actions = nil
}

func (e *Encoder) checkRange(n, limit int, status uint32) bool {
	if n >= 0 && n < limit {
		return true
	}
	if e.status == arch.StatusOK {
		e.status = arch.NewLinkError(status, n).Status
	}
	return false
}

func lookup(offsets []int32, n int) (int32, bool) {
	if n < 0 || n >= len(offsets) || offsets[n] < 0 {
		return 0, false
	}
	return offsets[n], true
}

func undefinedOffsets(n int) []int32 {
	offsets := make([]int32, n)
	for i := range offsets {
		offsets[i] = -1
	}
	return offsets
}

func padding(pos, alignment int) int {
	return (alignment - pos%alignment) % alignment
}

func putField(code []byte, pos int, value int32) {
	binary.LittleEndian.PutUint32(code[pos:], uint32(value))
}
