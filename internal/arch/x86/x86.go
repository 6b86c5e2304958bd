// Package x86 encodes the interpreter of the virtual machine for 32 and
// 64 bit x86 targets.
package x86

import (
	"errors"
	"fmt"

	"github.com/retroenv/buildvm/internal/arch"
	"github.com/retroenv/buildvm/internal/bytecode"
	"github.com/retroenv/buildvm/internal/dasm"
	"github.com/retroenv/buildvm/internal/mode"
	"github.com/retroenv/buildvm/internal/target"
	"github.com/retroenv/retrogolib/log"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

var _ arch.Backend = &Backend{}

var errNotBuilt = errors.New("interpreter has not been built")

const (
	opJmpRel32  = 0xe9
	opCallRel32 = 0xe8
	opInt3      = 0xcc

	codeAlignment = 16
)

// Backend encodes the interpreter for the x86 family.
type Backend struct {
	logger  *log.Logger
	target  target.Target
	goarch  string
	regs    registers
	ops     widthOps
	externs []string
	stdcall bool // unwind through the Windows API instead of the C runtime

	enc *dasm.Encoder
}

// registers is the fixed register assignment of the interpreter.
type registers struct {
	pc       int16 // pointer to the next instruction
	base     int16 // stack base of the current function
	dispatch int16 // dispatch table, indexed by opcode
	state    int16 // interpreter state

	ins int16 // current instruction, scratch after decoding
	ra  int16 // byte offset of operand A
	rb  int16 // byte offset of operand B, C or Bx, also the opcode

	saved []int16 // callee saved registers, in push order
}

// widthOps contains the word sized instructions of a target.
type widthOps struct {
	mov, add, sub, lea, push, pop obj.As

	word  int64 // size of a machine word in bytes
	scale int16 // dispatch table entry size
}

// Offsets of the interpreter state fields, in machine words.
const (
	stateBase     = 2
	stateSavedPC  = 3
	stateK        = 4
	stateDispatch = 5
)

// Value layout.
const (
	valueSize = 16
	tagOffset = 8

	tagNil  = 0
	tagBool = 1
)

// New returns a backend for the given target. The object-format family of the
// output mode selects the unwinding convention of 32 bit targets.
func New(logger *log.Logger, t target.Target, family mode.Family) (*Backend, error) {
	b := &Backend{
		logger: logger,
		target: t,
	}

	switch t.Arch {
	case target.X64:
		b.goarch = "amd64"
		b.externs = externNames64[:]
		b.regs = registers{
			pc:       x86.REG_BX,
			base:     x86.REG_R12,
			dispatch: x86.REG_R14,
			state:    x86.REG_R15,
			ins:      x86.REG_AX,
			ra:       x86.REG_DX,
			rb:       x86.REG_CX,
			saved:    []int16{x86.REG_BX, x86.REG_BP, x86.REG_R12, x86.REG_R13, x86.REG_R14, x86.REG_R15},
		}
		b.ops = widthOps{
			mov: x86.AMOVQ, add: x86.AADDQ, sub: x86.ASUBQ, lea: x86.ALEAQ,
			push: x86.APUSHQ, pop: x86.APOPQ,
			word: 8, scale: 8,
		}

	case target.X86:
		b.goarch = "386"
		b.externs = externNames64[:]
		if family == mode.FamilyCOFF {
			b.externs = externNames32COFF()
			b.stdcall = true
		}
		b.regs = registers{
			pc:       x86.REG_BX,
			base:     x86.REG_BP,
			dispatch: x86.REG_SI,
			state:    x86.REG_DI,
			ins:      x86.REG_AX,
			ra:       x86.REG_DX,
			rb:       x86.REG_CX,
			saved:    []int16{x86.REG_BX, x86.REG_BP, x86.REG_SI, x86.REG_DI},
		}
		b.ops = widthOps{
			mov: x86.AMOVL, add: x86.AADDL, sub: x86.ASUBL, lea: x86.ALEAL,
			push: x86.APUSHL, pop: x86.APOPL,
			word: 4, scale: 4,
		}

	default:
		return nil, fmt.Errorf("unsupported architecture '%s' for x86 backend", t.Arch)
	}

	return b, nil
}

// Target returns the target the backend encodes code for.
func (b *Backend) Target() target.Target {
	return b.target
}

// Names returns the static name tables of the backend.
func (b *Backend) Names() arch.Names {
	return arch.Names{
		PCPrefix:     LabelPrefixBC,
		GlobalPrefix: LabelPrefix,
		Instructions: bytecode.Names(),
		Globals:      globalNames[:],
		Externs:      b.externs,
	}
}

// Build describes the instruction handlers followed by the shared subroutines.
func (b *Backend) Build() error {
	b.enc = dasm.New(b.logger, bytecode.NumOpcodes, numGlobals, len(b.externs))

	templates := handlers()
	for op := range bytecode.NumOpcodes {
		b.enc.DefinePC(op)
		if err := b.buildHandler(templates[op]); err != nil {
			return fmt.Errorf("building handler %s: %w", bytecode.Opcode(op), err)
		}
	}

	b.enc.Align(codeAlignment, opInt3)
	if err := b.buildSubroutines(); err != nil {
		return fmt.Errorf("building subroutines: %w", err)
	}

	b.logger.Debug("Interpreter described",
		log.String("arch", b.target.String()),
		log.Int("instructions", bytecode.NumOpcodes),
		log.Int("globals", numGlobals))
	return nil
}

// Link resolves all internal references and returns the code size.
func (b *Backend) Link() (int, error) {
	if b.enc == nil {
		return 0, errNotBuilt
	}
	return b.enc.Link()
}

// Encode writes the machine code into the buffer.
func (b *Backend) Encode(code []byte, extern arch.ExternFunc) error {
	if b.enc == nil {
		return errNotBuilt
	}
	return b.enc.Encode(code, extern)
}

// PCLabel returns the code offset of the instruction handler.
func (b *Backend) PCLabel(instruction int) (int32, bool) {
	if b.enc == nil {
		return 0, false
	}
	return b.enc.PCOffset(instruction)
}

// Global returns the code offset of the global label.
func (b *Backend) Global(index int) (int32, bool) {
	if b.enc == nil {
		return 0, false
	}
	return b.enc.GlobalOffset(index)
}

// Free releases the action list.
func (b *Backend) Free() {
	if b.enc != nil {
		b.enc.Free()
	}
}

// emit encodes the instructions added by fn and appends them to the code.
func (b *Backend) emit(fn func(s *snippet)) error {
	s, err := newSnippet(b.goarch)
	if err != nil {
		return err
	}
	fn(s)
	b.enc.Bytes(s.assemble()...)
	return nil
}

// jumpGlobal appends a jump to a global label.
func (b *Backend) jumpGlobal(global int) {
	b.enc.Bytes(opJmpRel32)
	b.enc.RelGlobal(global)
}

// callExtern appends a call of an external helper.
func (b *Backend) callExtern(extern int) {
	b.enc.Bytes(opCallRel32)
	b.enc.Extern(extern, relCall)
}

// stateField returns the operand of a field of the interpreter state.
func (b *Backend) stateField(field int64) obj.Addr {
	return mem(b.regs.state, field*b.ops.word)
}
