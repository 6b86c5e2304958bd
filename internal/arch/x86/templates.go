package x86

import (
	"fmt"

	"github.com/retroenv/buildvm/internal/bytecode"
	"github.com/retroenv/buildvm/internal/reloc"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

const relCall = reloc.Rel32

// valueShift converts a register number into a byte offset on the stack.
const valueShift = 4

func (b *Backend) buildHandler(h handler) error {
	switch h.kind {
	case kindMove:
		return b.emit(func(s *snippet) {
			b.decodeA(s)
			b.decodeB(s)
			b.copyValue(s, func(offset int64) obj.Addr {
				return index(b.regs.base, b.regs.rb, 1, offset)
			})
			b.insNext(s)
		})

	case kindLoadK:
		return b.emit(func(s *snippet) {
			b.decodeA(s)
			b.decodeBx(s)
			s.inst(b.ops.add, b.stateField(stateK), reg(b.regs.rb))
			b.copyValue(s, func(offset int64) obj.Addr {
				return mem(b.regs.rb, offset)
			})
			b.insNext(s)
		})

	case kindLoadBool:
		return b.emit(func(s *snippet) {
			b.decodeA(s)
			b.decodeB(s)
			s.inst(b.ops.mov, reg(b.regs.rb), index(b.regs.base, b.regs.ra, 1, 0))
			s.inst(x86.AMOVL, imm(tagBool), index(b.regs.base, b.regs.ra, 1, tagOffset))
			b.insNext(s)
		})

	case kindLoadNil:
		return b.emit(func(s *snippet) {
			b.decodeA(s)
			s.inst(x86.AMOVL, imm(tagNil), index(b.regs.base, b.regs.ra, 1, tagOffset))
			b.insNext(s)
		})

	case kindJump:
		return b.emit(func(s *snippet) {
			s.inst(x86.AMOVL, reg(b.regs.ins), reg(b.regs.rb))
			s.inst(x86.ASHRL, imm(bytecode.PosBx), reg(b.regs.rb))
			s.inst(x86.ASUBL, imm(bytecode.MaxArgSBx), reg(b.regs.rb))
			if b.target.Is64Bit() {
				s.inst(x86.AMOVLQSX, reg(b.regs.rb), reg(b.regs.rb))
			}
			s.inst(b.ops.lea, index(b.regs.pc, b.regs.rb, 4, 0), reg(b.regs.pc))
			b.insNext(s)
		})

	case kindCall:
		if err := b.emit(b.decodeA); err != nil {
			return err
		}
		b.jumpGlobal(globalCall)
		return nil

	case kindReturn:
		b.jumpGlobal(globalReturn)
		return nil

	case kindInvalid:
		b.jumpGlobal(globalUnwind)
		return nil

	case kindHelper:
		return b.buildHelperCall(h.extern)

	default:
		return fmt.Errorf("unsupported handler kind %d", h.kind)
	}
}

// buildHelperCall passes the interpreter state and the current instruction to
// an external helper and continues with the next instruction.
func (b *Backend) buildHelperCall(extern int) error {
	err := b.emit(func(s *snippet) {
		s.inst(b.ops.mov, reg(b.regs.pc), b.stateField(stateSavedPC))
		if b.target.Is64Bit() {
			s.inst(x86.AMOVQ, reg(b.regs.state), reg(x86.REG_DI))
			s.inst(x86.AMOVL, reg(b.regs.ins), reg(x86.REG_SI))
		} else {
			s.inst(x86.APUSHL, reg(b.regs.ins), none)
			s.inst(x86.APUSHL, reg(b.regs.state), none)
		}
	})
	if err != nil {
		return err
	}

	b.callExtern(extern)

	return b.emit(func(s *snippet) {
		if !b.target.Is64Bit() {
			s.inst(x86.AADDL, imm(2*b.ops.word), reg(x86.REG_SP))
		}
		s.inst(b.ops.mov, b.stateField(stateBase), reg(b.regs.base))
		b.insNext(s)
	})
}

// insNext fetches the next instruction and jumps to its handler.
func (b *Backend) insNext(s *snippet) {
	s.inst(x86.AMOVL, mem(b.regs.pc, 0), reg(b.regs.ins))
	s.inst(b.ops.add, imm(4), reg(b.regs.pc))
	s.inst(x86.AMOVL, reg(b.regs.ins), reg(b.regs.rb))
	s.inst(x86.AANDL, imm(bytecode.MaskOp), reg(b.regs.rb))
	s.inst(obj.AJMP, none, index(b.regs.dispatch, b.regs.rb, b.ops.scale, 0))
}

func (b *Backend) decodeA(s *snippet) {
	s.inst(x86.AMOVL, reg(b.regs.ins), reg(b.regs.ra))
	s.inst(x86.ASHRL, imm(bytecode.PosA), reg(b.regs.ra))
	s.inst(x86.AANDL, imm(bytecode.MaskA), reg(b.regs.ra))
	s.inst(x86.ASHLL, imm(valueShift), reg(b.regs.ra))
}

func (b *Backend) decodeB(s *snippet) {
	s.inst(x86.AMOVL, reg(b.regs.ins), reg(b.regs.rb))
	s.inst(x86.ASHRL, imm(bytecode.PosB), reg(b.regs.rb))
	s.inst(x86.ASHLL, imm(valueShift), reg(b.regs.rb))
}

func (b *Backend) decodeBx(s *snippet) {
	s.inst(x86.AMOVL, reg(b.regs.ins), reg(b.regs.rb))
	s.inst(x86.ASHRL, imm(bytecode.PosBx), reg(b.regs.rb))
	s.inst(x86.ASHLL, imm(valueShift), reg(b.regs.rb))
}

// copyValue copies a stack value into the slot of operand A, one machine
// word at a time through the instruction register.
func (b *Backend) copyValue(s *snippet, source func(offset int64) obj.Addr) {
	for offset := int64(0); offset < valueSize; offset += b.ops.word {
		s.inst(b.ops.mov, source(offset), reg(b.regs.ins))
		s.inst(b.ops.mov, reg(b.regs.ins), index(b.regs.base, b.regs.ra, 1, offset))
	}
}
