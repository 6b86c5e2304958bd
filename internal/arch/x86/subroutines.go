package x86

import (
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// luaErrRun is the error status passed to the throw helper.
const luaErrRun = 2

func (b *Backend) buildSubroutines() error {
	steps := []func() error{
		b.buildEntry,
		b.buildReturn,
		b.buildCall,
		b.buildDispatch,
		b.buildUnwind,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// buildEntry saves the callee saved registers and starts interpreting at
// the saved PC of the state passed as first argument.
func (b *Backend) buildEntry() error {
	b.enc.DefineGlobal(globalEntry)
	err := b.emit(func(s *snippet) {
		for _, r := range b.regs.saved {
			s.inst(b.ops.push, reg(r), none)
		}
		if b.target.Is64Bit() {
			// keep the stack 16 byte aligned for helper calls
			s.inst(x86.ASUBQ, imm(8), reg(x86.REG_SP))
			s.inst(x86.AMOVQ, reg(x86.REG_DI), reg(b.regs.state))
		} else {
			argOffset := int64(len(b.regs.saved)+1) * b.ops.word
			s.inst(x86.AMOVL, mem(x86.REG_SP, argOffset), reg(b.regs.state))
		}
		b.loadState(s)
	})
	if err != nil {
		return err
	}
	b.jumpGlobal(globalDispatch)
	return nil
}

// buildReturn stores the PC and returns to the caller of the entry.
func (b *Backend) buildReturn() error {
	b.enc.DefineGlobal(globalReturn)
	return b.emit(func(s *snippet) {
		s.inst(b.ops.mov, reg(b.regs.pc), b.stateField(stateSavedPC))
		if b.target.Is64Bit() {
			s.inst(x86.AADDQ, imm(8), reg(x86.REG_SP))
		}
		for i := len(b.regs.saved) - 1; i >= 0; i-- {
			s.inst(b.ops.pop, none, reg(b.regs.saved[i]))
		}
		s.inst(obj.ARET, none, none)
	})
}

// buildCall prepares the call of the function in operand A and continues
// with its first instruction.
func (b *Backend) buildCall() error {
	b.enc.DefineGlobal(globalCall)
	err := b.emit(func(s *snippet) {
		s.inst(b.ops.mov, reg(b.regs.pc), b.stateField(stateSavedPC))
		if b.target.Is64Bit() {
			s.inst(x86.AMOVQ, reg(b.regs.state), reg(x86.REG_DI))
			s.inst(x86.ALEAQ, index(b.regs.base, b.regs.ra, 1, 0), reg(x86.REG_SI))
		} else {
			s.inst(x86.ALEAL, index(b.regs.base, b.regs.ra, 1, 0), reg(b.regs.ins))
			s.inst(x86.APUSHL, reg(b.regs.ins), none)
			s.inst(x86.APUSHL, reg(b.regs.state), none)
		}
	})
	if err != nil {
		return err
	}

	b.callExtern(externPrecall)

	err = b.emit(func(s *snippet) {
		if !b.target.Is64Bit() {
			s.inst(x86.AADDL, imm(2*b.ops.word), reg(x86.REG_SP))
		}
		s.inst(b.ops.mov, b.stateField(stateBase), reg(b.regs.base))
		s.inst(b.ops.mov, b.stateField(stateSavedPC), reg(b.regs.pc))
	})
	if err != nil {
		return err
	}
	b.jumpGlobal(globalDispatch)
	return nil
}

// buildDispatch is the shared copy of the instruction dispatch.
func (b *Backend) buildDispatch() error {
	b.enc.DefineGlobal(globalDispatch)
	return b.emit(b.insNext)
}

// buildUnwind raises an error in the C runtime and returns to the caller.
func (b *Backend) buildUnwind() error {
	b.enc.DefineGlobal(globalUnwind)
	err := b.emit(func(s *snippet) {
		switch {
		case b.target.Is64Bit():
			s.inst(x86.AMOVQ, reg(b.regs.state), reg(x86.REG_DI))
			s.inst(x86.AMOVL, imm(luaErrRun), reg(x86.REG_SI))
		case b.stdcall:
			// RtlUnwind(frame, target, record, value) is stdcall and pops its arguments
			for range 4 {
				s.inst(x86.APUSHL, imm(0), none)
			}
		default:
			s.inst(x86.APUSHL, imm(luaErrRun), none)
			s.inst(x86.APUSHL, reg(b.regs.state), none)
		}
	})
	if err != nil {
		return err
	}

	b.callExtern(externThrow)
	if !b.target.Is64Bit() && !b.stdcall {
		if err := b.emit(func(s *snippet) {
			s.inst(x86.AADDL, imm(2*b.ops.word), reg(x86.REG_SP))
		}); err != nil {
			return err
		}
	}
	b.jumpGlobal(globalReturn)
	return nil
}

func (b *Backend) loadState(s *snippet) {
	s.inst(b.ops.mov, b.stateField(stateBase), reg(b.regs.base))
	s.inst(b.ops.mov, b.stateField(stateSavedPC), reg(b.regs.pc))
	s.inst(b.ops.mov, b.stateField(stateDispatch), reg(b.regs.dispatch))
}
