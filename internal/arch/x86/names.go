package x86

import "github.com/retroenv/buildvm/internal/bytecode"

// Label prefixes of the exported symbols.
const (
	LabelPrefix   = "ravi_"
	LabelPrefixBC = LabelPrefix + "BC_"
)

// Global labels.
const (
	globalEntry = iota
	globalReturn
	globalCall
	globalDispatch
	globalUnwind

	numGlobals
)

var globalNames = [numGlobals]string{
	globalEntry:    "vm_entry",
	globalReturn:   "vm_return",
	globalCall:     "vm_call",
	globalDispatch: "vm_dispatch_Z",
	globalUnwind:   "vm_unwind_c",
}

// External helper functions called by the interpreter.
const (
	externPrecall = iota
	externThrow
	externFinishGet
	externFinishSet
	externNewTable
	externArith
	externEqual
	externLessThan
	externLessEqual
	externObjLen
	externConcat
	externForPrep
	externCall
	externClosure
	externVarargs
	externUpval
	externTest
	externLoadKX

	numExterns
)

var externNames64 = [numExterns]string{
	externPrecall:   "luaD_precall",
	externThrow:     "luaD_throw",
	externFinishGet: "luaV_finishget",
	externFinishSet: "luaV_finishset",
	externNewTable:  "luaH_new",
	externArith:     "luaO_arith",
	externEqual:     "luaV_equalobj",
	externLessThan:  "luaV_lessthan",
	externLessEqual: "luaV_lessequal",
	externObjLen:    "luaV_objlen",
	externConcat:    "luaV_concat",
	externForPrep:   "luaV_forprep",
	externCall:      "luaD_call",
	externClosure:   "luaF_newLclosure",
	externVarargs:   "luaT_getvarargs",
	externUpval:     "raviV_op_upval",
	externTest:      "raviV_op_test",
	externLoadKX:    "raviV_op_loadkx",
}

// externNames32COFF returns the extern table of 32 bit COFF targets, which
// unwind through the stdcall Windows API.
func externNames32COFF() []string {
	names := make([]string, numExterns)
	copy(names, externNames64[:])
	names[externThrow] = "RtlUnwind@16"
	return names
}

// handlerKind selects the code template of an instruction handler.
type handlerKind int

const (
	kindHelper handlerKind = iota // call an external helper
	kindMove
	kindLoadK
	kindLoadBool
	kindLoadNil
	kindJump
	kindCall
	kindReturn
	kindInvalid
)

type handler struct {
	kind   handlerKind
	extern int
}

// handlers returns the template of every instruction.
func handlers() [bytecode.NumOpcodes]handler {
	var h [bytecode.NumOpcodes]handler

	helper := func(extern int, ops ...bytecode.Opcode) {
		for _, op := range ops {
			h[op] = handler{kind: kindHelper, extern: extern}
		}
	}

	helper(externUpval, bytecode.GETUPVAL, bytecode.SETUPVAL)
	helper(externFinishGet, bytecode.GETTABUP, bytecode.GETTABLE, bytecode.SELF)
	helper(externFinishSet, bytecode.SETTABUP, bytecode.SETTABLE, bytecode.SETLIST)
	helper(externNewTable, bytecode.NEWTABLE)
	helper(externArith, bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.MOD, bytecode.POW,
		bytecode.DIV, bytecode.IDIV, bytecode.BAND, bytecode.BOR, bytecode.BXOR,
		bytecode.SHL, bytecode.SHR, bytecode.UNM, bytecode.BNOT)
	helper(externTest, bytecode.NOT, bytecode.TEST, bytecode.TESTSET)
	helper(externObjLen, bytecode.LEN)
	helper(externConcat, bytecode.CONCAT)
	helper(externEqual, bytecode.EQ)
	helper(externLessThan, bytecode.LT)
	helper(externLessEqual, bytecode.LE)
	helper(externForPrep, bytecode.FORLOOP, bytecode.FORPREP)
	helper(externCall, bytecode.TFORCALL, bytecode.TFORLOOP)
	helper(externClosure, bytecode.CLOSURE)
	helper(externVarargs, bytecode.VARARG)
	helper(externLoadKX, bytecode.LOADKX)

	h[bytecode.MOVE] = handler{kind: kindMove}
	h[bytecode.LOADK] = handler{kind: kindLoadK}
	h[bytecode.LOADBOOL] = handler{kind: kindLoadBool}
	h[bytecode.LOADNIL] = handler{kind: kindLoadNil}
	h[bytecode.JMP] = handler{kind: kindJump}
	h[bytecode.CALL] = handler{kind: kindCall}
	h[bytecode.TAILCALL] = handler{kind: kindCall}
	h[bytecode.RETURN] = handler{kind: kindReturn}
	h[bytecode.EXTRAARG] = handler{kind: kindInvalid}
	return h
}
