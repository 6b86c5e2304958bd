// Package bytecode defines the instruction set of the virtual machine whose
// interpreter is built.
//
// Instructions are 32 bit wide:
//
//	 31     23 22     14 13      6 5    0
//	|    B    |    C    |    A    |  OP  |
//	|        Bx         |    A    |  OP  |
package bytecode

// Field layout of an instruction.
const (
	SizeOp = 6
	SizeA  = 8
	SizeB  = 9
	SizeC  = 9
	SizeBx = SizeB + SizeC

	PosOp = 0
	PosA  = PosOp + SizeOp
	PosC  = PosA + SizeA
	PosB  = PosC + SizeC
	PosBx = PosC

	MaskOp = 1<<SizeOp - 1
	MaskA  = 1<<SizeA - 1

	// MaxArgSBx is the bias of the signed sBx field.
	MaxArgSBx = (1<<SizeBx - 1) >> 1
)

// Opcode is the operation number of an instruction.
type Opcode int

// Opcodes of the virtual machine.
const (
	MOVE Opcode = iota
	LOADK
	LOADKX
	LOADBOOL
	LOADNIL
	GETUPVAL
	GETTABUP
	GETTABLE
	SETTABUP
	SETUPVAL
	SETTABLE
	NEWTABLE
	SELF
	ADD
	SUB
	MUL
	MOD
	POW
	DIV
	IDIV
	BAND
	BOR
	BXOR
	SHL
	SHR
	UNM
	BNOT
	NOT
	LEN
	CONCAT
	JMP
	EQ
	LT
	LE
	TEST
	TESTSET
	CALL
	TAILCALL
	RETURN
	FORLOOP
	FORPREP
	TFORCALL
	TFORLOOP
	SETLIST
	CLOSURE
	VARARG
	EXTRAARG

	NumOpcodes = int(iota)
)

var names = [NumOpcodes]string{
	"MOVE", "LOADK", "LOADKX", "LOADBOOL", "LOADNIL", "GETUPVAL",
	"GETTABUP", "GETTABLE", "SETTABUP", "SETUPVAL", "SETTABLE",
	"NEWTABLE", "SELF", "ADD", "SUB", "MUL", "MOD", "POW", "DIV", "IDIV",
	"BAND", "BOR", "BXOR", "SHL", "SHR", "UNM", "BNOT", "NOT", "LEN",
	"CONCAT", "JMP", "EQ", "LT", "LE", "TEST", "TESTSET",
	"CALL", "TAILCALL", "RETURN", "FORLOOP", "FORPREP",
	"TFORCALL", "TFORLOOP", "SETLIST", "CLOSURE", "VARARG", "EXTRAARG",
}

// Names returns the opcode names indexed by opcode.
func Names() []string {
	return names[:]
}

func (o Opcode) String() string {
	if o < 0 || int(o) >= NumOpcodes {
		return "UNKNOWN"
	}
	return names[o]
}

// Encode returns an instruction in the ABC format.
func Encode(op Opcode, a, b, c int) uint32 {
	return uint32(op)<<PosOp | uint32(a)<<PosA | uint32(b)<<PosB | uint32(c)<<PosC
}

// EncodeAsBx returns an instruction in the AsBx format.
func EncodeAsBx(op Opcode, a, sbx int) uint32 {
	return uint32(op)<<PosOp | uint32(a)<<PosA | uint32(sbx+MaxArgSBx)<<PosBx
}
