package x86

import (
	"fmt"

	asm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
)

// snippet collects a run of instructions without labels or external
// references and encodes them using the Go assembler.
type snippet struct {
	builder *asm.Builder
	count   int
}

func newSnippet(goarch string) (*snippet, error) {
	builder, err := asm.NewBuilder(goarch, 64)
	if err != nil {
		return nil, fmt.Errorf("creating %s instruction builder: %w", goarch, err)
	}
	return &snippet{builder: builder}, nil
}

// inst adds an instruction with optional source and destination operands.
func (s *snippet) inst(as obj.As, from, to obj.Addr) {
	p := s.builder.NewProg()
	p.As = as
	p.From = from
	p.To = to
	s.builder.AddInstruction(p)
	s.count++
}

func (s *snippet) assemble() []byte {
	if s.count == 0 {
		return nil
	}
	return s.builder.Assemble()
}

var none = obj.Addr{}

func reg(r int16) obj.Addr {
	return obj.Addr{Type: obj.TYPE_REG, Reg: r}
}

func imm(value int64) obj.Addr {
	return obj.Addr{Type: obj.TYPE_CONST, Offset: value}
}

func mem(base int16, disp int64) obj.Addr {
	return obj.Addr{Type: obj.TYPE_MEM, Reg: base, Offset: disp}
}

func index(base, idx int16, scale int16, disp int64) obj.Addr {
	return obj.Addr{Type: obj.TYPE_MEM, Reg: base, Index: idx, Scale: scale, Offset: disp}
}
