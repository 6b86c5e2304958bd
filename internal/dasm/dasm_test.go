package dasm

import (
	"errors"
	"testing"

	"github.com/retroenv/buildvm/internal/arch"
	"github.com/retroenv/buildvm/internal/reloc"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

type externCall struct {
	offset int32
	index  int
	kind   reloc.Kind
}

func recordExterns(calls *[]externCall) arch.ExternFunc {
	return func(offset int32, index int, kind reloc.Kind) (int32, error) {
		*calls = append(*calls, externCall{offset: offset, index: index, kind: kind})
		return 0, nil
	}
}

func link(t *testing.T, e *Encoder) []byte {
	t.Helper()

	size, err := e.Link()
	assert.NoError(t, err)
	code := make([]byte, size)
	assert.NoError(t, e.Encode(code, func(int32, int, reloc.Kind) (int32, error) { return 0, nil }))
	return code
}

//nolint:funlen // test functions can be long
func TestEncodeLabels(t *testing.T) {
	e := New(log.NewTestLogger(t), 2, 1, 1)
	e.DefineGlobal(0)
	e.Bytes(0xe9)
	e.RelPC(1) // forward reference
	e.DefinePC(0)
	e.Bytes(0x90)
	e.Align(4, 0xcc)
	e.DefinePC(1)
	e.Bytes(0xe9)
	e.RelGlobal(0) // backward reference
	e.AbsPC(0)

	code := link(t, e)
	assert.Equal(t, 17, len(code))
	assert.Equal(t, 3, e.fieldCount())

	pc0, ok := e.PCOffset(0)
	assert.True(t, ok)
	assert.Equal(t, int32(5), pc0)

	pc1, ok := e.PCOffset(1)
	assert.True(t, ok)
	assert.Equal(t, int32(8), pc1)

	global, ok := e.GlobalOffset(0)
	assert.True(t, ok)
	assert.Equal(t, int32(0), global)

	// jmp to pc label 1: 8 - 5 = 3
	assert.Equal(t, byte(0xe9), code[0])
	assert.Equal(t, byte(3), code[1])
	assert.Equal(t, byte(0), code[4])
	// padding
	assert.Equal(t, byte(0x90), code[5])
	assert.Equal(t, byte(0xcc), code[6])
	assert.Equal(t, byte(0xcc), code[7])
	// jmp back to global 0: 0 - 13 = -13
	assert.Equal(t, byte(0xe9), code[8])
	assert.Equal(t, byte(0xf3), code[9])
	assert.Equal(t, byte(0xff), code[12])
	// absolute offset of pc label 0
	assert.Equal(t, byte(5), code[13])
}

func TestEncodeExterns(t *testing.T) {
	e := New(log.NewTestLogger(t), 0, 0, 2)
	e.Bytes(0xe8)
	e.Extern(1, reloc.Rel32)
	e.Bytes(0xb8)
	e.Extern(0, reloc.Abs32)

	size, err := e.Link()
	assert.NoError(t, err)
	assert.Equal(t, 10, size)

	var calls []externCall
	code := make([]byte, size)
	assert.NoError(t, e.Encode(code, recordExterns(&calls)))

	assert.Equal(t, 2, len(calls))
	assert.Equal(t, externCall{offset: 1, index: 1, kind: reloc.Rel32}, calls[0])
	assert.Equal(t, externCall{offset: 6, index: 0, kind: reloc.Abs32}, calls[1])
	for i := 1; i < 5; i++ {
		assert.Equal(t, byte(0), code[i])
	}
}

func TestEncodeExternError(t *testing.T) {
	e := New(log.NewTestLogger(t), 0, 0, 1)
	e.Extern(0, reloc.Rel32)
	size, err := e.Link()
	assert.NoError(t, err)

	errFull := errors.New("full")
	err = e.Encode(make([]byte, size), func(int32, int, reloc.Kind) (int32, error) {
		return 0, errFull
	})
	assert.True(t, errors.Is(err, errFull))
}

//nolint:funlen // test functions can be long
func TestLinkErrors(t *testing.T) {
	tests := []struct {
		name   string
		build  func(e *Encoder)
		status uint32
	}{
		{
			name:   "undefined pc label",
			build:  func(e *Encoder) { e.RelPC(1) },
			status: arch.StatusUndefPC | 1,
		},
		{
			name:   "undefined global label",
			build:  func(e *Encoder) { e.RelGlobal(0) },
			status: arch.StatusUndefGlobal,
		},
		{
			name:   "pc label out of range",
			build:  func(e *Encoder) { e.DefinePC(2) },
			status: arch.StatusRangePC | 2,
		},
		{
			name:   "redefined pc label",
			build:  func(e *Encoder) { e.DefinePC(0); e.DefinePC(0) },
			status: arch.StatusRangePC,
		},
		{
			name:   "redefined global label",
			build:  func(e *Encoder) { e.DefineGlobal(0); e.DefineGlobal(0) },
			status: arch.StatusRangeGlobal,
		},
		{
			name:   "extern out of range",
			build:  func(e *Encoder) { e.Extern(3, reloc.Abs32) },
			status: arch.StatusRangeExtern | 3,
		},
		{
			name:   "first error wins",
			build:  func(e *Encoder) { e.RelGlobal(5); e.Extern(3, reloc.Abs32) },
			status: arch.StatusRangeGlobal | 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(log.NewTestLogger(t), 2, 1, 1)
			tt.build(e)

			_, err := e.Link()
			var linkErr *arch.LinkError
			assert.True(t, errors.As(err, &linkErr))
			assert.Equal(t, tt.status, linkErr.Status)
		})
	}
}

func TestUnreferencedUndefinedGlobal(t *testing.T) {
	e := New(log.NewTestLogger(t), 0, 2, 0)
	e.DefineGlobal(0)
	e.Bytes(0xc3)

	code := link(t, e)
	assert.Equal(t, 1, len(code))

	_, ok := e.GlobalOffset(1)
	assert.False(t, ok)
	_, ok = e.GlobalOffset(7)
	assert.False(t, ok)
}

func TestEncodePhaseError(t *testing.T) {
	e := New(log.NewTestLogger(t), 0, 0, 0)
	e.Bytes(0x90, 0x90)

	err := e.Encode(make([]byte, 2), nil)
	assert.Error(t, err)

	_, err = e.Link()
	assert.NoError(t, err)
	err = e.Encode(make([]byte, 1), nil)
	var linkErr *arch.LinkError
	assert.True(t, errors.As(err, &linkErr))
	assert.Equal(t, uint32(arch.StatusPhase), linkErr.Status)
}

func TestFreeKeepsOffsets(t *testing.T) {
	e := New(log.NewTestLogger(t), 1, 0, 0)
	e.Bytes(0x90)
	e.DefinePC(0)
	link(t, e)
	e.Free()

	ofs, ok := e.PCOffset(0)
	assert.True(t, ok)
	assert.Equal(t, int32(1), ofs)
}
