package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/retroenv/buildvm/internal/arch"
	"github.com/retroenv/buildvm/internal/arch/mocks"
	"github.com/retroenv/buildvm/internal/mode"
	"github.com/retroenv/buildvm/internal/options"
	"github.com/retroenv/buildvm/internal/reloc"
	"github.com/retroenv/buildvm/internal/symbols"
	"github.com/retroenv/buildvm/internal/target"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
)

var x64 = target.Target{Arch: target.X64, WordSize: 64}

// newScenario returns a backend with 3 instructions at [0, 10, 40] and
// 2 globals at [55, 80] in 100 bytes of code.
func newScenario() *mocks.Backend {
	b := mocks.NewBackend(100,
		[]string{"MOVE", "LOADK", "JMP"},
		[]string{"vm_entry", "vm_return"},
		[]string{"luaD_precall", "luaV_concat", "RtlUnwind@16"})
	copy(b.PCOffsets, []int32{0, 10, 40})
	copy(b.GlobalOffsets, []int32{55, 80})
	return b
}

func symbolOffsets(syms []symbols.Symbol) []int32 {
	offsets := make([]int32, len(syms))
	for i, sym := range syms {
		offsets[i] = sym.Offset
	}
	return offsets
}

func TestNew(t *testing.T) {
	logger := log.NewTestLogger(t)
	p := New(logger)

	assert.NotNil(t, p)
	assert.NotNil(t, p.logger)
	assert.NotNil(t, p.detector)
}

func TestBuildScenario(t *testing.T) {
	p := New(log.NewTestLogger(t))
	backend := newScenario()

	app, err := p.Build(backend, options.NewBuild(mode.ELFAsm, x64))
	assert.NoError(t, err)
	assert.True(t, backend.Built)
	assert.True(t, backend.Freed)

	expected := []struct {
		offset int32
		name   string
	}{
		{0, "ravi_BC_MOVE"},
		{10, "ravi_BC_LOADK"},
		{40, "ravi_BC_JMP"},
		{55, "ravi_vm_entry"},
		{80, "ravi_vm_return"},
		{100, ""},
	}
	assert.Len(t, app.Symbols, len(expected))
	for i, sym := range expected {
		assert.Equal(t, sym.offset, app.Symbols[i].Offset)
		assert.Equal(t, sym.name, app.Symbols[i].Name)
	}

	assert.Equal(t, int32(100), app.CodeSize())
	assert.Len(t, app.BCOffsets, 3)
	assert.Equal(t, int32(40), app.BCOffsets[2])
	assert.Equal(t, int32(80), app.GlobalOffsets[1])
	assert.Empty(t, app.Relocs)
	assert.Equal(t, "ravi_vm_asm_begin", app.BeginSymbol)
}

func TestBuildSortedAndComplete(t *testing.T) {
	p := New(log.NewTestLogger(t))
	backend := newScenario()
	// globals interleaved with and equal to instruction offsets
	copy(backend.GlobalOffsets, []int32{10, 5})

	app, err := p.Build(backend, options.NewBuild(mode.ELFAsm, x64))
	assert.NoError(t, err)

	offsets := symbolOffsets(app.Symbols)
	assert.Len(t, offsets, 3+2+1)
	for i := 1; i < len(offsets); i++ {
		assert.True(t, offsets[i-1] <= offsets[i])
	}
	// equal offsets keep arrival order, instructions first
	assert.Equal(t, "ravi_BC_LOADK", app.Symbols[2].Name)
	assert.Equal(t, "ravi_vm_entry", app.Symbols[3].Name)

	last := app.Symbols[len(app.Symbols)-1]
	assert.Equal(t, app.CodeSize(), last.Offset)
	assert.Equal(t, "", last.Name)
}

func TestBuildInterning(t *testing.T) {
	p := New(log.NewTestLogger(t))
	backend := newScenario()
	backend.Externs = []mocks.ExternRef{
		{Offset: 12, Index: 1, Kind: reloc.Rel32},
		{Offset: 30, Index: 1, Kind: reloc.Rel32},
		{Offset: 44, Index: 0, Kind: reloc.Abs32},
	}

	app, err := p.Build(backend, options.NewBuild(mode.ELFAsm, x64))
	assert.NoError(t, err)

	assert.Len(t, app.RelocSymbols, 2)
	assert.Equal(t, "luaV_concat", app.RelocSymbols[0].Name)
	assert.Equal(t, "luaD_precall", app.RelocSymbols[1].Name)

	assert.Len(t, app.Relocs, 3)
	assert.Equal(t, reloc.Relocation{Offset: 12, Symbol: 0, Kind: reloc.Rel32}, app.Relocs[0])
	assert.Equal(t, reloc.Relocation{Offset: 30, Symbol: 0, Kind: reloc.Rel32}, app.Relocs[1])
	assert.Equal(t, reloc.Relocation{Offset: 44, Symbol: 1, Kind: reloc.Abs32}, app.Relocs[2])

	// placeholders are zero
	assert.Equal(t, byte(0), app.Code[12])
	assert.Equal(t, byte(mocks.Fill), app.Code[16])
}

func TestBuildCapacity(t *testing.T) {
	p := New(log.NewTestLogger(t))
	backend := newScenario()
	backend.Externs = []mocks.ExternRef{
		{Offset: 12, Index: 0, Kind: reloc.Rel32},
		{Offset: 30, Index: 1, Kind: reloc.Rel32},
		{Offset: 44, Index: 2, Kind: reloc.Rel32},
	}

	opts := options.NewBuild(mode.ELFAsm, x64)
	opts.RelocCapacity = 2
	_, err := p.Build(backend, opts)
	assert.True(t, errors.Is(err, reloc.ErrCapacity))

	var capErr *reloc.CapacityError
	assert.True(t, errors.As(err, &capErr))
	assert.Equal(t, "RtlUnwind@16", capErr.Name)
	assert.Equal(t, 2, capErr.Count)
	assert.Equal(t, 2, capErr.Capacity)
	assert.True(t, backend.Freed)
}

func TestBuildUndefinedGlobal(t *testing.T) {
	p := New(log.NewTestLogger(t))
	backend := newScenario()
	backend.GlobalOffsets[1] = -1

	_, err := p.Build(backend, options.NewBuild(mode.ELFAsm, x64))
	var globalErr *UndefinedGlobalError
	assert.True(t, errors.As(err, &globalErr))
	assert.Equal(t, "vm_return", globalErr.Name)
	assert.Equal(t, "undefined global vm_return", err.Error())
}

func TestBuildLinkErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(b *mocks.Backend)
		status  uint32
		message string
	}{
		{
			name:    "link failure",
			setup:   func(b *mocks.Backend) { b.LinkErr = &arch.LinkError{Status: arch.StatusUndefGlobal | 1} },
			status:  0x21000001,
			message: "linking interpreter: global vm_return: DASM error 21000001",
		},
		{
			name:    "link failure with unknown index",
			setup:   func(b *mocks.Backend) { b.LinkErr = &arch.LinkError{Status: arch.StatusUndefGlobal | 3} },
			status:  0x21000003,
			message: "linking interpreter: DASM error 21000003",
		},
		{
			name:    "extern out of range",
			setup:   func(b *mocks.Backend) { b.LinkErr = arch.NewLinkError(arch.StatusRangeExtern, 2) },
			status:  0x11000002,
			message: "linking interpreter: extern RtlUnwind@16: DASM error 11000002",
		},
		{
			name:    "phase error",
			setup:   func(b *mocks.Backend) { b.LinkErr = arch.NewLinkError(arch.StatusPhase, 0) },
			status:  0x06000000,
			message: "linking interpreter: DASM error 06000000",
		},
		{
			name:    "undefined instruction label",
			setup:   func(b *mocks.Backend) { b.PCOffsets[1] = -1 },
			status:  0x22000001,
			message: "instruction LOADK: DASM error 22000001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(log.NewTestLogger(t))
			backend := newScenario()
			tt.setup(backend)

			_, err := p.Build(backend, options.NewBuild(mode.Raw, x64))
			var linkErr *arch.LinkError
			assert.True(t, errors.As(err, &linkErr))
			assert.Equal(t, tt.status, linkErr.Status)
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestBuildBackendError(t *testing.T) {
	p := New(log.NewTestLogger(t))
	backend := newScenario()
	backend.BuildErr = errors.New("template failure")

	_, err := p.Build(backend, options.NewBuild(mode.Raw, x64))
	assert.ErrorContains(t, err, "building interpreter: template failure")
}

func TestBuildExclusionAndInternalGlobals(t *testing.T) {
	p := New(log.NewTestLogger(t))
	backend := newScenario()
	backend.NamesValue.Globals = []string{"vm_entry", "vm_dispatch_Z"}

	excluded := set.New[int]()
	excluded.Add(1)
	opts := options.NewBuild(mode.ELFAsm, x64)
	opts.Exclude = symbols.ExcludeSet(excluded)

	app, err := p.Build(backend, opts)
	assert.NoError(t, err)

	names := make([]string, 0, len(app.Symbols))
	for _, sym := range app.Symbols {
		names = append(names, sym.Name)
	}
	assert.Equal(t, "ravi_BC_MOVE,ravi_BC_JMP,ravi_vm_entry,", strings.Join(names, ","))
	// excluded labels keep their offsets for the offset table
	assert.Len(t, app.BCOffsets, 3)
}

func TestBuildDecoration(t *testing.T) {
	tests := []struct {
		name   string
		mode   mode.Mode
		target target.Target
		begin  string
		extern string
	}{
		{
			name:   "x64 elf",
			mode:   mode.ELFAsm,
			target: x64,
			begin:  "ravi_vm_asm_begin",
			extern: "RtlUnwind",
		},
		{
			name:   "x64 macho",
			mode:   mode.MachAsm,
			target: x64,
			begin:  "_ravi_vm_asm_begin",
			extern: "_RtlUnwind",
		},
		{
			name:   "x86 coff",
			mode:   mode.COFFAsm,
			target: target.Target{Arch: target.X86, WordSize: 32},
			begin:  "_ravi_vm_asm_begin",
			extern: "_RtlUnwind@16",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(log.NewTestLogger(t))
			backend := newScenario()
			backend.TargetValue = tt.target
			backend.Externs = []mocks.ExternRef{{Offset: 12, Index: 2, Kind: reloc.Rel32}}

			app, err := p.Build(backend, options.NewBuild(tt.mode, tt.target))
			assert.NoError(t, err)
			assert.Equal(t, tt.begin, app.BeginSymbol)
			assert.Equal(t, tt.extern, app.RelocSymbols[0].Name)
			assert.Equal(t, "RtlUnwind@16", app.RelocSymbols[0].Raw)
		})
	}
}

func TestEmitterForMode(t *testing.T) {
	for _, m := range mode.All() {
		constructor, err := emitterForMode(m)
		assert.NoError(t, err)
		assert.NotNil(t, constructor)
	}

	_, err := emitterForMode(mode.Mode(99))
	assert.ErrorContains(t, err, "unsupported mode 'mode(99)'")
}

func TestExecute(t *testing.T) {
	logger := log.NewTestLogger(t)
	p := New(logger)

	opts := options.Program{
		Parameters: options.Parameters{Mode: "bcdef", Output: "-", Arch: "x64"},
		Flags:      options.Flags{Quiet: true},
	}
	buildOpts := options.NewBuild(mode.BCDef, target.Target{})

	var buf bytes.Buffer
	app, err := p.Execute(context.Background(), opts, buildOpts, &buf)
	assert.NoError(t, err)
	assert.Equal(t, target.X64, app.Target.Arch)

	output := buf.String()
	assert.True(t, strings.HasPrefix(output, "/* This is a generated file. DO NOT EDIT! */\n\n"))
	assert.True(t, strings.HasSuffix(output, "\n};\n"))
	assert.True(t, strings.Contains(output, "RAVI_DATADEF const uint16_t lj_bc_ofs[] = {\n0,\n"))
}

func TestExecuteVerifyConsole(t *testing.T) {
	p := New(log.NewTestLogger(t))

	opts := options.Program{
		Parameters: options.Parameters{Output: "-", Arch: "x86"},
		Flags:      options.Flags{Quiet: true, AssembleTest: true},
	}

	var buf bytes.Buffer
	_, err := p.Execute(context.Background(), opts, options.NewBuild(mode.Raw, target.Target{}), &buf)
	assert.ErrorContains(t, err, "can not verify console output")
	assert.True(t, buf.Len() > 0)
}
