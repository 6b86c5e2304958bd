// Package pipeline orchestrates the interpreter build workflow stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/retroenv/buildvm/internal/arch"
	"github.com/retroenv/buildvm/internal/arch/x86"
	"github.com/retroenv/buildvm/internal/decorate"
	"github.com/retroenv/buildvm/internal/detector"
	"github.com/retroenv/buildvm/internal/emitter"
	"github.com/retroenv/buildvm/internal/emitter/bcdef"
	"github.com/retroenv/buildvm/internal/emitter/gas"
	"github.com/retroenv/buildvm/internal/emitter/peobj"
	"github.com/retroenv/buildvm/internal/emitter/raw"
	"github.com/retroenv/buildvm/internal/mode"
	"github.com/retroenv/buildvm/internal/options"
	"github.com/retroenv/buildvm/internal/program"
	"github.com/retroenv/buildvm/internal/reloc"
	"github.com/retroenv/buildvm/internal/symbols"
	"github.com/retroenv/buildvm/internal/target"
	"github.com/retroenv/buildvm/internal/verification"
	"github.com/retroenv/retrogolib/log"
)

// UndefinedGlobalError is returned when the backend did not define a
// declared global label.
type UndefinedGlobalError struct {
	Name string
}

func (e *UndefinedGlobalError) Error() string {
	return "undefined global " + e.Name
}

// Pipeline orchestrates the complete build workflow.
type Pipeline struct {
	logger   *log.Logger
	detector *detector.Detector
}

// New creates a new build pipeline.
func New(logger *log.Logger) *Pipeline {
	return &Pipeline{
		logger:   logger,
		detector: detector.New(logger),
	}
}

// Execute runs the complete build pipeline and writes the output.
func (p *Pipeline) Execute(ctx context.Context, opts options.Program, buildOpts options.Build,
	writer io.Writer) (*program.Program, error) {

	t, err := p.detector.Detect(opts)
	if err != nil {
		return nil, fmt.Errorf("detecting target: %w", err)
	}
	buildOpts.Target = t

	backend, err := p.createBackend(t, buildOpts.Mode)
	if err != nil {
		return nil, fmt.Errorf("creating backend: %w", err)
	}

	newEmitter, err := emitterForMode(buildOpts.Mode)
	if err != nil {
		return nil, fmt.Errorf("initializing emitter: %w", err)
	}

	p.printInfo(opts, buildOpts)

	app, err := p.Build(backend, buildOpts)
	if err != nil {
		return nil, err
	}

	if err := newEmitter(app, writer).Write(); err != nil {
		return nil, fmt.Errorf("writing output: %w", err)
	}

	if opts.AssembleTest {
		if err := verification.VerifyOutput(ctx, p.logger, opts, app); err != nil {
			return nil, fmt.Errorf("verification failed: %w", err)
		}
		p.logger.Info("Verification successful")
	}

	return app, nil
}

// Build encodes the interpreter using the backend and collects the symbol
// and relocation tables. The backend is freed before returning.
func (p *Pipeline) Build(backend arch.Backend, opts options.Build) (*program.Program, error) {
	defer backend.Free()

	names := backend.Names()
	decorator := decorate.For(opts.Mode, backend.Target())
	app := program.New(opts.Mode, backend.Target(), names.Globals)
	interner := reloc.New(names.Externs, opts.RelocCapacity, decorator)

	if err := backend.Build(); err != nil {
		return nil, fmt.Errorf("building interpreter: %w", err)
	}

	size, err := backend.Link()
	if err != nil {
		return nil, fmt.Errorf("linking interpreter: %w", describeLinkError(err, names))
	}
	p.logger.Debug("Interpreter linked", log.Int("size", size))

	app.Code = make([]byte, size)
	err = backend.Encode(app.Code, func(offset int32, index int, kind reloc.Kind) (int32, error) {
		if _, err := interner.Reference(offset, index, kind); err != nil {
			return 0, err
		}
		// the linker resolves the field
		return 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("encoding interpreter: %w", err)
	}
	app.Relocs = interner.Relocations()
	app.RelocSymbols = interner.Symbols()
	p.logger.Debug("Interpreter encoded",
		log.Int("relocations", len(app.Relocs)),
		log.Int("externs", len(app.RelocSymbols)))

	if err := p.collectLabels(backend, names, app); err != nil {
		return nil, describeLinkError(err, names)
	}

	labels := symbols.Labels{
		PCNames:       names.Instructions,
		PCOffsets:     app.BCOffsets,
		GlobalNames:   names.Globals,
		GlobalOffsets: app.GlobalOffsets,
		CodeSize:      app.CodeSize(),
	}
	naming := symbols.Naming{
		PCPrefix:     names.PCPrefix,
		GlobalPrefix: names.GlobalPrefix,
		Decorate:     decorator,
	}
	app.Symbols = symbols.Collect(labels, naming, opts.Exclude).Symbols()
	app.BeginSymbol = decorator(names.GlobalPrefix + program.BeginSymbol)
	p.logger.Debug("Symbol table collected", log.Int("symbols", len(app.Symbols)))

	return app, nil
}

// describeLinkError adds the name of the item that a link status refers to.
func describeLinkError(err error, names arch.Names) error {
	var linkErr *arch.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}

	var kind string
	var table []string
	switch linkErr.Kind() {
	case arch.StatusUndefPC, arch.StatusRangePC:
		kind, table = "instruction", names.Instructions
	case arch.StatusUndefGlobal, arch.StatusRangeGlobal:
		kind, table = "global", names.Globals
	case arch.StatusRangeExtern:
		kind, table = "extern", names.Externs
	default:
		return err
	}

	index := linkErr.Index()
	if index >= len(table) {
		return err
	}
	return fmt.Errorf("%s %s: %w", kind, table[index], err)
}

// collectLabels reads the offsets of all instruction handlers and globals.
func (p *Pipeline) collectLabels(backend arch.Backend, names arch.Names, app *program.Program) error {
	app.BCOffsets = make([]int32, len(names.Instructions))
	for i := range names.Instructions {
		offset, ok := backend.PCLabel(i)
		if !ok {
			return arch.NewLinkError(arch.StatusUndefPC, i)
		}
		app.BCOffsets[i] = offset
	}

	for i, name := range names.Globals {
		offset, ok := backend.Global(i)
		if !ok {
			return &UndefinedGlobalError{Name: name}
		}
		app.GlobalOffsets[i] = offset
	}
	return nil
}

// createBackend creates the interpreter backend for the target architecture
// and the object-format family of the output mode.
func (p *Pipeline) createBackend(t target.Target, m mode.Mode) (arch.Backend, error) {
	switch t.Arch {
	case target.X64, target.X86:
		backend, err := x86.New(p.logger, t, m.Family())
		if err != nil {
			return nil, fmt.Errorf("creating x86 backend: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported architecture '%s'", t.Arch)
	}
}

// emitterForMode returns the emitter constructor of the output mode.
func emitterForMode(m mode.Mode) (emitter.Constructor, error) {
	switch m {
	case mode.ELFAsm, mode.COFFAsm, mode.MachAsm:
		return gas.New, nil
	case mode.PEObj:
		return peobj.New, nil
	case mode.Raw:
		return raw.New, nil
	case mode.BCDef:
		return bcdef.New, nil
	default:
		return nil, fmt.Errorf("unsupported mode '%s'", m)
	}
}

// printInfo prints information about the build being processed.
func (p *Pipeline) printInfo(opts options.Program, buildOpts options.Build) {
	if opts.Quiet {
		return
	}

	p.logger.Info("Building interpreter",
		log.Stringer("mode", buildOpts.Mode),
		log.Stringer("target", buildOpts.Target),
		log.String("output", opts.Output),
	)
}
