// Package verification verifies that the generated output file contains the
// built machine code.
package verification

import (
	"context"
	"debug/elf"
	"debug/pe"
	"errors"
	"fmt"
	"os"

	"github.com/retroenv/buildvm/internal/emitter/gas"
	"github.com/retroenv/buildvm/internal/mode"
	"github.com/retroenv/buildvm/internal/options"
	"github.com/retroenv/buildvm/internal/program"
	"github.com/retroenv/retrogolib/log"
)

const relocFieldSize = 4

var errConsoleOutput = errors.New("can not verify console output")

// VerifyOutput verifies that the output file contains the exact code of the program.
func VerifyOutput(ctx context.Context, logger *log.Logger, options options.Program, app *program.Program) error {
	if options.Output == "" || options.Output == "-" {
		return errConsoleOutput
	}

	var (
		code   []byte
		relocs int
		err    error
	)

	switch app.Mode {
	case mode.Raw:
		code, err = os.ReadFile(options.Output)
		if err != nil {
			return fmt.Errorf("reading output file for comparison: %w", err)
		}
		relocs = len(app.Relocs)

	case mode.ELFAsm:
		code, relocs, err = assembleELF(ctx, options, app)
		if err != nil {
			return err
		}

	case mode.PEObj:
		code, relocs, err = readCOFF(options.Output)
		if err != nil {
			return err
		}

	default:
		return fmt.Errorf("verification is not supported for mode %s", app.Mode)
	}

	if relocs != len(app.Relocs) {
		return fmt.Errorf("relocation count mismatch, expected %d but got %d", len(app.Relocs), relocs)
	}
	if err := checkBufferEqual(logger, app, code); err != nil {
		return fmt.Errorf("code mismatch: %w", err)
	}
	return nil
}

// assembleELF assembles the output file and returns the code section of the
// object file and its number of relocations.
func assembleELF(ctx context.Context, options options.Program, app *program.Program) ([]byte, int, error) {
	var (
		err        error
		objectFile *os.File
	)

	if options.Debug {
		objectFile, err = os.Create("debug.o")
		if err != nil {
			return nil, 0, fmt.Errorf("creating file 'debug.o': %w", err)
		}
	} else {
		objectFile, err = os.CreateTemp("", "buildvm.*.o")
		if err != nil {
			return nil, 0, fmt.Errorf("creating temp file: %w", err)
		}
		defer func() {
			_ = os.Remove(objectFile.Name())
		}()
	}
	_ = objectFile.Close()

	if err := gas.AssembleUsingExternalApp(ctx, app.Target, options.Output, objectFile.Name()); err != nil {
		return nil, 0, fmt.Errorf("reassembling output using as failed: %w", err)
	}

	file, err := elf.Open(objectFile.Name())
	if err != nil {
		return nil, 0, fmt.Errorf("opening object file: %w", err)
	}
	defer func() { _ = file.Close() }()

	text := file.Section(".text")
	if text == nil {
		return nil, 0, errors.New("object file has no .text section")
	}
	code, err := text.Data()
	if err != nil {
		return nil, 0, fmt.Errorf("reading .text section: %w", err)
	}

	relocs := 0
	for _, section := range file.Sections {
		if (section.Type == elf.SHT_RELA || section.Type == elf.SHT_REL) && section.Info == uint32(sectionIndex(file, text)) {
			entrySize := section.Entsize
			if entrySize > 0 {
				relocs += int(section.Size / entrySize)
			}
		}
	}
	return code, relocs, nil
}

// readCOFF returns the code section of the object file and its number of relocations.
func readCOFF(name string) ([]byte, int, error) {
	file, err := pe.Open(name)
	if err != nil {
		return nil, 0, fmt.Errorf("opening object file: %w", err)
	}
	defer func() { _ = file.Close() }()

	text := file.Section(".text")
	if text == nil {
		return nil, 0, errors.New("object file has no .text section")
	}
	code, err := text.Data()
	if err != nil {
		return nil, 0, fmt.Errorf("reading .text section: %w", err)
	}
	return code, len(text.Relocs), nil
}

func sectionIndex(file *elf.File, section *elf.Section) int {
	for i, s := range file.Sections {
		if s == section {
			return i
		}
	}
	return -1
}

// checkBufferEqual compares the code, ignoring relocation fields whose
// content depends on the object format.
func checkBufferEqual(logger *log.Logger, app *program.Program, output []byte) error {
	input := app.Code
	if len(input) != len(output) {
		return fmt.Errorf("mismatched lengths, %d != %d", len(input), len(output))
	}

	masked := make([]bool, len(input))
	for _, r := range app.Relocs {
		for i := range relocFieldSize {
			if pos := int(r.Offset) + i; pos < len(masked) {
				masked[pos] = true
			}
		}
	}

	var diffs uint64
	for i := range input {
		if masked[i] || input[i] == output[i] {
			continue
		}

		diffs++
		if diffs < 10 {
			logger.Error("Offset mismatch",
				log.Hex("offset", i),
				log.Hex("expected", input[i]),
				log.Hex("got", output[i]))
		}
	}
	if diffs == 0 {
		return nil
	}
	return fmt.Errorf("%d offset mismatches", diffs)
}

