// Package cli handles command line interface logic
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/retroenv/buildvm/internal/bytecode"
	"github.com/retroenv/buildvm/internal/mode"
	"github.com/retroenv/buildvm/internal/options"
	"github.com/retroenv/buildvm/internal/symbols"
	"github.com/retroenv/buildvm/internal/target"
	"github.com/retroenv/retrogolib/set"
)

// ParseFlags parses command line flags and returns program and build options
func ParseFlags() (options.Program, options.Build, error) {
	flags := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flags.Usage = func() {}
	var opts options.Program
	readOptionFlags(flags, &opts)

	err := flags.Parse(os.Args[1:])
	if err != nil || opts.Mode == "" {
		return opts, options.Build{}, &UsageError{flags: flags}
	}
	opts.Inputs = flags.Args()

	m, err := mode.Parse(strings.ToLower(opts.Mode))
	if err != nil {
		return opts, options.Build{}, &UsageError{flags: flags, msg: err.Error()}
	}

	if err := validateOptionCombinations(opts, m); err != nil {
		return opts, options.Build{}, err
	}

	buildOpts := options.NewBuild(m, target.Target{})
	if opts.Exclude != "" {
		policy, err := parseExclusion(opts.Exclude)
		if err != nil {
			return opts, options.Build{}, &UsageError{flags: flags, msg: err.Error()}
		}
		buildOpts.Exclude = policy
	}

	return opts, buildOpts, nil
}

// UsageError represents an error that should show usage information
type UsageError struct {
	flags *flag.FlagSet
	msg   string
}

func (e *UsageError) Error() string {
	if e.msg == "" {
		return "invalid arguments"
	}
	return e.msg
}

// ShowUsage prints the usage information to standard error.
func (e *UsageError) ShowUsage() {
	e.WriteUsage(os.Stderr)
}

// WriteUsage prints the usage information to the writer.
func (e *UsageError) WriteUsage(w io.Writer) {
	if e.msg != "" {
		_, _ = fmt.Fprintf(w, "%s\n\n", e.msg)
	}
	_, _ = fmt.Fprintf(w, "usage: buildvm -m mode [options] [--] [input files]\n\n")
	_, _ = fmt.Fprintf(w, "Available modes: %s\n\n", strings.Join(mode.Names(), ", "))
	if e.flags != nil {
		e.flags.SetOutput(w)
		e.flags.PrintDefaults()
	}
	_, _ = fmt.Fprintln(w)
}

// validateOptionCombinations checks for options that can not be used together
func validateOptionCombinations(opts options.Program, m mode.Mode) error {
	if !opts.AssembleTest {
		return nil
	}
	if opts.Output == options.StdStream {
		return &UsageError{msg: "option -verify requires an output file"}
	}
	switch m {
	case mode.Raw, mode.ELFAsm, mode.PEObj:
		return nil
	default:
		return &UsageError{msg: fmt.Sprintf("option -verify is not supported for mode %s", m)}
	}
}

// parseExclusion returns a policy that excludes the comma separated
// instruction names from the symbol table.
func parseExclusion(list string) (symbols.Policy, error) {
	index := make(map[string]int, bytecode.NumOpcodes)
	for i, name := range bytecode.Names() {
		index[name] = i
	}

	excluded := set.New[int]()
	for _, name := range strings.Split(list, ",") {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		op, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("unknown instruction '%s' in exclusion list", name)
		}
		excluded.Add(op)
	}
	return symbols.ExcludeSet(excluded), nil
}

func readOptionFlags(flags *flag.FlagSet, opts *options.Program) {
	flags.StringVar(&opts.Mode, "m", "", "output mode ("+strings.Join(mode.Names(), "/")+")")
	flags.StringVar(&opts.Output, "o", options.StdStream, "name of the output file, - writes to the console")
	flags.StringVar(&opts.Arch, "a", "", "target architecture (x64/x86), defaults to the host architecture")
	flags.StringVar(&opts.Exclude, "exclude", "", "comma separated list of instructions to omit from the symbol table")
	flags.BoolVar(&opts.Debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVar(&opts.Quiet, "q", false, "perform operations quietly")
	flags.BoolVar(&opts.AssembleTest, "verify", false, "verify the generated output by assembling or parsing it and check if it matches the built code")
}
