package symbols

import "github.com/retroenv/retrogolib/set"

// Policy decides whether the label of an instruction is left out of the
// symbol table.
type Policy func(instruction int) bool

// ExcludeNone keeps the labels of all instructions.
func ExcludeNone(int) bool {
	return false
}

// ExcludeSet leaves out the labels of the given instructions.
func ExcludeSet(excluded set.Set[int]) Policy {
	return func(instruction int) bool {
		return excluded.Contains(instruction)
	}
}
