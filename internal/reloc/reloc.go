// Package reloc collects the references to external symbols that the
// generated code contains and that are resolved by a downstream linker.
package reloc

import (
	"errors"
	"fmt"

	"github.com/retroenv/buildvm/internal/decorate"
)

// DefaultCapacity is the maximum number of relocations of one build.
const DefaultCapacity = 200

// ErrCapacity is matched by errors returned when the relocation capacity is exhausted.
var ErrCapacity = errors.New("too many relocations")

// Kind is the relocation type.
type Kind int

const (
	Abs32 Kind = iota // 32 bit absolute address
	Rel32             // 32 bit address relative to the end of the field
)

func (k Kind) String() string {
	switch k {
	case Abs32:
		return "abs32"
	case Rel32:
		return "rel32"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Relocation is a reference to an external symbol at a code offset.
type Relocation struct {
	Offset int32 // offset of the 4 byte field in the code
	Symbol int   // local symbol id
	Kind   Kind
}

// Symbol is an external symbol referenced by at least one relocation.
type Symbol struct {
	Raw  string
	Name string // decorated name
}

// CapacityError is returned when more relocations are requested than the
// configured capacity allows.
type CapacityError struct {
	Name     string
	Count    int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("too many relocations, %d of %d used when referencing '%s', increase the relocation capacity",
		e.Count, e.Capacity, e.Name)
}

// Is makes the error match ErrCapacity.
func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacity
}

// Interner deduplicates external symbol references into a dense local table.
// A new interner has to be created for every build.
type Interner struct {
	names    []string
	decorate decorate.Func
	capacity int

	localIDs []int // indexed by symbol index, -1 for unseen symbols
	symbols  []Symbol
	relocs   []Relocation
}

// New returns an interner for the given static extern name table.
func New(names []string, capacity int, decorate decorate.Func) *Interner {
	localIDs := make([]int, len(names))
	for i := range localIDs {
		localIDs[i] = -1
	}

	return &Interner{
		names:    names,
		decorate: decorate,
		capacity: capacity,
		localIDs: localIDs,
		symbols:  make([]Symbol, 0, len(names)),
		relocs:   make([]Relocation, 0, capacity),
	}
}

// Reference records a reference to the extern symbol with the given index
// at the code offset and returns its local id.
func (in *Interner) Reference(offset int32, index int, kind Kind) (int, error) {
	if index < 0 || index >= len(in.names) {
		return 0, fmt.Errorf("extern symbol index %d out of range, %d symbols declared", index, len(in.names))
	}
	if len(in.relocs) >= in.capacity {
		return 0, &CapacityError{
			Name:     in.names[index],
			Count:    len(in.relocs),
			Capacity: in.capacity,
		}
	}

	id := in.localIDs[index]
	if id < 0 {
		id = len(in.symbols)
		in.localIDs[index] = id
		raw := in.names[index]
		in.symbols = append(in.symbols, Symbol{
			Raw:  raw,
			Name: in.decorate(raw),
		})
	}

	in.relocs = append(in.relocs, Relocation{
		Offset: offset,
		Symbol: id,
		Kind:   kind,
	})
	return id, nil
}

// Symbols returns the interned symbols ordered by local id.
func (in *Interner) Symbols() []Symbol {
	return in.symbols
}

// Relocations returns all recorded relocations in request order.
func (in *Interner) Relocations() []Relocation {
	return in.relocs
}
