package symbols

// Labels contains the label offsets that the backend reported.
type Labels struct {
	PCNames   []string // raw instruction label names, indexed by instruction
	PCOffsets []int32

	GlobalNames   []string // raw global label names
	GlobalOffsets []int32

	CodeSize int32
}

// Naming decorates the label names that are added to the table.
type Naming struct {
	PCPrefix     string // prefix of instruction labels, like ravi_BC_
	GlobalPrefix string // prefix of global labels, like ravi_
	Decorate     func(raw string) string
}

// Collect builds the symbol table from instruction labels, global labels and
// the closing sentinel at the end of the code.
func Collect(labels Labels, naming Naming, policy Policy) *Table {
	if policy == nil {
		policy = ExcludeNone
	}

	tbl := New(len(labels.PCOffsets) + len(labels.GlobalOffsets) + 1)

	for i, offset := range labels.PCOffsets {
		if policy(i) {
			continue
		}
		tbl.Insert(offset, naming.Decorate(naming.PCPrefix+labels.PCNames[i]))
	}

	for i, offset := range labels.GlobalOffsets {
		name := labels.GlobalNames[i]
		if IsInternal(name) {
			continue
		}
		tbl.Insert(offset, naming.Decorate(naming.GlobalPrefix+name))
	}

	// close the address range, the sentinel gets no name
	tbl.Insert(labels.CodeSize, "")
	return tbl
}
