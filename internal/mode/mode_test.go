package mode

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestParse(t *testing.T) {
	for _, m := range All() {
		parsed, err := Parse(m.String())
		assert.NoError(t, err)
		assert.Equal(t, m, parsed)
	}

	_, err := Parse("elf")
	assert.ErrorContains(t, err, "unsupported mode 'elf'")
}

func TestBinary(t *testing.T) {
	tests := []struct {
		mode   Mode
		binary bool
	}{
		{ELFAsm, false},
		{COFFAsm, false},
		{MachAsm, false},
		{PEObj, true},
		{Raw, true},
		{BCDef, false},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			assert.Equal(t, tt.binary, tt.mode.Binary())
		})
	}
}

func TestFamily(t *testing.T) {
	assert.Equal(t, FamilyELF, ELFAsm.Family())
	assert.Equal(t, FamilyCOFF, COFFAsm.Family())
	assert.Equal(t, FamilyCOFF, PEObj.Family())
	assert.Equal(t, FamilyMachO, MachAsm.Family())
	assert.Equal(t, FamilyNone, Raw.Family())
	assert.Equal(t, FamilyNone, BCDef.Family())
}

func TestString(t *testing.T) {
	assert.Equal(t, "peobj", PEObj.String())
	assert.Equal(t, "mode(42)", Mode(42).String())
	assert.Equal(t, 6, len(Names()))
}
