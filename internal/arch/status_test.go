package arch

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestLinkError(t *testing.T) {
	err := NewLinkError(StatusUndefPC, 5)
	assert.Equal(t, uint32(0x22000005), err.Status)
	assert.Equal(t, uint32(StatusUndefPC), err.Kind())
	assert.Equal(t, 5, err.Index())
	assert.Equal(t, "DASM error 22000005", err.Error())

	phase := NewLinkError(StatusPhase, 0)
	assert.Equal(t, "DASM error 06000000", phase.Error())
}
