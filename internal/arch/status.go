package arch

import "fmt"

// Link status codes, the low 24 bits contain the index of the affected item.
const (
	StatusOK          = 0
	StatusPhase       = 0x06000000 // encoded size does not match the linked size
	StatusRangeExtern = 0x11000000 // extern index out of range
	StatusRangeGlobal = 0x13000000 // global index out of range
	StatusRangePC     = 0x14000000 // PC label out of range or redefined
	StatusUndefGlobal = 0x21000000 // referenced global is not defined
	StatusUndefPC     = 0x22000000 // referenced or required PC label is not defined

	statusMask = 0xff000000
)

// LinkError is returned when the encoder detects an inconsistency.
type LinkError struct {
	Status uint32
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("DASM error %08x", e.Status)
}

// Kind returns the status code without the item index.
func (e *LinkError) Kind() uint32 {
	return e.Status & statusMask
}

// Index returns the index of the affected item.
func (e *LinkError) Index() int {
	return int(e.Status &^ statusMask)
}

// NewLinkError returns a link error for the status and item index.
func NewLinkError(status uint32, index int) *LinkError {
	return &LinkError{Status: status | uint32(index)&^statusMask}
}
