package writer

import (
	"bytes"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestBundleDataWrites(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{
			name:     "empty",
			data:     nil,
			expected: "",
		},
		{
			name:     "partial line",
			data:     []byte{0x48, 0x89, 0xe5},
			expected: "\t.byte 0x48,0x89,0xe5\n",
		},
		{
			name: "line wrap",
			data: bytes.Repeat([]byte{0xcc}, 17),
			expected: "\t.byte 0xcc,0xcc,0xcc,0xcc,0xcc,0xcc,0xcc,0xcc,0xcc,0xcc,0xcc,0xcc,0xcc,0xcc,0xcc,0xcc\n" +
				"\t.byte 0xcc\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := New(&buf, Options{DirectivePrefix: "\t"})
			assert.NoError(t, w.BundleDataWrites(tt.data))
			assert.Equal(t, tt.expected, buf.String())
		})
	}
}

func TestDirectiveAndLabel(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, Options{DirectivePrefix: "\t"})

	assert.NoError(t, w.Directive(".globl %s", "ravi_vm_entry"))
	assert.NoError(t, w.Label("ravi_vm_entry"))
	assert.NoError(t, w.EmptyLine())
	assert.Equal(t, "\t.globl ravi_vm_entry\nravi_vm_entry:\n\n", buf.String())
}
