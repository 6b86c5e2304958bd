package gas

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/retroenv/buildvm/internal/target"
)

const assemblerName = "as"

// AssembleUsingExternalApp calls the external GNU assembler to create an
// object file from the given assembler source file.
func AssembleUsingExternalApp(ctx context.Context, t target.Target, asmFile, objectFile string) error {
	if _, err := exec.LookPath(assemblerName); err != nil {
		return fmt.Errorf("%s is not installed", assemblerName)
	}

	width := "--32"
	if t.Is64Bit() {
		width = "--64"
	}

	cmd := exec.CommandContext(ctx, assemblerName, width, "-o", objectFile, asmFile)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("assembling file: %s: %w", strings.TrimSpace(string(out)), err)
	}

	return nil
}
