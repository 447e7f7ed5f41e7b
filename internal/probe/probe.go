// Package probe asks external programs for their version.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/darwinia-network/darwinia-builder/internal/utils/shell"
)

// ErrNotFound means the program is not installed (not on the search path, or
// it ran but could not report a version).
var ErrNotFound = errors.New("not installed")

// ToolStatus is the outcome of probing one program.
type ToolStatus struct {
	Name            string
	DetectedVersion string
	Installed       bool
}

// Version runs `name flag` and returns its trimmed standard output. Some
// programs exit non-zero on a version flag, so any output counts as success.
// Errors other than ErrNotFound mean the program could not be spawned at all.
func Version(ctx context.Context, name, flag string) (string, error) {
	out, err := shell.ExecCmd(ctx, name, flag)
	version := strings.TrimSpace(out)
	if err == nil {
		return version, nil
	}

	switch {
	case shell.IsNotFound(err):
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	case shell.IsExitError(err) && version != "":
		return version, nil
	case shell.IsExitError(err):
		return "", fmt.Errorf("%s reported no version: %w", name, ErrNotFound)
	}
	return "", fmt.Errorf("probing %s: %w", name, err)
}

// Probe is Version folded into a ToolStatus. Only unexpected spawn failures
// are returned as errors.
func Probe(ctx context.Context, name, flag string) (ToolStatus, error) {
	status := ToolStatus{Name: name}
	version, err := Version(ctx, name, flag)
	if errors.Is(err, ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return status, err
	}
	status.DetectedVersion = version
	status.Installed = true
	return status, nil
}
