package installer

import (
	"fmt"
	"os"
)

// FileProtector applies and removes the platform's hidden and read-only
// attributes on an installed artifact.
type FileProtector interface {
	Protect(path string) error
	Unprotect(path string) error
}

// NewFileProtector returns the protector for the running platform, or a
// NoopProtector when protection is disabled.
func NewFileProtector(enabled bool) FileProtector {
	if !enabled {
		return NoopProtector{}
	}
	return platformProtector{}
}

// NoopProtector leaves files untouched
type NoopProtector struct{}

func (NoopProtector) Protect(string) error   { return nil }
func (NoopProtector) Unprotect(string) error { return nil }

const (
	readOnlyMode os.FileMode = 0o444
	writableMode os.FileMode = 0o666
)

func chmod(path string, mode os.FileMode) error {
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("failed to set mode %o on %s: %w", mode, path, err)
	}
	return nil
}
