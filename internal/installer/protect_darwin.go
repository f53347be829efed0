//go:build darwin

package installer

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

type platformProtector struct{}

func (platformProtector) Protect(path string) error {
	if err := setHidden(path, true); err != nil {
		return err
	}
	return chmod(path, readOnlyMode)
}

// Unprotect restores the hidden flag when the mode cannot be changed
func (platformProtector) Unprotect(path string) error {
	if err := setHidden(path, false); err != nil {
		return err
	}
	if err := chmod(path, writableMode); err != nil {
		if herr := setHidden(path, true); herr != nil {
			return errors.Join(err, herr)
		}
		return err
	}
	return nil
}

func setHidden(path string, hidden bool) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	flags := st.Flags &^ unix.UF_HIDDEN
	if hidden {
		flags |= unix.UF_HIDDEN
	}
	if err := unix.Chflags(path, int(flags)); err != nil {
		return fmt.Errorf("failed to change flags on %s: %w", path, err)
	}
	return nil
}
