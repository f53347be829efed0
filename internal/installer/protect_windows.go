//go:build windows

package installer

import (
	"fmt"

	"golang.org/x/sys/windows"
)

type platformProtector struct{}

func (platformProtector) Protect(path string) error {
	return setAttributes(path, windows.FILE_ATTRIBUTE_HIDDEN|windows.FILE_ATTRIBUTE_SYSTEM|windows.FILE_ATTRIBUTE_READONLY)
}

func (platformProtector) Unprotect(path string) error {
	return setAttributes(path, windows.FILE_ATTRIBUTE_NORMAL)
}

func setAttributes(path string, attrs uint32) error {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	if err := windows.SetFileAttributes(name, attrs); err != nil {
		return fmt.Errorf("failed to set attributes on %s: %w", path, err)
	}
	return nil
}
