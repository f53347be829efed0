//go:build !windows && !darwin

package installer

type platformProtector struct{}

func (platformProtector) Protect(path string) error   { return chmod(path, readOnlyMode) }
func (platformProtector) Unprotect(path string) error { return chmod(path, writableMode) }
