//go:build !windows && !darwin

package installer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformProtector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mod_a.scs")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	p := NewFileProtector(true)
	require.NoError(t, p.Protect(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), info.Mode().Perm())

	require.NoError(t, p.Unprotect(path))
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o666), info.Mode().Perm())
}

func TestNewFileProtector_Disabled(t *testing.T) {
	assert.IsType(t, NoopProtector{}, NewFileProtector(false))
	assert.Error(t, NewFileProtector(true).Protect(filepath.Join(t.TempDir(), "missing")))
}
