package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lynx96-creator/ets2-mod-api/internal/config"
)

// errNotLoggedIn is returned by commands that need a stored session
var errNotLoggedIn = errors.New("not logged in, run 'modinstaller login' first")

// defaultSessionDir is the per-user directory holding the session token
func defaultSessionDir() string {
	dir, err := config.UserConfigDir()
	if err != nil {
		return "." + config.ConfigDirName
	}
	return dir
}

// tokenStore keeps the session token in a file readable only by the user
type tokenStore struct {
	dir string
}

func (s tokenStore) path() string {
	return filepath.Join(s.dir, config.SessionFileName)
}

func (s tokenStore) save(token string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(s.path(), []byte(token), 0o600); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s tokenStore) load() (string, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return "", errNotLoggedIn
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", errNotLoggedIn
	}
	return token, nil
}

// clear removes the token. It reports whether one existed.
func (s tokenStore) clear() (bool, error) {
	err := os.Remove(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to remove session: %w", err)
	}
	return true, nil
}
