package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultInstallRoot returns the game's mod folder under the user's Documents.
func DefaultInstallRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("Documents", "Euro Truck Simulator 2", "mod")
	}
	return filepath.Join(home, "Documents", "Euro Truck Simulator 2", "mod")
}

// UserConfigDir returns the per-user directory for CLI state, creating it if needed.
func UserConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	dir := filepath.Join(base, ConfigDirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config dir %s: %w", dir, err)
	}
	return dir, nil
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}
