// Package config resolves where paperledger keeps its configuration and
// database on disk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paperledger/paperledger/internal/common"
)

// ExpandPath expands ~ and environment variables in a file path.
// It handles both ~ for home directory and $VAR style environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	// First expand tilde if present
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	// Then expand environment variables
	return os.ExpandEnv(path)
}

// Dir returns the directory searched for config.yaml.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: cannot locate config directory: %v", common.ErrMissingConfig, err)
	}
	return filepath.Join(home, ".config", "paperledger"), nil
}

// DatabasePath resolves the SQLite database location: the configured path
// when set, otherwise the default under the user's data directory.
func DatabasePath(configured string) (string, error) {
	if configured != "" {
		return ExpandPath(configured), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: no database path configured and no home directory: %v", common.ErrMissingConfig, err)
	}
	return filepath.Join(home, ".local", "share", "paperledger", "paperledger.db"), nil
}
