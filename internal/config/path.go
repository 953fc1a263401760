package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the default on-disk location for StreamForge data.
// Order: $STREAMFORGE_DATA_DIR, then ~/.streamforge, then ./streamforge-data.
func DefaultDataDir() string {
	if v := os.Getenv("STREAMFORGE_DATA_DIR"); v != "" {
		return v
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".streamforge")
	}
	return "streamforge-data"
}
