// Package xdg provides XDG Base Directory paths for Helioshell.
package xdg

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "helioshell"

// ConfigDir returns the XDG config directory for helioshell.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// CacheDir returns the XDG cache directory for helioshell.
// Checks XDG_CACHE_HOME first, falls back to ~/.cache.
// Fetched plugin bundles are cached under here.
func CacheDir() string {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".cache")
	}
	return filepath.Join(base, appName)
}

// BundleCacheDir returns the directory where fetched bundles are cached.
func BundleCacheDir() string {
	return filepath.Join(CacheDir(), "bundles")
}

// StateDir returns the XDG state directory for helioshell.
// Checks XDG_STATE_HOME first, falls back to ~/.local/state.
func StateDir() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".local", "state")
	}
	return filepath.Join(base, appName)
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}
