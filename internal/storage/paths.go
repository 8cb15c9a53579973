// Package storage persists completed root analyses between sessions.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "kestrel"

// DataDir returns the platform-specific data directory for the engine,
// creating it if needed.
//   - macOS: ~/Library/Application Support/kestrel/
//   - Linux: $XDG_DATA_HOME/kestrel/ or ~/.local/share/kestrel/
//   - Windows: %APPDATA%/kestrel/
func DataDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(homeDir, "Library", "Application Support")

	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, "AppData", "Roaming")
		}

	default:
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, ".local", "share")
		}
	}

	dataDir := filepath.Join(baseDir, appName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dataDir, nil
}

// AnalysisDir returns the directory holding the analysis database. An
// explicit dir wins over the platform default.
func AnalysisDir(dir string) (string, error) {
	if dir == "" {
		dataDir, err := DataDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(dataDir, "analysis")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create analysis dir: %w", err)
	}
	return dir, nil
}
