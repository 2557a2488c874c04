// Package paths resolves per-user locations used by fwid.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigFileName is the name of the configuration file inside ConfigDir.
const ConfigFileName = "config.yaml"

// ConfigDir returns the config directory for fwid.
// Order: XDG_CONFIG_HOME/fwid, platform-specific fallback.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fwid")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("AppData"); appData != "" {
			return filepath.Join(appData, "fwid")
		}
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "fwid")
}

// DefaultConfigFile returns the configuration file read when --config is
// not given. The file is optional.
func DefaultConfigFile() string {
	return filepath.Join(ConfigDir(), ConfigFileName)
}
