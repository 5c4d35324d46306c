package profile

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory, mostly for tests and packaging.
const HomeEnv = "SHIFTSYNC_HOME"

// BaseDir returns $SHIFTSYNC_HOME or ~/.shiftsync.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".shiftsync")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// SocketPath returns the daemon socket of a profile.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// StorePath returns the local store database of a profile.
func StorePath(name string) string {
	return filepath.Join(Dir(name), "store.db")
}

// LogPath returns the daemon log file of a profile.
func LogPath(name string) string {
	return filepath.Join(Dir(name), "shiftsync.log")
}

// ConfigPath returns the config file of a profile.
func ConfigPath(name string) string {
	return filepath.Join(Dir(name), "config.toml")
}

// GlobalConfigPath returns the config shared by all profiles.
func GlobalConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory with owner-only permissions.
func EnsureDir(name string) error {
	return os.MkdirAll(Dir(name), 0700)
}
