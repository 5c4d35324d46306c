package profile

import (
	"os"

	"github.com/matheus3301/shiftsync/internal/config"
)

const (
	// DefaultName is used when nothing else selects a profile.
	DefaultName = "default"
	// NameEnv selects a profile from the environment.
	NameEnv = "SHIFTSYNC_PROFILE"
)

// Resolve determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. $SHIFTSYNC_PROFILE
// 3. active_profile in the global config.toml
// 4. "default"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if name := os.Getenv(NameEnv); name != "" {
		return name
	}
	g, err := config.LoadGlobal(GlobalConfigPath())
	if err == nil && g.ActiveProfile != "" {
		return g.ActiveProfile
	}
	return DefaultName
}
