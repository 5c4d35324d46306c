package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"
)

// Global is the shared ~/.shiftsync/config.toml.
type Global struct {
	ActiveProfile string `toml:"active_profile"`
}

// LoadGlobal reads the global config. A missing file yields an empty Global.
func LoadGlobal(path string) (*Global, error) {
	var g Global
	if _, err := toml.DecodeFile(path, &g); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &g, nil
		}
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &g, nil
}
