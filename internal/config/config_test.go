package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Remote.BaseURL = "https://api.example.test"
	cfg.Sync.Interval = Duration{90 * time.Second}
	cfg.Sync.MaxAttempts = 4
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Remote.BaseURL != "https://api.example.test" {
		t.Errorf("BaseURL = %q", loaded.Remote.BaseURL)
	}
	if loaded.Sync.Interval.Duration != 90*time.Second {
		t.Errorf("Interval = %v, want 1m30s", loaded.Sync.Interval)
	}
	if loaded.Sync.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4", loaded.Sync.MaxAttempts)
	}
}

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.MaxAttempts != 10 {
		t.Errorf("MaxAttempts = %d, want default 10", cfg.Sync.MaxAttempts)
	}
	if cfg.Connectivity.ProbeTimeout.Duration != 3*time.Second {
		t.Errorf("ProbeTimeout = %v, want 3s", cfg.Connectivity.ProbeTimeout)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "[remote]\nbase_url = \"http://localhost:8080\"\n\n[sync]\ninterval = \"0s\"\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sync.Interval.Duration != 0 {
		t.Errorf("Interval = %v, want 0", cfg.Sync.Interval)
	}
	if cfg.Sync.PushBatchSize != 50 {
		t.Errorf("PushBatchSize = %d, want default 50", cfg.Sync.PushBatchSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[sync]\ninterval = \"soon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for bad duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(*Config) {}, false},
		{"missing url", func(c *Config) { c.Remote.BaseURL = "" }, true},
		{"bad scheme", func(c *Config) { c.Remote.BaseURL = "ftp://x" }, true},
		{"zero batch", func(c *Config) { c.Sync.PushBatchSize = 0 }, true},
		{"zero attempts", func(c *Config) { c.Sync.MaxAttempts = 0 }, true},
		{"negative retries", func(c *Config) { c.Sync.RequestRetries = -1 }, true},
		{"zero retry base", func(c *Config) { c.Sync.RetryBase = Duration{} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Remote.BaseURL = "https://api.example.test"
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBearerTokenPrefersEnv(t *testing.T) {
	t.Setenv("SHIFTSYNC_TEST_TOKEN", "from-env")
	r := Remote{Token: "inline", TokenEnv: "SHIFTSYNC_TEST_TOKEN"}
	if got := r.BearerToken(); got != "from-env" {
		t.Errorf("BearerToken() = %q, want from-env", got)
	}
	r.TokenEnv = "SHIFTSYNC_TEST_UNSET"
	if got := r.BearerToken(); got != "inline" {
		t.Errorf("BearerToken() = %q, want inline", got)
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := Save(path, &Global{ActiveProfile: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}

	g, err := LoadGlobal(path)
	if err != nil {
		t.Fatal(err)
	}
	if g.ActiveProfile != "main" {
		t.Errorf("ActiveProfile = %q, want main", g.ActiveProfile)
	}
}
