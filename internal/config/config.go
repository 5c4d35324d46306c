package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is a profile's config.toml.
type Config struct {
	Remote       Remote       `toml:"remote"`
	Connectivity Connectivity `toml:"connectivity"`
	Sync         Sync         `toml:"sync"`
	Log          Log          `toml:"log"`
}

// Remote describes the backend the engine syncs with.
type Remote struct {
	BaseURL        string   `toml:"base_url"`
	Token          string   `toml:"token"`
	TokenEnv       string   `toml:"token_env"`
	DeviceID       string   `toml:"device_id"`
	RequestTimeout Duration `toml:"request_timeout"`
	Notify         bool     `toml:"notify"`
}

// BearerToken returns the token from TokenEnv when set, else Token.
func (r Remote) BearerToken() string {
	if r.TokenEnv != "" {
		if v := os.Getenv(r.TokenEnv); v != "" {
			return v
		}
	}
	return r.Token
}

// Connectivity tunes the reachability probe.
type Connectivity struct {
	ProbePath     string   `toml:"probe_path"`
	ProbeTimeout  Duration `toml:"probe_timeout"`
	CheckInterval Duration `toml:"check_interval"`
}

// Sync tunes the sync cycle.
type Sync struct {
	Interval       Duration `toml:"interval"`
	PushBatchSize  int      `toml:"push_batch_size"`
	PullPageSize   int      `toml:"pull_page_size"`
	MaxPullPages   int      `toml:"max_pull_pages"`
	MaxAttempts    int      `toml:"max_attempts"`
	BackoffBase    Duration `toml:"backoff_base"`
	BackoffMax     Duration `toml:"backoff_max"`
	RequestRetries int      `toml:"request_retries"`
	RetryBase      Duration `toml:"retry_base"`
}

// Log tunes the daemon log file.
type Log struct {
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Default returns the configuration used for anything config.toml leaves out.
func Default() *Config {
	return &Config{
		Remote: Remote{
			RequestTimeout: Duration{10 * time.Second},
			Notify:         true,
		},
		Connectivity: Connectivity{
			ProbePath:     "/health",
			ProbeTimeout:  Duration{3 * time.Second},
			CheckInterval: Duration{30 * time.Second},
		},
		Sync: Sync{
			Interval:       Duration{time.Minute},
			PushBatchSize:  50,
			PullPageSize:   200,
			MaxPullPages:   20,
			MaxAttempts:    10,
			BackoffBase:    Duration{2 * time.Second},
			BackoffMax:     Duration{5 * time.Minute},
			RequestRetries: 2,
			RetryBase:      Duration{500 * time.Millisecond},
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads config from path on top of Default. A missing file is not an
// error: the defaults are returned as is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate reports the first setting the engine cannot run with.
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return errors.New("validation: remote.base_url is required")
	}
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("validation: remote.base_url %q is not an http(s) URL", c.Remote.BaseURL)
	}
	switch {
	case c.Sync.PushBatchSize <= 0:
		return errors.New("validation: sync.push_batch_size must be positive")
	case c.Sync.PullPageSize <= 0:
		return errors.New("validation: sync.pull_page_size must be positive")
	case c.Sync.MaxPullPages <= 0:
		return errors.New("validation: sync.max_pull_pages must be positive")
	case c.Sync.MaxAttempts < 1:
		return errors.New("validation: sync.max_attempts must be at least 1")
	case c.Sync.RequestRetries < 0:
		return errors.New("validation: sync.request_retries must not be negative")
	case c.Sync.RetryBase.Duration <= 0:
		return errors.New("validation: sync.retry_base must be positive")
	case c.Connectivity.ProbeTimeout.Duration <= 0:
		return errors.New("validation: connectivity.probe_timeout must be positive")
	}
	return nil
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
