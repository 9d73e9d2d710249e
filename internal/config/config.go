package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// PollConfig is one bounded retry budget. Zero values take defaults.
type PollConfig struct {
	IntervalMS int `yaml:"interval_ms"`
	Attempts   int `yaml:"attempts"`
}

func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMS) * time.Millisecond
}

type Config struct {
	// Container is the tmux session all windows live in.
	Container string `yaml:"container"`
	// CaptureLines is the default snapshot depth.
	CaptureLines int `yaml:"capture_lines"`
	// KillPlaceholder removes the container's default shell window so the
	// container disappears once the last ssh window closes.
	KillPlaceholder *bool `yaml:"kill_placeholder"`
	// Settle bounds the wait after send_command before capturing.
	Settle PollConfig `yaml:"settle"`
	// Transfer bounds marker polling during file reads and writes.
	Transfer PollConfig `yaml:"transfer"`
	// History enables the sqlite audit trail.
	History *bool `yaml:"history"`
	// SSHOptions are extra -o options passed to every ssh invocation.
	SSHOptions []string `yaml:"ssh_options"`
	// BlockPatterns and WarnPatterns extend the command policy.
	BlockPatterns []string `yaml:"block_patterns"`
	WarnPatterns  []string `yaml:"warn_patterns"`
}

// KillPlaceholderOn reports the placeholder policy with its default (on).
func (c *Config) KillPlaceholderOn() bool {
	return c.KillPlaceholder == nil || *c.KillPlaceholder
}

// HistoryOn reports whether the audit trail is enabled (default on).
func (c *Config) HistoryOn() bool {
	return c.History == nil || *c.History
}

// Load reads the config from ~/.config/sshmux/config.yaml.
// Returns defaults if the file doesn't exist.
func Load() (*Config, error) {
	cfg := &Config{}
	home, err := os.UserHomeDir()
	if err != nil {
		applyDefaults(cfg)
		return cfg, nil
	}

	path := filepath.Join(home, ".config", "sshmux", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Container == "" {
		cfg.Container = "sshmux"
	}
	if cfg.CaptureLines <= 0 {
		cfg.CaptureLines = 40
	}
	if cfg.Settle.IntervalMS <= 0 {
		cfg.Settle.IntervalMS = 200
	}
	if cfg.Settle.Attempts <= 0 {
		cfg.Settle.Attempts = 10
	}
	if cfg.Transfer.IntervalMS <= 0 {
		cfg.Transfer.IntervalMS = 500
	}
	if cfg.Transfer.Attempts <= 0 {
		cfg.Transfer.Attempts = 20
	}
}
