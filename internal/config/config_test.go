package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	if cfg.Container != "sshmux" {
		t.Errorf("container = %q", cfg.Container)
	}
	if cfg.CaptureLines != 40 {
		t.Errorf("capture_lines = %d", cfg.CaptureLines)
	}
	if cfg.Settle.Interval() != 200*time.Millisecond || cfg.Settle.Attempts != 10 {
		t.Errorf("settle = %+v", cfg.Settle)
	}
	if cfg.Transfer.Interval() != 500*time.Millisecond || cfg.Transfer.Attempts != 20 {
		t.Errorf("transfer = %+v", cfg.Transfer)
	}
	if !cfg.KillPlaceholderOn() {
		t.Error("kill_placeholder should default on")
	}
	if !cfg.HistoryOn() {
		t.Error("history should default on")
	}
}

func TestUnmarshalOverrides(t *testing.T) {
	raw := `
container: agent-shells
capture_lines: 80
kill_placeholder: false
history: false
settle:
  interval_ms: 50
  attempts: 3
ssh_options:
  - ServerAliveInterval=30
block_patterns:
  - '\bshutdown\b'
`
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(raw), cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	applyDefaults(cfg)

	if cfg.Container != "agent-shells" || cfg.CaptureLines != 80 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.KillPlaceholderOn() {
		t.Error("kill_placeholder should be off")
	}
	if cfg.HistoryOn() {
		t.Error("history should be off")
	}
	if cfg.Settle.Interval() != 50*time.Millisecond || cfg.Settle.Attempts != 3 {
		t.Errorf("settle = %+v", cfg.Settle)
	}
	// untouched section still gets defaults
	if cfg.Transfer.Attempts != 20 {
		t.Errorf("transfer attempts = %d", cfg.Transfer.Attempts)
	}
	if len(cfg.SSHOptions) != 1 || len(cfg.BlockPatterns) != 1 {
		t.Errorf("lists not parsed: %+v", cfg)
	}
}
