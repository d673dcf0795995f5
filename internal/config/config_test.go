package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8443 {
		t.Fatalf("default port = %d, want 8443", cfg.Port)
	}
	if cfg.StepTimeout != 10*time.Second {
		t.Fatalf("default step timeout = %v, want 10s", cfg.StepTimeout)
	}
	if cfg.PingPeriod != 54*time.Second {
		t.Fatalf("default ping period = %v, want 54s", cfg.PingPeriod)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "port: 9000\nstep_timeout: 3s\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("port = %d, want 9000", cfg.Port)
	}
	if cfg.StepTimeout != 3*time.Second {
		t.Fatalf("step timeout = %v, want 3s", cfg.StepTimeout)
	}
}

func TestLoadBadValueErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: not-a-number\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for an unparseable value")
	}
}
