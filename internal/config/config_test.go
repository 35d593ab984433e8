package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Coherence.CoherenceThreshold != 0.85 {
		t.Errorf("default coherence threshold = %v, want 0.85", cfg.Coherence.CoherenceThreshold)
	}
	if cfg.Minion.MaxRetries != 1 {
		t.Errorf("default max retries = %d, want 1", cfg.Minion.MaxRetries)
	}
	if cfg.Minion.ReflectionThreshold != 0.15 {
		t.Errorf("default reflection threshold = %v, want 0.15", cfg.Minion.ReflectionThreshold)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.Name != "storyloom" {
		t.Errorf("expected default name, got %q", cfg.Name)
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("coherence:\n  coherence_threshold: 0.9\nminion:\n  workers: 2\n")
	if err := os.WriteFile(path, body, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Coherence.CoherenceThreshold != 0.9 {
		t.Errorf("threshold = %v, want file value 0.9", cfg.Coherence.CoherenceThreshold)
	}
	if cfg.Minion.Workers != 2 {
		t.Errorf("workers = %d, want file value 2", cfg.Minion.Workers)
	}
	// Unset fields keep defaults.
	if cfg.Minion.MaxRetries != 1 {
		t.Errorf("max retries = %d, want default 1", cfg.Minion.MaxRetries)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STORYLOOM_DB_PATH", "/tmp/override.db")
	t.Setenv("STORYLOOM_DEBUG", "1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.DatabasePath != "/tmp/override.db" {
		t.Errorf("db path = %q, want env override", cfg.Store.DatabasePath)
	}
	if !cfg.Logging.DebugMode {
		t.Error("STORYLOOM_DEBUG=1 should enable debug mode")
	}
	if cfg.DatabasePath() != "/tmp/override.db" {
		t.Errorf("DatabasePath() = %q, want override", cfg.DatabasePath())
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := Default()
	cfg.Coherence.CoherenceThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("threshold above 1 must fail validation")
	}

	cfg = Default()
	cfg.Minion.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero workers must fail validation")
	}
}

func TestDurationFallbacks(t *testing.T) {
	c := MinionConfig{TaskTimeout: "garbage", IdleSleep: "", AnalysisWindow: "-1s"}
	if got := c.TaskTimeoutDuration().Minutes(); got != 5 {
		t.Errorf("task timeout fallback = %v min, want 5", got)
	}
	if got := c.AnalysisWindowDuration().Hours(); got != 1 {
		t.Errorf("analysis window fallback = %v h, want 1", got)
	}
}
