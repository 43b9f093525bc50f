package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.CorrelationTolerance != 15*time.Second {
		t.Fatalf("default tolerance = %v", cfg.Pipeline.CorrelationTolerance)
	}
	if cfg.Pipeline.Contamination != 0.08 {
		t.Fatalf("default contamination = %v", cfg.Pipeline.Contamination)
	}
	if cfg.Pipeline.Seed != 42 {
		t.Fatalf("default seed = %v", cfg.Pipeline.Seed)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rca.yaml")
	content := "pipeline:\n  contamination: 0.12\n  correlationTolerance: 30s\nthresholds:\n  cpuHigh: 0.7\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.Contamination != 0.12 {
		t.Fatalf("contamination = %v", cfg.Pipeline.Contamination)
	}
	if cfg.Pipeline.CorrelationTolerance != 30*time.Second {
		t.Fatalf("tolerance = %v", cfg.Pipeline.CorrelationTolerance)
	}
	if cfg.Thresholds.CPUHigh != 0.7 {
		t.Fatalf("cpuHigh = %v", cfg.Thresholds.CPUHigh)
	}
	// Untouched fields keep their defaults.
	if cfg.Thresholds.HeapHighRatio != 0.9 {
		t.Fatalf("heapHighRatio = %v", cfg.Thresholds.HeapHighRatio)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("explicitly named missing config must be an error")
	}
}

func TestValidateRejectsBadContamination(t *testing.T) {
	cfg := defaultConfig()
	cfg.Pipeline.Contamination = 0.6
	if err := cfg.Validate(); err == nil {
		t.Fatal("contamination 0.6 must be rejected")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RCA_PIPELINE_CONTAMINATION", "0.2")
	t.Setenv("RCA_PIPELINE_TOLERANCE", "45s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.Contamination != 0.2 {
		t.Fatalf("env contamination = %v", cfg.Pipeline.Contamination)
	}
	if cfg.Pipeline.CorrelationTolerance != 45*time.Second {
		t.Fatalf("env tolerance = %v", cfg.Pipeline.CorrelationTolerance)
	}
}
