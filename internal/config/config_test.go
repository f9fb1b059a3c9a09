package config_test

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/machug/woofalytics-v2-sub000/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	wantLogDir := filepath.Join(tempHome, ".local", "share", "woofalytics", "logs")
	if cfg.LogDir != wantLogDir {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.LogDir, wantLogDir)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Fatalf("unexpected sample rate: %d", cfg.Audio.SampleRate)
	}
	if cfg.Smoother.RequiredPositives != 2 {
		t.Fatalf("unexpected required positives: %d", cfg.Smoother.RequiredPositives)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := "unknown_top_level_key = true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unrecognized key")
	} else if !strings.Contains(err.Error(), "parse") {
		t.Fatalf("expected parse error, got: %v", err)
	}
}

func TestValidateRejectsInvalidSmootherWindow(t *testing.T) {
	cfg := config.Default()
	cfg.Smoother.RequiredPositives = cfg.Smoother.WindowSize + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for required_positives > window_size")
	}
}

func TestValidateRejectsBadFallbackMode(t *testing.T) {
	cfg := config.Default()
	cfg.Coarse.FallbackOnError = "retry"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown fallback_on_error")
	}
}

func TestValidateRejectsSingleChannelDoAWithoutDisabling(t *testing.T) {
	cfg := config.Default()
	cfg.DoA.NumElements = 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for doa.num_elements < 2 while enabled")
	}
}

func TestEnergyGateThresholdAcceptsAlwaysReject(t *testing.T) {
	cfg := config.Default()
	cfg.EnergyGate.ThresholdDB = math.Inf(1)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected +Inf threshold to validate (boundary S8), got: %v", err)
	}
}
