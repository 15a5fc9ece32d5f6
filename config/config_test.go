package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecode_KeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
services:
  fusion:
    url: http://fusion:8501
models:
  num_classes: 2
`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Models.NumClasses != 2 {
		t.Fatalf("num_classes = %d, want 2", cfg.Models.NumClasses)
	}
	if cfg.Services.Fusion.URL != "http://fusion:8501" {
		t.Fatalf("fusion url = %q", cfg.Services.Fusion.URL)
	}
	if cfg.Scoring.SkewThreshold != 0.95 {
		t.Fatalf("skew threshold = %v, want default 0.95", cfg.Scoring.SkewThreshold)
	}
	if cfg.Speech.Offline.ChunkSamples != 4000 {
		t.Fatalf("chunk samples = %d, want 4000", cfg.Speech.Offline.ChunkSamples)
	}
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("models:\n  classes: 2\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_ExplicitPath(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte("projection:\n  mode: per_call\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Projection.Mode != "per_call" {
		t.Fatalf("mode = %q, want per_call", cfg.Projection.Mode)
	}
}

func TestLoad_MissingExplicitPath(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error without service urls")
	}
	cfg.Services.Fusion.URL = "http://f"
	cfg.Services.Encoder.URL = "http://e"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	cfg.Models.Strategies = []string{"direct", "magic"}
	cfg.Projection.Mode = "learned"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"magic", "learned"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}

func TestApply_EnvOverrides(t *testing.T) {
	t.Setenv("EDMO_FUSION_URL", "http://env-fusion")
	t.Setenv("EDMO_NUM_CLASSES", "2")

	cfg := Default()
	v := NewViper()
	v.Set("skew-threshold", 0.9)
	cfg.Apply(v)

	if cfg.Services.Fusion.URL != "http://env-fusion" {
		t.Fatalf("fusion url = %q", cfg.Services.Fusion.URL)
	}
	if cfg.Models.NumClasses != 2 {
		t.Fatalf("num classes = %d", cfg.Models.NumClasses)
	}
	if cfg.Scoring.SkewThreshold != 0.9 {
		t.Fatalf("skew threshold = %v", cfg.Scoring.SkewThreshold)
	}
	if cfg.Services.Encoder.URL != "" {
		t.Fatalf("encoder url should be untouched, got %q", cfg.Services.Encoder.URL)
	}
}

func TestLoad_DevConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("dev", "config.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Speech.Offline.Engine != "whisper-cli" || cfg.Projection.Seed != 42 {
		t.Fatalf("unexpected config %+v", cfg.Speech.Offline)
	}
	if DurMillis(cfg.Speech.CalibrationMs).Seconds() != 1 {
		t.Fatalf("calibration = %d ms", cfg.Speech.CalibrationMs)
	}
}
