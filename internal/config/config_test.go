package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Lllllllleong/pdftools/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.CompressionSettings(); got != models.DefaultCompressionSettings() {
		t.Errorf("CompressionSettings() = %+v, want defaults", got)
	}
}

func TestLoadFile(t *testing.T) {
	content := `
log:
  level: debug
  format: text
merge:
  batch_size: ${PDFTOOLS_TEST_BATCH}
compression:
  level: low
  remove_metadata: false
  remove_annotations: true
`
	path := filepath.Join(t.TempDir(), "pdftools.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	t.Setenv("PDFTOOLS_TEST_BATCH", "5")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := Config{
		Log:         LogConfig{Level: "warn", Format: "text"},
		Merge:       MergeConfig{BatchSize: 5},
		Compression: CompressionConfig{Level: "low", RemoveAnnotations: true},
		Codec:       CodecConfig{RelaxedValidation: true},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	s := cfg.CompressionSettings()
	if s.Level != models.Low || s.RemoveMetadata || !s.RemoveAnnotations {
		t.Errorf("CompressionSettings() = %+v", s)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"batch size not a number", map[string]string{EnvMergeBatchSize: "many"}},
		{"batch size too small", map[string]string{EnvMergeBatchSize: "1"}},
		{"unknown level", map[string]string{EnvCompressionLevel: "extreme"}},
		{"unknown log format", map[string]string{EnvLogFormat: "xml"}},
		{"relaxed not a bool", map[string]string{EnvRelaxedValidation: "sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("PDFTOOLS_TEST_SET", "value")
	if got := GetEnv("PDFTOOLS_TEST_SET", "fallback"); got != "value" {
		t.Errorf("GetEnv() = %q, want value", got)
	}
	if got := GetEnv("PDFTOOLS_TEST_UNSET_VARIABLE", "fallback"); got != "fallback" {
		t.Errorf("GetEnv() = %q, want fallback", got)
	}
}
