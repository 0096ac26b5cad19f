package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
embedding:
  provider: ollama
  model: nomic-embed-text
  ollama:
    host: http://ollama.internal:11434
vector:
  backend: qdrant
  threshold: 0.3
  max_batches: 20
  qdrant:
    host: qdrant.internal
    port: 6334
    collection: handbook
ingest:
  workers: 8
  fail_fast: true
assembler:
  top_k: 7
  counter: estimate
server:
  port: 9090
logging:
  level: debug
  format: text
tracing:
  endpoint: collector:4317
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	checks := map[string]string{
		"EMBEDDING_PROVIDER":          "ollama",
		"EMBEDDING_MODEL":             "nomic-embed-text",
		"OLLAMA_HOST":                 "http://ollama.internal:11434",
		"VECTOR_BACKEND":              "qdrant",
		"VECTOR_THRESHOLD":            "0.3",
		"VECTOR_MAX_BATCHES":          "20",
		"QDRANT_HOST":                 "qdrant.internal",
		"QDRANT_PORT":                 "6334",
		"QDRANT_COLLECTION":           "handbook",
		"INGEST_WORKERS":              "8",
		"INGEST_FAIL_FAST":            "true",
		"ASSEMBLER_TOP_K":             "7",
		"ASSEMBLER_COUNTER":           "estimate",
		"RAGCTX_PORT":                 "9090",
		"LOG_LEVEL":                   "debug",
		"LOG_FORMAT":                  "text",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4317",
	}

	// Clear env vars that the YAML should set.
	for k := range checks {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
vector:
  backend: embedded
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env var BEFORE loading; it should NOT be overwritten.
	t.Setenv("VECTOR_BACKEND", "sqlite")

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("VECTOR_BACKEND"); got != "sqlite" {
		t.Errorf("VECTOR_BACKEND: expected env override %q, got %q", "sqlite", got)
	}
}

func TestLoad_ConfigEnvVar(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "ragctx.yaml")
	if err := os.WriteFile(cfgPath, []byte("logging:\n  level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("RAGCTX_CONFIG", cfgPath)
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")

	loaded, err := Load("", slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}
	if got := os.Getenv("LOG_LEVEL"); got != "warn" {
		t.Errorf("LOG_LEVEL: got %q, want %q", got, "warn")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{0.25, "0.25"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float32Str(tt.in); got != tt.want {
			t.Errorf("float32Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
