package audit

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("OPENAI_API_KEY", "sk-abc123"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := SanitiseKey("OPENAI_API_KEY", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("VECTOR_BACKEND", "qdrant"); got != "qdrant" {
		t.Errorf("expected 'qdrant', got %q", got)
	}
	if got := SanitiseKey("VECTOR_BACKEND", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestPresence(t *testing.T) {
	t.Parallel()
	if got := presence("something"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := presence(""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.ragctx/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.ragctx/config.yaml" {
			t.Errorf("expected '~/.ragctx/config.yaml', got %q", got)
		}
	}
}


func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("PGVECTOR_DSN", "postgres://user:hunter2@db:5432/rag")
	t.Setenv("VECTOR_API_KEY", "pk-live-123")
	t.Setenv("VECTOR_BACKEND", "pgvector")

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	LogCommandStart(log, "ingest", "")

	out := buf.String()
	for _, secret := range []string{"hunter2", "pk-live-123"} {
		if strings.Contains(out, secret) {
			t.Errorf("audit log leaked %q: %s", secret, out)
		}
	}
	for _, want := range []string{"command=ingest", "VECTOR_BACKEND=pgvector", "PGVECTOR_DSN=set", "config_file=none"} {
		if !strings.Contains(out, want) {
			t.Errorf("audit log missing %q: %s", want, out)
		}
	}
}
