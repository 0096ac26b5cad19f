package embedder

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/54b3r/ragctx-go/internal/rag"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// embedderEnv lists every variable the factory reads so each case starts clean.
var embedderEnv = []string{
	"EMBEDDING_PROVIDER", "EMBEDDING_API_KEY", "EMBEDDING_ENDPOINT", "EMBEDDING_MODEL",
	"EMBEDDING_DIMENSIONS", "EMBEDDING_TIMEOUT", "EMBEDDING_MAX_RETRIES", "EMBEDDING_BATCH_SIZE",
	"OPENAI_API_KEY", "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "OLLAMA_HOST", "LANGCHAIN_PROVIDER",
}

func clearEmbedderEnv(t *testing.T) {
	t.Helper()
	for _, k := range embedderEnv {
		t.Setenv(k, "")
	}
}

func TestNewFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{name: "openai default without key", env: nil, wantErr: true},
		{name: "openai with key", env: map[string]string{"OPENAI_API_KEY": "k"}},
		{name: "embedding key overrides", env: map[string]string{"EMBEDDING_API_KEY": "k"}},
		{name: "ollama needs nothing", env: map[string]string{"EMBEDDING_PROVIDER": "ollama"}},
		{name: "azure without endpoint", env: map[string]string{"EMBEDDING_PROVIDER": "azure", "AZURE_OPENAI_API_KEY": "k"}, wantErr: true},
		{name: "azure complete", env: map[string]string{"EMBEDDING_PROVIDER": "azure", "AZURE_OPENAI_API_KEY": "k", "AZURE_OPENAI_ENDPOINT": "https://x.openai.azure.com"}},
		{name: "langchain ollama", env: map[string]string{"EMBEDDING_PROVIDER": "langchain", "LANGCHAIN_PROVIDER": "ollama"}},
		{name: "langchain openai without key", env: map[string]string{"EMBEDDING_PROVIDER": "langchain"}, wantErr: true},
		{name: "unknown backend", env: map[string]string{"EMBEDDING_PROVIDER": "bedrock"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEmbedderEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			e, err := NewFromEnv(discardLogger())
			if tt.wantErr {
				if !errors.Is(err, rag.ErrInvalidInput) {
					t.Errorf("want ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFromEnv: %v", err)
			}
			if e == nil {
				t.Fatal("NewFromEnv returned nil embedder")
			}
		})
	}
}

func TestDefaultDimensions(t *testing.T) {
	clearEmbedderEnv(t)

	if got := DefaultDimensions("openai"); got != 3072 {
		t.Errorf("openai: want 3072, got %d", got)
	}
	if got := DefaultDimensions("ollama"); got != 768 {
		t.Errorf("ollama: want 768, got %d", got)
	}
	t.Setenv("LANGCHAIN_PROVIDER", "ollama")
	if got := DefaultDimensions("langchain"); got != 768 {
		t.Errorf("langchain/ollama: want 768, got %d", got)
	}
	t.Setenv("EMBEDDING_DIMENSIONS", "1024")
	if got := DefaultDimensions("openai"); got != 1024 {
		t.Errorf("override: want 1024, got %d", got)
	}
}

func TestModel(t *testing.T) {
	tests := []struct {
		backend string
		env     map[string]string
		want    string
	}{
		{backend: "openai", want: "text-embedding-3-large"},
		{backend: "ollama", want: "nomic-embed-text"},
		{backend: "langchain", env: map[string]string{"LANGCHAIN_PROVIDER": "ollama"}, want: "nomic-embed-text"},
		{backend: "ollama", env: map[string]string{"EMBEDDING_MODEL": "mxbai-embed-large"}, want: "mxbai-embed-large"},
	}
	for _, tt := range tests {
		clearEmbedderEnv(t)
		for k, v := range tt.env {
			t.Setenv(k, v)
		}
		if got := Model(tt.backend); got != tt.want {
			t.Errorf("Model(%q) with %v = %q, want %q", tt.backend, tt.env, got, tt.want)
		}
	}
}

func TestValidateForRAG(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{name: "openai missing key", env: nil, wantErr: true},
		{name: "openai ok", env: map[string]string{"OPENAI_API_KEY": "k"}},
		{name: "azure missing endpoint", env: map[string]string{"EMBEDDING_PROVIDER": "azure", "EMBEDDING_API_KEY": "k"}, wantErr: true},
		{name: "ollama ok", env: map[string]string{"EMBEDDING_PROVIDER": "ollama"}},
		{name: "chat model only warns", env: map[string]string{"EMBEDDING_PROVIDER": "ollama", "EMBEDDING_MODEL": "llama3"}},
		{name: "unknown backend", env: map[string]string{"EMBEDDING_PROVIDER": "gemini"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEmbedderEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			err := ValidateForRAG(discardLogger())
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateForRAG error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  bool
	}{
		{"text-embedding-3-large", false},
		{"nomic-embed-text", false},
		{"mxbai-embed-large", false},
		{"gpt-4o", true},
		{"llama3:8b", true},
		{"Mistral-7B", true},
	}
	for _, tt := range tests {
		if got := looksLikeChatModel(tt.model); got != tt.want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}
