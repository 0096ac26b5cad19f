package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/ragctx-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-large"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ, override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-large.
	defaultOpenAIDimensions = 3072

	defaultTimeout = 30 * time.Second
)

// Backend returns the configured embedding backend name (EMBEDDING_PROVIDER,
// default "openai").
func Backend() string {
	return getEnvOrDefault("EMBEDDING_PROVIDER", "openai")
}

// Model returns the embedding model name the factory resolves for backend:
// EMBEDDING_MODEL when set, otherwise the backend default.
func Model(backend string) string {
	def := defaultOpenAIModel
	switch backend {
	case "ollama":
		def = defaultOllamaModel
	case "langchain":
		if getEnv("LANGCHAIN_PROVIDER") == "ollama" {
			def = defaultOllamaModel
		}
	}
	return getEnvOrDefault("EMBEDDING_MODEL", def)
}

// DefaultDimensions returns the default embedding vector size for the given
// backend name. Callers that pre-create a vector collection should use this
// rather than hardcoding a value. EMBEDDING_DIMENSIONS always takes
// precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	case "langchain":
		if getEnv("LANGCHAIN_PROVIDER") == "ollama" {
			return defaultOllamaDimensions
		}
		return defaultOpenAIDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// NewFromEnv constructs a rag.Embedder from environment variables and wraps
// it with the per-call timeout and retry decorators.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER selects the backend: openai (default), azure, ollama, langchain
//  2. EMBEDDING_API_KEY overrides the per-backend key (OPENAI_API_KEY, AZURE_OPENAI_API_KEY)
//  3. EMBEDDING_ENDPOINT overrides the per-backend endpoint
//  4. EMBEDDING_MODEL overrides the default model for the backend
//  5. EMBEDDING_DIMENSIONS overrides the requested vector size
//  6. EMBEDDING_TIMEOUT (seconds) and EMBEDDING_MAX_RETRIES bound each call
func NewFromEnv(log *slog.Logger) (rag.Embedder, error) {
	base, err := newBackend(Backend())
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(getEnvInt("EMBEDDING_TIMEOUT", int(defaultTimeout/time.Second))) * time.Second
	retry := DefaultRetryConfig
	if n := getEnvInt("EMBEDDING_MAX_RETRIES", -1); n >= 0 {
		retry.MaxRetries = uint64(n)
	}
	retry.Logger = log

	return WithRetry(WithTimeout(base, timeout), retry), nil
}

// newBackend builds the undecorated embedder for backend.
func newBackend(backend string) (rag.Embedder, error) {
	switch backend {
	case "ollama":
		host := getEnv("EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
		}), nil

	case "openai":
		apiKey := firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY: %w", rag.ErrInvalidInput)
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		}), nil

	case "azure":
		apiKey := firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY: %w", rag.ErrInvalidInput)
		}
		endpoint := firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT: %w", rag.ErrInvalidInput)
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	case "langchain":
		provider := getEnvOrDefault("LANGCHAIN_PROVIDER", "openai")
		model := defaultOpenAIModel
		if provider == "ollama" {
			model = defaultOllamaModel
		}
		e, err := NewLangchainEmbedder(&LangchainConfig{
			Provider:  provider,
			BaseURL:   getEnv("EMBEDDING_ENDPOINT"),
			APIKey:    firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY"),
			Model:     getEnvOrDefault("EMBEDDING_MODEL", model),
			BatchSize: getEnvInt("EMBEDDING_BATCH_SIZE", 0),
		})
		if err != nil {
			return nil, fmt.Errorf("embedder: %w", err)
		}
		return e, nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q, valid values: openai, azure, ollama, langchain: %w", backend, rag.ErrInvalidInput)
	}
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
