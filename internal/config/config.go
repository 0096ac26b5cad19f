// Package config provides YAML-based configuration for ragctx.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so a deployment can override any file value.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RAGCTX_CONFIG environment variable
//  3. ~/.ragctx/config.yaml
//  4. ./ragctx.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Vector selects and configures the vector store backend.
	Vector VectorConfig `yaml:"vector"`

	// Ingest configures the ingestion pipeline.
	Ingest IngestConfig `yaml:"ingest"`

	// Assembler configures context assembly.
	Assembler AssemblerConfig `yaml:"assembler"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures OpenTelemetry export.
	Tracing TracingConfig `yaml:"tracing"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (openai, azure, ollama, langchain).
	Provider string `yaml:"provider"`
	// Model is the embedding model name. It must match between ingest and query.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// TimeoutSeconds bounds each embedding call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// MaxRetries is the number of retries on transient failures.
	MaxRetries int `yaml:"max_retries"`
	// BatchSize is the langchaingo batch size.
	BatchSize int `yaml:"batch_size"`
	// LangchainProvider selects the langchaingo client (openai, ollama).
	LangchainProvider string `yaml:"langchain_provider"`
	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`
	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`
	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
}

// VectorConfig holds vector store settings.
type VectorConfig struct {
	// Backend is one of qdrant, embedded, sqlite, pgvector, weaviate, rest.
	Backend string `yaml:"backend"`
	// TimeoutSeconds bounds each store call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// Index names the index or collection for the embedded and rest backends.
	Index string `yaml:"index"`
	// Threshold is the minimum similarity for the paginated backends.
	Threshold float32 `yaml:"threshold"`
	// BatchSize is the page size for the paginated backends.
	BatchSize int `yaml:"batch_size"`
	// MaxBatches bounds the number of pages fetched per query.
	MaxBatches int `yaml:"max_batches"`

	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Embedded EmbeddedConfig `yaml:"embedded"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	PGVector PGVectorConfig `yaml:"pgvector"`
	Weaviate WeaviateConfig `yaml:"weaviate"`
	REST     RESTConfig     `yaml:"rest"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// EmbeddedConfig holds the in-process index settings.
type EmbeddedConfig struct {
	// Path persists the index to this directory. Empty keeps it in memory.
	Path string `yaml:"path"`
	// Compress gzips the persisted files.
	Compress bool `yaml:"compress"`
}

// SQLiteConfig holds the SQLite index settings.
type SQLiteConfig struct {
	// Path is the database file. Defaults to ~/.ragctx/index.db.
	Path string `yaml:"path"`
}

// PGVectorConfig holds Postgres settings.
type PGVectorConfig struct {
	// DSN is the connection string. Prefer env var PGVECTOR_DSN.
	DSN string `yaml:"dsn"`
}

// WeaviateConfig holds Weaviate settings.
type WeaviateConfig struct {
	// URL is the Weaviate base URL.
	URL string `yaml:"url"`
	// Class is the object class holding the chunks.
	Class string `yaml:"class"`
	// APIKey is sent as a bearer token. Prefer env var WEAVIATE_API_KEY.
	APIKey string `yaml:"api_key"`
}

// RESTConfig holds the REST index service settings.
type RESTConfig struct {
	// URL is the service base URL.
	URL string `yaml:"url"`
	// APIKey is sent as the Api-Key header. Prefer env var VECTOR_API_KEY.
	APIKey string `yaml:"api_key"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	// Workers bounds the number of files processed concurrently.
	Workers int `yaml:"workers"`
	// MaxSize is the maximum chunk length in runes.
	MaxSize int `yaml:"max_size"`
	// MinOverlap is the overlap carried between chunks, in runes.
	MinOverlap int `yaml:"min_overlap"`
	// FailFast stops the run at the first file error.
	FailFast bool `yaml:"fail_fast"`
	// Manifest is the manifest database used by incremental runs.
	Manifest string `yaml:"manifest"`
}

// AssemblerConfig holds context assembly settings.
type AssemblerConfig struct {
	// TopK is the number of matches requested from the store.
	TopK int `yaml:"top_k"`
	// MaxPerMatch truncates each match content to this length.
	MaxPerMatch int `yaml:"max_per_match"`
	// Counter selects how length is measured: chars, estimate, tiktoken.
	Counter string `yaml:"counter"`
	// TokenBudget is the default budget when a request does not set one.
	TokenBudget int `yaml:"token_budget"`
	// FailOnStoreError returns store failures instead of degrading.
	FailOnStoreError bool `yaml:"fail_on_store_error"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var RAGCTX_API_KEY.
	APIKey string `yaml:"api_key"`
	// RateLimit is the sustained requests per second allowed per client IP.
	RateLimit float32 `yaml:"rate_limit"`
	// RateBurst is the per-IP burst size.
	RateBurst int `yaml:"rate_burst"`
	// RequestTimeoutSeconds bounds a single context assembly.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	// Endpoint is the OTLP gRPC collector address. Empty disables tracing.
	Endpoint string `yaml:"endpoint"`
	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`
	// ServiceName overrides the reported service name.
	ServiceName string `yaml:"service_name"`
	// SampleRate is the ratio of traces kept.
	SampleRate float32 `yaml:"sample_rate"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_TIMEOUT", func(c *Config) string { return intStr(c.Embedding.TimeoutSeconds) }},
	{"EMBEDDING_MAX_RETRIES", func(c *Config) string { return intStr(c.Embedding.MaxRetries) }},
	{"EMBEDDING_BATCH_SIZE", func(c *Config) string { return intStr(c.Embedding.BatchSize) }},
	{"LANGCHAIN_PROVIDER", func(c *Config) string { return c.Embedding.LangchainProvider }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Embedding.OpenAI.APIKey }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Embedding.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Embedding.Azure.Endpoint }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Embedding.Azure.APIVersion }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Embedding.Ollama.Host }},
	{"VECTOR_BACKEND", func(c *Config) string { return c.Vector.Backend }},
	{"VECTOR_TIMEOUT", func(c *Config) string { return intStr(c.Vector.TimeoutSeconds) }},
	{"VECTOR_INDEX", func(c *Config) string { return c.Vector.Index }},
	{"VECTOR_THRESHOLD", func(c *Config) string { return float32Str(c.Vector.Threshold) }},
	{"VECTOR_BATCH_SIZE", func(c *Config) string { return intStr(c.Vector.BatchSize) }},
	{"VECTOR_MAX_BATCHES", func(c *Config) string { return intStr(c.Vector.MaxBatches) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Vector.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Vector.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Vector.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Vector.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Vector.Qdrant.TLS) }},
	{"EMBEDDED_PATH", func(c *Config) string { return c.Vector.Embedded.Path }},
	{"EMBEDDED_COMPRESS", func(c *Config) string { return boolStr(c.Vector.Embedded.Compress) }},
	{"SQLITE_PATH", func(c *Config) string { return c.Vector.SQLite.Path }},
	{"PGVECTOR_DSN", func(c *Config) string { return c.Vector.PGVector.DSN }},
	{"WEAVIATE_URL", func(c *Config) string { return c.Vector.Weaviate.URL }},
	{"WEAVIATE_CLASS", func(c *Config) string { return c.Vector.Weaviate.Class }},
	{"WEAVIATE_API_KEY", func(c *Config) string { return c.Vector.Weaviate.APIKey }},
	{"VECTOR_URL", func(c *Config) string { return c.Vector.REST.URL }},
	{"VECTOR_API_KEY", func(c *Config) string { return c.Vector.REST.APIKey }},
	{"INGEST_WORKERS", func(c *Config) string { return intStr(c.Ingest.Workers) }},
	{"INGEST_MAX_SIZE", func(c *Config) string { return intStr(c.Ingest.MaxSize) }},
	{"INGEST_MIN_OVERLAP", func(c *Config) string { return intStr(c.Ingest.MinOverlap) }},
	{"INGEST_FAIL_FAST", func(c *Config) string { return boolStr(c.Ingest.FailFast) }},
	{"INGEST_MANIFEST", func(c *Config) string { return c.Ingest.Manifest }},
	{"ASSEMBLER_TOP_K", func(c *Config) string { return intStr(c.Assembler.TopK) }},
	{"ASSEMBLER_MAX_PER_MATCH", func(c *Config) string { return intStr(c.Assembler.MaxPerMatch) }},
	{"ASSEMBLER_COUNTER", func(c *Config) string { return c.Assembler.Counter }},
	{"ASSEMBLER_TOKEN_BUDGET", func(c *Config) string { return intStr(c.Assembler.TokenBudget) }},
	{"ASSEMBLER_FAIL_ON_STORE_ERROR", func(c *Config) string { return boolStr(c.Assembler.FailOnStoreError) }},
	{"RAGCTX_HOST", func(c *Config) string { return c.Server.Host }},
	{"RAGCTX_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"RAGCTX_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"RAGCTX_RATE_LIMIT", func(c *Config) string { return float32Str(c.Server.RateLimit) }},
	{"RAGCTX_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"RAGCTX_REQUEST_TIMEOUT", func(c *Config) string { return intStr(c.Server.RequestTimeoutSeconds) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", func(c *Config) string { return c.Tracing.Endpoint }},
	{"OTEL_EXPORTER_OTLP_INSECURE", func(c *Config) string { return boolStr(c.Tracing.Insecure) }},
	{"OTEL_SERVICE_NAME", func(c *Config) string { return c.Tracing.ServiceName }},
	{"OTEL_TRACES_SAMPLER_ARG", func(c *Config) string { return float32Str(c.Tracing.SampleRate) }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set, do not override
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: failed to set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("RAGCTX_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".ragctx", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("ragctx.yaml"); err == nil {
		return "ragctx.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
