package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/ragctx-go/internal/rag"
)

// Backend names accepted by New.
const (
	BackendQdrant   = "qdrant"
	BackendEmbedded = "embedded"
	BackendSQLite   = "sqlite"
	BackendPGVector = "pgvector"
	BackendWeaviate = "weaviate"
	BackendREST     = "rest"
)

const defaultStoreTimeout = 10 * time.Second

// Config selects and configures one backend.
type Config struct {
	// Backend is one of the Backend* constants.
	Backend string
	// Timeout bounds each Upsert and Query call.
	Timeout time.Duration

	Qdrant     QdrantConfig
	Embedded   EmbeddedConfig
	SQLitePath string
	PGVector   PGVectorConfig
	Weaviate   WeaviateConfig
	REST       RESTConfig

	// Paging applies to the cursor-paginated backends (sqlite, pgvector,
	// weaviate). Source is ignored.
	Paging Paginated
}

// ConfigFromEnv reads the backend configuration from environment variables.
// dims is the embedding dimensionality used when a backend creates its
// collection or table.
func ConfigFromEnv(dims int) Config {
	return Config{
		Backend: getEnvOrDefault("VECTOR_BACKEND", BackendQdrant),
		Timeout: time.Duration(getEnvInt("VECTOR_TIMEOUT", int(defaultStoreTimeout/time.Second))) * time.Second,
		Qdrant: QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "ragctx"),
			VectorSize: uint64(dims),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		},
		Embedded: EmbeddedConfig{
			Path:       os.Getenv("EMBEDDED_PATH"),
			Compress:   os.Getenv("EMBEDDED_COMPRESS") == "true",
			Collection: getEnvOrDefault("VECTOR_INDEX", "ragctx"),
		},
		SQLitePath: os.Getenv("SQLITE_PATH"),
		PGVector: PGVectorConfig{
			DSN:        os.Getenv("PGVECTOR_DSN"),
			Dimensions: dims,
			Debug:      os.Getenv("LOG_LEVEL") == "debug",
		},
		Weaviate: WeaviateConfig{
			BaseURL: getEnvOrDefault("WEAVIATE_URL", "http://localhost:8080"),
			Class:   getEnvOrDefault("WEAVIATE_CLASS", "RagChunk"),
			APIKey:  os.Getenv("WEAVIATE_API_KEY"),
		},
		REST: RESTConfig{
			BaseURL: os.Getenv("VECTOR_URL"),
			Index:   getEnvOrDefault("VECTOR_INDEX", "ragctx"),
			APIKey:  os.Getenv("VECTOR_API_KEY"),
		},
		Paging: Paginated{
			BatchSize:  getEnvInt("VECTOR_BATCH_SIZE", 0),
			Threshold:  getEnvFloat32("VECTOR_THRESHOLD", DefaultThreshold),
			MaxBatches: getEnvInt("VECTOR_MAX_BATCHES", DefaultMaxBatches),
		},
	}
}

// New builds the configured backend and wraps it with the per-call timeout.
func New(ctx context.Context, cfg Config, log *slog.Logger) (rag.VectorStore, error) {
	store, err := newBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("vectorstore: backend ready",
		slog.String("backend", cfg.Backend),
		slog.Duration("timeout", cfg.Timeout),
	)
	return WithTimeout(store, cfg.Timeout), nil
}

func newBackend(ctx context.Context, cfg Config, log *slog.Logger) (rag.VectorStore, error) {
	paged := func(src PageSource) rag.VectorStore {
		p := cfg.Paging
		p.Source = src
		p.Logger = log
		return &p
	}

	switch cfg.Backend {
	case BackendQdrant, "":
		qc := cfg.Qdrant
		s, err := NewQdrantStore(ctx, &qc)
		if err != nil {
			return nil, err
		}
		return s, nil

	case BackendEmbedded:
		ec := cfg.Embedded
		s, err := NewEmbeddedStore(&ec)
		if err != nil {
			return nil, err
		}
		return s, nil

	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			p, err := DefaultSQLitePath()
			if err != nil {
				return nil, fmt.Errorf("vectorstore: %w", err)
			}
			path = p
		}
		src, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return paged(src), nil

	case BackendPGVector:
		pc := cfg.PGVector
		src, err := OpenPGVector(ctx, &pc)
		if err != nil {
			return nil, err
		}
		return paged(src), nil

	case BackendWeaviate:
		wc := cfg.Weaviate
		src, err := NewWeaviatePages(&wc)
		if err != nil {
			return nil, err
		}
		return paged(src), nil

	case BackendREST:
		rc := cfg.REST
		s, err := NewRESTStore(&rc)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("vectorstore: unknown backend %q, valid values: qdrant, embedded, sqlite, pgvector, weaviate, rest: %w",
			cfg.Backend, rag.ErrInvalidInput)
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
