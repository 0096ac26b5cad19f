package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/ragctx-go/internal/assembler"
	"github.com/54b3r/ragctx-go/internal/budget"
	"github.com/54b3r/ragctx-go/internal/embedder"
	"github.com/54b3r/ragctx-go/internal/rag"
	"github.com/54b3r/ragctx-go/internal/tracing"
	"github.com/54b3r/ragctx-go/internal/vectorstore"
	"github.com/54b3r/ragctx-go/internal/version"
)

// stack is the embedder and vector store shared by every command.
type stack struct {
	embedder rag.Embedder
	store    rag.VectorStore
	// embedBackend and storeBackend name the resolved backends for logs
	// and readiness checks.
	embedBackend string
	storeBackend string
}

// Close releases the vector store.
func (s *stack) Close() error { return s.store.Close() }

// buildStack validates the embedding configuration and constructs the
// embedder and the configured vector store. The store collection is sized
// for the embedder's dimensionality.
func buildStack(ctx context.Context, log *slog.Logger) (*stack, error) {
	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, err
	}

	emb, err := embedder.NewFromEnv(log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	embBackend := embedder.Backend()
	log.Info("embedder initialised", slog.String("provider", embBackend))

	cfg := vectorstore.ConfigFromEnv(embedder.DefaultDimensions(embBackend))
	store, err := vectorstore.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise %s vector store: %w", cfg.Backend, err)
	}

	return &stack{embedder: emb, store: store, embedBackend: embBackend, storeBackend: cfg.Backend}, nil
}

// buildAssembler constructs an Assembler from ASSEMBLER_* env vars.
// topK overrides ASSEMBLER_TOP_K when positive.
func buildAssembler(s *stack, topK int, log *slog.Logger) (*assembler.Assembler, error) {
	counter, err := budget.CounterFor(os.Getenv("ASSEMBLER_COUNTER"))
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = getEnvInt("ASSEMBLER_TOP_K", assembler.DefaultTopK)
	}
	return assembler.New(s.embedder, s.store, &assembler.Config{
		TopK:             topK,
		MaxPerMatch:      getEnvInt("ASSEMBLER_MAX_PER_MATCH", 0),
		Counter:          counter,
		FailOnStoreError: getEnvBool("ASSEMBLER_FAIL_ON_STORE_ERROR"),
		Logger:           log,
	})
}

// initTracing starts OpenTelemetry export when OTEL_EXPORTER_OTLP_ENDPOINT
// is set. The returned function flushes and stops the exporter.
func initTracing(ctx context.Context, log *slog.Logger) func() {
	tp, err := tracing.Init(ctx, tracing.ConfigFromEnv(version.Version))
	if err != nil {
		log.Warn("tracing disabled", slog.String("error", err.Error()))
		return func() {}
	}
	if !tp.Enabled() {
		log.Debug("tracing disabled", slog.String("reason", "OTEL_EXPORTER_OTLP_ENDPOINT not set"))
		return func() {}
	}
	log.Info("opentelemetry tracing enabled")
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}
}

// getEnvOrDefault returns the env var value or fallback if unset/empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or fallback if unset or invalid.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvBool reports whether the env var is set to a true value.
func getEnvBool(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && b
}
