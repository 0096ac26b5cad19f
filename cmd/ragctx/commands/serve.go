package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragctx-go/internal/embedder"
	"github.com/54b3r/ragctx-go/internal/logging"
	"github.com/54b3r/ragctx-go/internal/server"
)

// NewServeCmd constructs the `ragctx serve` command, which starts the HTTP
// server exposing POST /api/context.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var tokenBudget int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragctx HTTP server",
		Long: `Start the ragctx HTTP server.

Endpoints:
  POST /api/context   {"query","topic","tokenBudget"} -> {"text","length","tooLong","degraded"}
  GET  /api/health    liveness
  GET  /api/ready     readiness (checks the vector store and, for Ollama, the embedder)
  GET  /metrics       Prometheus metrics

Set RAGCTX_API_KEY to require "Authorization: Bearer <key>" on /api/context.

Examples:
  ragctx serve
  ragctx serve --port 9090
  VECTOR_BACKEND=embedded EMBEDDED_PATH=./index ragctx serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			defer initTracing(ctx, log)()

			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("RAGCTX_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("RAGCTX_PORT", port)
			}
			if !cmd.Flags().Changed("budget") {
				tokenBudget = getEnvInt("ASSEMBLER_TOKEN_BUDGET", tokenBudget)
			}

			s, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer s.Close()

			asm, err := buildAssembler(s, 0, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			log.Info("serve starting",
				slog.String("embedder", s.embedBackend),
				slog.String("store", s.storeBackend),
			)

			srv, err := server.New(asm, &server.Config{
				Host:           host,
				Port:           port,
				DefaultBudget:  tokenBudget,
				RequestTimeout: time.Duration(getEnvInt("RAGCTX_REQUEST_TIMEOUT", 30)) * time.Second,
				Logger:         log,
				Pingers: []server.Pinger{
					server.NewStorePinger(s.store, s.storeBackend),
					server.NewEmbedderPinger(s.embedder, s.embedBackend),
				},
				RateLimit:  getEnvFloat("RAGCTX_RATE_LIMIT", 0),
				RateBurst:  getEnvInt("RAGCTX_RATE_BURST", 0),
				APIKey:     os.Getenv("RAGCTX_API_KEY"),
				Deployment: server.Deployment{
					EmbeddingBackend: s.embedBackend,
					EmbeddingModel:   embedder.Model(s.embedBackend),
					VectorBackend:    s.storeBackend,
				},
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().IntVarP(&tokenBudget, "budget", "b", 1000, "Token budget applied when a request omits one")

	return cmd
}

// getEnvFloat returns the env var parsed as float64, or fallback if unset or invalid.
func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}
