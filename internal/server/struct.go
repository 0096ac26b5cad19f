package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragctx-go/internal/assembler"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// RequestTimeout bounds a single /api/context assembly. Defaults to 30s.
	RequestTimeout time.Duration
	// DefaultBudget is the token budget applied when a request omits one.
	// Defaults to 1000 if zero.
	DefaultBudget int
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency checks run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is exposed on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
	// Deployment names the backends behind the assembler; reported by
	// GET /api/ready.
	Deployment Deployment
}

// ContextAssembler builds a context block for a query.
// *assembler.Assembler satisfies it; tests inject a fake.
type ContextAssembler interface {
	Assemble(ctx context.Context, req assembler.Request) (*assembler.Result, error)
}

// Server is the HTTP server that exposes context assembly.
type Server struct {
	// assembler handles POST /api/context.
	assembler ContextAssembler
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency checks for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// limits holds the per-client token buckets for /api/context.
	limits *clientLimits
	// stopRL stops the bucket sweeper on shutdown.
	stopRL func()
}

// contextRequest is the JSON body for POST /api/context.
type contextRequest struct {
	// Query is the user's question.
	Query string `json:"query"`
	// Topic is an optional hint prepended to the query before embedding.
	Topic string `json:"topic,omitempty"`
	// TokenBudget overrides Config.DefaultBudget when present.
	TokenBudget *int `json:"tokenBudget,omitempty"`
}

// contextResponse is the JSON response for POST /api/context.
type contextResponse struct {
	// Text is the assembled context.
	Text string `json:"text"`
	// Length is Text measured by the configured counter.
	Length int `json:"length"`
	// TooLong is true when Length exceeds the budget.
	TooLong bool `json:"tooLong"`
	// Degraded is true when the vector store was unavailable.
	Degraded bool `json:"degraded"`
	// Matches is the number of matches returned by the store.
	Matches int `json:"matches"`
	// Used is the number of matches that contributed content.
	Used int `json:"used"`
}

// errorResponse is the JSON body for non-2xx /api/context responses.
type errorResponse struct {
	Error string `json:"error"`
}
