package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/ragctx-go/internal/logging"
	"github.com/54b3r/ragctx-go/internal/version"
)

// checkTimeout bounds each dependency check run by GET /api/ready.
const checkTimeout = 5 * time.Second

// Pinger reports whether one dependency of the context pipeline (the vector
// store or the embedding backend) is reachable. Implementations must be safe
// for concurrent use.
type Pinger interface {
	Ping(ctx context.Context) error
	// Name labels the dependency in readiness responses and the
	// ragctx_dependency_up gauge (e.g. "qdrant", "ollama").
	Name() string
}

// Deployment describes the pipeline a server assembles context from. It is
// echoed by /api/ready so operators can see which backends a replica uses.
type Deployment struct {
	EmbeddingBackend string `json:"embeddingBackend,omitempty"`
	EmbeddingModel   string `json:"embeddingModel,omitempty"`
	VectorBackend    string `json:"vectorBackend,omitempty"`
}

type readyCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	// LatencyMS is the check round trip in milliseconds.
	LatencyMS int64 `json:"latencyMs"`
}

type readyResponse struct {
	Ready      bool         `json:"ready"`
	Deployment Deployment   `json:"deployment"`
	Checks     []readyCheck `json:"checks"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// handleHealth handles GET /api/health. It never touches a dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthResponse{Status: "ok", Version: version.Version})
}

// handleReady handles GET /api/ready. Every pinger is checked concurrently
// with its own timeout; the response is 200 only when all of them answer.
// Check order follows Config.Pingers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := make([]readyCheck, len(s.pingers))
	var g errgroup.Group
	for i, p := range s.pingers {
		g.Go(func() error {
			checks[i] = s.check(r.Context(), p)
			return nil
		})
	}
	_ = g.Wait()

	resp := readyResponse{Ready: true, Deployment: s.cfg.Deployment, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
			log.Warn("readiness check failed",
				slog.String("dependency", c.Name),
				slog.String("vector_backend", s.cfg.Deployment.VectorBackend),
				slog.String("error", c.Error),
			)
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}

// check runs one pinger and records the result on ragctx_dependency_up.
func (s *Server) check(ctx context.Context, p Pinger) readyCheck {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	res := readyCheck{Name: p.Name(), OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}

	up := 1.0
	if err != nil {
		res.Error = err.Error()
		up = 0
	}
	s.metrics.dependencyUp.WithLabelValues(res.Name).Set(up)
	return res
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("server: encode response", slog.Any("error", err))
	}
}
