package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/ragctx-go/internal/assembler"
	"github.com/54b3r/ragctx-go/internal/logging"
	"github.com/54b3r/ragctx-go/internal/rag"
)

// maxRequestBytes bounds the POST /api/context body.
const maxRequestBytes = 64 << 10

// handleContext handles POST /api/context. It assembles context for the
// query and returns it as JSON. Error kinds map to status codes:
// invalid input 400, embedding failure 502, store failure 503, timeout 504.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req contextRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		s.metrics.contextRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		annotate(w, outcomeInvalid, false)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	budget := s.cfg.DefaultBudget
	if req.TokenBudget != nil {
		budget = *req.TokenBudget
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	res, err := s.assembler.Assemble(ctx, assembler.Request{
		Query:       req.Query,
		Topic:       req.Topic,
		TokenBudget: budget,
	})
	if err != nil {
		status, outcome := classifyError(err)
		annotate(w, outcome, false)
		s.metrics.contextRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.contextDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		if status >= http.StatusInternalServerError {
			log.Error("context: assembly failed", slog.String("outcome", outcome), slog.Any("error", err))
		}
		writeError(w, status, err.Error())
		return
	}

	outcome := outcomeOK
	if res.Degraded {
		outcome = outcomeDegraded
	}
	annotate(w, outcome, res.Degraded)
	s.metrics.contextRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.contextDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	s.metrics.contextLength.Observe(float64(res.Length))
	if res.TooLong {
		s.metrics.contextTooLongTotal.Inc()
	}

	log.Debug("context: assembled",
		slog.Int("matches", res.Matches),
		slog.Int("used", res.Used),
		slog.Int("length", res.Length),
		slog.Bool("too_long", res.TooLong),
	)

	writeJSON(w, r, http.StatusOK, contextResponse{
		Text:     res.Text,
		Length:   res.Length,
		TooLong:  res.TooLong,
		Degraded: res.Degraded,
		Matches:  res.Matches,
		Used:     res.Used,
	})
}

// classifyError maps an assembly error to an HTTP status and metric outcome.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrInvalidInput):
		return http.StatusBadRequest, outcomeInvalid
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, outcomeTimeout
	case errors.Is(err, rag.ErrEmbedding):
		return http.StatusBadGateway, outcomeError
	case errors.Is(err, rag.ErrStore):
		return http.StatusServiceUnavailable, outcomeError
	default:
		return http.StatusInternalServerError, outcomeError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
