package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/ragctx-go/internal/logging"
)

// requestIDHeader carries the request id in both directions. An incoming
// value is reused so a caller can correlate its prompt with our logs.
const requestIDHeader = "X-Request-ID"

// maxRequestIDLen caps a caller-supplied request id.
const maxRequestIDLen = 128

// requestLogger attaches a request-scoped logger to the context and writes
// one access line per request. Handlers that assemble context report their
// outcome through annotate, so the line carries outcome and degraded next to
// status and latency. Server errors log at ERROR and rejections at WARN.
func requestLogger(base *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" || len(reqID) > maxRequestIDLen {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)

		log := base.With(slog.String("request_id", reqID))
		r = r.WithContext(logging.WithLogger(r.Context(), log))
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("duration", time.Since(start)),
		}
		if rw.outcome != "" {
			attrs = append(attrs, slog.String("outcome", rw.outcome), slog.Bool("degraded", rw.degraded))
		}

		level := slog.LevelInfo
		switch {
		case rw.status >= http.StatusInternalServerError:
			level = slog.LevelError
		case rw.status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request", attrs...)
	})
}

// responseWriter records what the access log needs: the status code and,
// for /api/context, the assembly outcome.
type responseWriter struct {
	http.ResponseWriter
	status   int
	outcome  string
	degraded bool
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// annotate records an assembly outcome on w for the access log. It is a
// no-op when w was not wrapped by requestLogger (direct handler tests).
func annotate(w http.ResponseWriter, outcome string, degraded bool) {
	if rw, ok := w.(*responseWriter); ok {
		rw.outcome = outcome
		rw.degraded = degraded
	}
}
