// metrics.go registers the Prometheus metrics for the HTTP server and
// exposes helpers used by handlers and middleware.

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"

	outcomeOK       = "ok"
	outcomeDegraded = "degraded"
	outcomeInvalid  = "invalid"
	outcomeTimeout  = "timeout"
	outcomeError    = "error"

	// Rejection reasons for ragctx_http_rejected_total.
	reasonUnauthorized = "unauthorized"
	reasonRateLimited  = "rate_limited"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// contextRequestsTotal counts completed /api/context requests,
	// partitioned by outcome.
	contextRequestsTotal *prometheus.CounterVec

	// contextDurationSeconds records the wall-clock duration of each
	// /api/context assembly.
	contextDurationSeconds *prometheus.HistogramVec

	// contextLength records the measured length of each assembled context.
	contextLength prometheus.Histogram

	// contextTooLongTotal counts contexts that exceeded their budget.
	contextTooLongTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec

	// rejectedTotal counts /api/context requests turned away before
	// assembly, partitioned by reason (unauthorized, rate_limited).
	rejectedTotal *prometheus.CounterVec

	// dependencyUp is 1 when the last readiness check of a dependency
	// succeeded and 0 otherwise.
	dependencyUp *prometheus.GaugeVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) registers into the provided
// registry rather than the global default, so unit tests stay hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		contextRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragctx",
			Subsystem: "context",
			Name:      "requests_total",
			Help:      "Total number of /api/context requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		contextDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragctx",
			Subsystem: "context",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/context assemblies.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),

		contextLength: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragctx",
			Subsystem: "context",
			Name:      "length",
			Help:      "Measured length of assembled contexts.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 10),
		}),

		contextTooLongTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragctx",
			Subsystem: "context",
			Name:      "too_long_total",
			Help:      "Number of assembled contexts that exceeded the requested budget.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragctx",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragctx",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),

		rejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragctx",
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected before context assembly, partitioned by reason.",
		}, []string{"reason"}),

		dependencyUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ragctx",
			Name:      "dependency_up",
			Help:      "Result of the last readiness check per dependency (1 up, 0 down).",
		}, []string{"dependency"}),
	}
}

// instrument records request count and latency for the named handler.
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}
		start := time.Now()
		next.ServeHTTP(rw, r)
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	})
}
