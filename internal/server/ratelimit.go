package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/ragctx-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained /api/context rate per client (req/s).
	defaultRateLimit = 10
	// defaultRateBurst is the per-client burst on /api/context.
	defaultRateBurst = 20
	// limiterIdleTTL is how long an unused client bucket is kept.
	limiterIdleTTL = 5 * time.Minute
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimits holds one token bucket per client address. Only assembly is
// throttled: every request there costs an embedding call and a store query,
// while health, readiness and metrics are cheap and must stay reachable.
type clientLimits struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rps     rate.Limit
	burst   int
}

func newClientLimits(rps float64, burst int) *clientLimits {
	return &clientLimits{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// reserve takes a token for client at now. When none is available it
// returns false and the wait until the next token.
func (l *clientLimits) reserve(client string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	b, ok := l.buckets[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[client] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// sweep drops buckets idle for longer than idle and returns how many remain.
func (l *clientLimits) sweep(now time.Time, idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for client, b := range l.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(l.buckets, client)
		}
	}
	return len(l.buckets)
}

// sweepEvery runs sweep on a ticker until the returned stop func is called.
func (l *clientLimits) sweepEvery(interval time.Duration) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-t.C:
				l.sweep(now, limiterIdleTTL)
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// throttle answers 429 with a Retry-After (whole seconds, at least 1) when
// the caller's bucket is empty, and counts the rejection.
func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientAddr(r)
		ok, wait := s.limits.reserve(client, time.Now())
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		retry := int(math.Ceil(wait.Seconds()))
		if retry < 1 {
			retry = 1
		}
		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("client", client),
			slog.Int("retry_after_s", retry),
		)
		s.metrics.rejectedTotal.WithLabelValues(reasonRateLimited).Inc()
		annotate(w, reasonRateLimited, false)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// clientAddr is the remote IP without its port. X-Forwarded-For is ignored:
// the server binds to loopback by default and sits behind no trusted proxy.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
