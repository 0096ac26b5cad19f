package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newThrottledServer(rps float64, burst int) *Server {
	s := newTestServer()
	s.limits = newClientLimits(rps, burst)
	return s
}

func throttledPost(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/context", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestThrottle_BurstThenReject(t *testing.T) {
	t.Parallel()

	s := newThrottledServer(0.001, 3)
	h := s.throttle(reached)

	for i := range 3 {
		if w := throttledPost(h, "10.0.0.1:9999"); w.Code != http.StatusOK {
			t.Fatalf("request %d inside burst: got %d", i, w.Code)
		}
	}

	w := throttledPost(h, "10.0.0.1:9999")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("request past burst: want 429, got %d", w.Code)
	}
	// One token per 1000s: the wait is far above a second.
	if ra := w.Header().Get("Retry-After"); ra == "" || ra == "0" || ra == "1" {
		t.Errorf("Retry-After should reflect the refill wait, got %q", ra)
	}
	if !strings.Contains(w.Body.String(), `"error"`) {
		t.Errorf("want JSON error body, got %q", w.Body.String())
	}
	if got := testutil.ToFloat64(s.metrics.rejectedTotal.WithLabelValues(reasonRateLimited)); got != 1 {
		t.Errorf("rejected_total{rate_limited} = %v, want 1", got)
	}
}

func TestThrottle_RejectionDoesNotSpendTokens(t *testing.T) {
	t.Parallel()

	// 20 tokens/s with burst 1: after a rejection the next token is at most
	// 50ms away, and the rejected reservation must not push it further.
	s := newThrottledServer(20, 1)
	now := time.Now()
	if ok, _ := s.limits.reserve("c", now); !ok {
		t.Fatal("first reservation rejected")
	}
	for range 5 {
		if ok, wait := s.limits.reserve("c", now); ok || wait > 50*time.Millisecond {
			t.Fatalf("want rejection with wait <= 50ms, got ok=%v wait=%v", ok, wait)
		}
	}
	if ok, _ := s.limits.reserve("c", now.Add(60*time.Millisecond)); !ok {
		t.Error("token should be available once the refill wait has passed")
	}
}

func TestThrottle_PerClientBuckets(t *testing.T) {
	t.Parallel()

	s := newThrottledServer(0.001, 1)
	h := s.throttle(reached)

	throttledPost(h, "192.168.1.1:1111")
	if w := throttledPost(h, "192.168.1.1:2222"); w.Code != http.StatusTooManyRequests {
		t.Errorf("same client on a new port should share a bucket, got %d", w.Code)
	}
	if w := throttledPost(h, "192.168.1.2:1111"); w.Code != http.StatusOK {
		t.Errorf("second client should have its own bucket, got %d", w.Code)
	}
}

func TestRoutes_ThrottleOnlyContext(t *testing.T) {
	t.Parallel()

	s, reg := newRoutedServer(t, &fakeAssembler{}, "")
	s.limits = newClientLimits(0.001, 1)
	h := s.routes()

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("health must not be throttled, got %d", w.Code)
		}
	}

	codes := make([]int, 0, 2)
	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/api/context", strings.NewReader(`{"query":"q"}`))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("context statuses: got %v, want [200 429]", codes)
	}

	n, err := testutil.GatherAndCount(reg, "ragctx_http_rejected_total")
	if err != nil || n != 1 {
		t.Errorf("ragctx_http_rejected_total series: got %d (%v)", n, err)
	}
}

func TestClientLimits_Sweep(t *testing.T) {
	t.Parallel()

	l := newClientLimits(1, 1)
	now := time.Now()
	l.reserve("old", now.Add(-10*time.Minute))
	l.reserve("fresh", now.Add(-time.Minute))

	if left := l.sweep(now, limiterIdleTTL); left != 1 {
		t.Fatalf("want 1 bucket after sweep, got %d", left)
	}
	if _, ok := l.buckets["fresh"]; !ok {
		t.Error("recently used bucket was swept")
	}
}

func TestClientAddr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		want       string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"[::1]:8080", "::1"},
		{"noport", "noport"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		if got := clientAddr(req); got != tc.want {
			t.Errorf("clientAddr(%q) = %q, want %q", tc.remoteAddr, got, tc.want)
		}
	}
}
