package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/ragctx-go/internal/logging"
)

// apiKeyHeader is accepted as an alternative to a Bearer token for clients
// that cannot set Authorization (some prompt tooling reserves it).
const apiKeyHeader = "X-API-Key"

// authenticate guards /api/context with Config.APIKey. An empty key disables
// the check; New warns about that once at startup. Rejections are answered
// with the same JSON error body as assembly failures and counted under
// reason "unauthorized". Tokens are never logged.
func (s *Server) authenticate(next http.Handler) http.Handler {
	if s.cfg.APIKey == "" {
		return next
	}
	want := []byte(s.cfg.APIKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := requestKey(r)
		if got != "" && subtle.ConstantTimeCompare([]byte(got), want) == 1 {
			next.ServeHTTP(w, r)
			return
		}

		challenge := `Bearer realm="ragctx"`
		msg := "authorization required"
		if got != "" {
			challenge += ` error="invalid_token"`
			msg = "invalid api key"
		}
		logging.FromContext(r.Context()).Warn("auth: rejected",
			slog.Bool("key_present", got != ""),
		)
		s.metrics.rejectedTotal.WithLabelValues(reasonUnauthorized).Inc()
		annotate(w, reasonUnauthorized, false)
		w.Header().Set("WWW-Authenticate", challenge)
		writeError(w, http.StatusUnauthorized, msg)
	})
}

// requestKey returns the caller's API key from "Authorization: Bearer <key>"
// or, failing that, the X-API-Key header. It returns "" when neither is set.
func requestKey(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get(apiKeyHeader))
}
