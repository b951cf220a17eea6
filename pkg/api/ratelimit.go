package api

import (
	"net"
	"net/http"

	"github.com/polisai/cx-policy-validator/pkg/domain"
	"github.com/polisai/cx-policy-validator/pkg/telemetry"
)

// rateLimit rejects requests once the caller's token bucket is empty.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if s.limiter.Allow(key) {
			next.ServeHTTP(w, r)
			return
		}

		s.recordResult(telemetry.OutcomeRateLimited)
		s.logger.WarnContext(r.Context(), "rate limit exceeded", "client", key)

		// Buckets refill at least one token per second.
		w.Header().Set("Retry-After", "1")
		writeErrors(w, r, http.StatusTooManyRequests, []domain.ErrorDetail{{
			Message: "rate limit exceeded",
			Type:    domain.ErrorTypeInvalidRequest,
		}})
	})
}

// clientKey identifies the caller by remote IP, ignoring the ephemeral port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
