package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// GlobalRateLimit caps every route at requestsPerMinute per client IP using
// httprate's sliding window. It sits in front of the finer-grained guard and
// login limiters and answers with the same 429 envelope. The key is
// RemoteAddr, which chi's RealIP rewrites only when proxies are trusted.
func GlobalRateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			ApplySecurityHeaders(w.Header())
			WriteRateLimited(w, time.Minute)
		}),
	)
}
