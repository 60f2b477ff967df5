package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type logFieldsKey struct{}

// logFields collects values learned deeper in the chain, such as the admin
// resolved by Guard, for the access log line.
type logFields struct {
	adminID int64
}

func annotateAdmin(ctx context.Context, adminID int64) {
	if f, ok := ctx.Value(logFieldsKey{}).(*logFields); ok {
		f.adminID = adminID
	}
}

// Logger logs every request with method, path, status, size, duration,
// request ID, client IP and, for guarded routes, the admin ID. Token-bearing
// headers are never logged.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			fields := &logFields{}

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), logFieldsKey{}, fields)))

			level := slog.LevelInfo
			if ww.status >= 500 {
				level = slog.LevelError
			} else if ww.status >= 400 {
				level = slog.LevelWarn
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"bytes", ww.bytes,
				"request_id", GetRequestID(r.Context()),
				"client_ip", ClientIP(r),
			}
			if fields.adminID != 0 {
				attrs = append(attrs, "admin_id", fields.adminID)
			}
			logger.Log(r.Context(), level, "request", attrs...)
		})
	}
}

// responseWriter records the status code and byte count, and whether the
// header has gone out so later writers do not try again.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
