package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sentinelworks/gatekeeper/pkg/idx"
)

// HTTPMiddleware logs requests and attaches a contextual logger into request
// context. Each request gets a correlation id, taken from the
// X-Correlation-ID header when the caller supplies one, and echoed back on
// the response so clients can quote it.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			correlationID := r.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = idx.New().String()
			}
			w.Header().Set("X-Correlation-ID", correlationID)

			logger := base.With(
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			ctx := WithContext(r.Context(), logger)
			ctx = WithCorrelationID(ctx, correlationID)
			r = r.WithContext(ctx)

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Milliseconds()
			FromContext(ctx).Info("http_request",
				"status", rw.status,
				"duration_ms", duration,
				"user_agent", r.UserAgent(),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter

	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
