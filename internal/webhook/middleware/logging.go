package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ticketrouter/pkg/platform/middleware/metadata"
	"ticketrouter/pkg/platform/privacy"
)

type contextKeyRequestID struct{}

// GetRequestID retrieves the request id set by RequestLogger.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID{}).(string); ok {
		return id
	}
	return ""
}

// statusRecorder captures the response status for the completion log line.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestMetrics is the metrics surface the request logger needs.
type RequestMetrics interface {
	ObserveRequest(status int)
}

// RequestLogger logs every request and response as structured records with
// a generated request id. Headers pass through the sanitizer so signature
// and token values never reach a log sink.
func RequestLogger(logger *slog.Logger, metrics RequestMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()
			ctx := context.WithValue(r.Context(), contextKeyRequestID{}, requestID)
			start := time.Now()

			logger.InfoContext(ctx, "request received",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"source", privacy.AnonymizeIP(metadata.GetClientIP(ctx)),
				"headers", privacy.SanitizeHeaders(r.Header),
			)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			metrics.ObserveRequest(rec.status)
			logger.InfoContext(ctx, "request completed",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
