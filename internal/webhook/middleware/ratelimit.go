package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"ticketrouter/internal/ratelimit"
	dErrors "ticketrouter/pkg/domain-errors"
	"ticketrouter/pkg/platform/httputil"
	"ticketrouter/pkg/platform/middleware/metadata"
	"ticketrouter/pkg/platform/privacy"
)

// LimitMetrics is the metrics surface the rate limiter needs.
type LimitMetrics interface {
	RateLimitRejected()
}

// RateLimit applies per-source admission control. The middleware is only
// installed when the feature flag is on; a disabled limiter does no
// bookkeeping at all.
func RateLimit(limiter *ratelimit.Limiter, logger *slog.Logger, metrics LimitMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sourceKey := metadata.GetClientIP(ctx)

			result := limiter.CheckLimit(sourceKey)
			if !result.Allowed {
				logger.WarnContext(ctx, "rate limit exceeded",
					"security_event", "rate_limit_exceeded",
					"source", privacy.AnonymizeIP(sourceKey),
					"retry_after", result.RetryAfter,
				)
				metrics.RateLimitRejected()
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
