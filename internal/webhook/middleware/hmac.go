package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"

	dErrors "ticketrouter/pkg/domain-errors"
	"ticketrouter/pkg/platform/httputil"
	"ticketrouter/pkg/platform/middleware/metadata"
	"ticketrouter/pkg/platform/privacy"
)

// Signature rejection reasons, logged and fed to the alerting aggregator.
const (
	ReasonSecretNotConfigured = "secret_not_configured"
	ReasonMissingSignature    = "missing_signature"
	ReasonLengthMismatch      = "signature_length_mismatch"
	ReasonInvalidSignature    = "invalid_signature"
)

// Caps a webhook body read; tracker events are small.
const maxBodyBytes = 1 << 20

// SecurityMonitor receives every authentication failure.
type SecurityMonitor interface {
	Record401(sourceKey, reason string)
}

// AuthMetrics is the metrics surface the verifier needs.
type AuthMetrics interface {
	AuthFailure(reason string)
}

// VerifyHMAC authenticates webhook deliveries: HMAC-SHA256 over the raw
// request bytes, lowercase hex, compared in constant time against the
// X-Signature header (header name and value are case-insensitive).
//
// The middleware reads the body exactly once and hands the untouched bytes
// downstream. Verification must never run against a re-serialized payload:
// the provider signed the bytes it sent, and a round-trip through a JSON
// encoder is not byte-identical.
func VerifyHMAC(secret string, logger *slog.Logger, monitor SecurityMonitor, metrics AuthMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sourceKey := metadata.GetClientIP(ctx)

			reject := func(reason, message string) {
				logger.WarnContext(ctx, "webhook signature rejected",
					"security_event", "auth_failure",
					"reason", reason,
					"source", privacy.AnonymizeIP(sourceKey),
				)
				metrics.AuthFailure(reason)
				monitor.Record401(sourceKey, reason)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, message))
			}

			if secret == "" {
				// Deployment misconfiguration, not an attack; logged at
				// error so it stands apart from ordinary auth failures.
				logger.ErrorContext(ctx, "webhook secret not configured",
					"security_event", "auth_failure",
					"reason", ReasonSecretNotConfigured,
				)
				metrics.AuthFailure(ReasonSecretNotConfigured)
				monitor.Record401(sourceKey, ReasonSecretNotConfigured)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "webhook secret not configured"))
				return
			}

			presented := r.Header.Get("X-Signature")
			if presented == "" {
				reject(ReasonMissingSignature, "missing webhook signature")
				return
			}

			rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "read request body"))
				return
			}
			r.Body.Close()

			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write(rawBody)
			computed := hex.EncodeToString(mac.Sum(nil))
			presented = strings.ToLower(presented)

			// Length short-circuit: never compare digests of different
			// sizes byte-by-byte.
			if len(presented) != len(computed) {
				reject(ReasonLengthMismatch, "invalid webhook signature")
				return
			}
			if !hmac.Equal([]byte(presented), []byte(computed)) {
				reject(ReasonInvalidSignature, "invalid webhook signature")
				return
			}

			logger.DebugContext(ctx, "webhook signature verified",
				"security_event", "auth_success",
				"source", privacy.AnonymizeIP(sourceKey),
			)

			// Hand the verified bytes downstream unchanged.
			r.Body = io.NopCloser(bytes.NewReader(rawBody))
			next.ServeHTTP(w, r)
		})
	}
}
