package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	dErrors "ticketrouter/pkg/domain-errors"
	"ticketrouter/pkg/platform/httputil"
	"ticketrouter/pkg/platform/privacy"
)

// Recover converts a panic anywhere downstream into a 500 response. The
// stack trace passes through the sanitizer before logging and the response
// body carries only the internal error code, so neither can leak what the
// handler was holding when it died.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					// net/http's own abort signal, not an error condition.
					panic(rec)
				}
				logger.ErrorContext(r.Context(), "panic recovered",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", privacy.SanitizeMessage(fmt.Sprint(rec)),
					"stack", privacy.SanitizeMessage(string(debug.Stack())),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "internal error"))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
