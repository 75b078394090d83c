// Package logging provides HTTP middleware that logs the request/response
// cycle and hands handlers a request-scoped logger.
package logging

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcncl/mediator-abort/internal/logging"
	"github.com/mcncl/mediator-abort/internal/middleware/request"
)

// WithStructuredLogging adds structured logging to the request/response cycle.
// Handlers retrieve a logger tagged with the request ID via logging.FromContext.
// A request whose context was cancelled before the handler returned is
// logged as aborted along with the cancellation cause.
func WithStructuredLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			lrw := logging.NewLogResponseWriter(w)

			requestID, ok := request.IDFromContext(r.Context())
			if !ok {
				requestID = r.Header.Get(request.RequestIDHeader)
			}
			if requestID == "" {
				requestID = "unknown"
			}

			reqLogger := logger.With("request_id", requestID)
			reqLogger.Debug("Request started",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			next.ServeHTTP(lrw, r.WithContext(logging.WithLogger(r.Context(), reqLogger)))

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", lrw.StatusCode(),
				"duration_ms", time.Since(start).Milliseconds(),
				"size", lrw.Size(),
			}
			if err := r.Context().Err(); err != nil {
				reqLogger.Warn("Request aborted", append(attrs, "cause", context.Cause(r.Context()))...)
				return
			}
			reqLogger.Info("Request completed", attrs...)
		})
	}
}
