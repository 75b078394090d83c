package request

import (
	"context"
	"net/http"
	"time"
)

// WithTimeout bounds each request's context by d. Handlers observe the
// deadline through r.Context(); a non-positive d leaves requests unbounded.
func WithTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
