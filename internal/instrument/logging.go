package instrument

import (
	"context"
	"log/slog"
	"time"

	"github.com/mcncl/mediator-abort/internal/errors"
	"github.com/mcncl/mediator-abort/internal/logging"
	"github.com/mcncl/mediator-abort/internal/middleware/request"
	"github.com/mcncl/mediator-abort/pkg/mediator"
)

// Logging logs every dispatch once it has finished. The request-scoped logger
// in the dispatch context is preferred over logger.
func Logging(logger *slog.Logger) Decorator {
	return func(next mediator.Mediator) mediator.Mediator {
		return &observed{next: next, obs: &logObserver{logger: logger}}
	}
}

type logObserver struct {
	logger *slog.Logger
}

func (l *logObserver) begin(ctx context.Context, operation string, msg any) (context.Context, func(error)) {
	logger := l.logger
	if ctxLogger := logging.FromContext(ctx); ctxLogger != slog.Default() || logger == nil {
		logger = ctxLogger
	}
	start := time.Now()

	return ctx, func(err error) {
		attrs := []any{
			"operation", operation,
			"message_type", MessageType(msg),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if id, ok := request.IDFromContext(ctx); ok {
			attrs = append(attrs, "request_id", id)
		}

		switch {
		case err == nil:
			logger.DebugContext(ctx, "Dispatch completed", attrs...)
		case errors.IsCanceled(err):
			logger.InfoContext(ctx, "Dispatch cancelled", append(attrs, "cause", context.Cause(ctx), "error", err)...)
		default:
			logger.ErrorContext(ctx, "Dispatch failed", append(attrs, "error_type", errors.Label(errors.Classify(err)), "error", err)...)
		}
	}
}

func (l *logObserver) item(context.Context, any) {}
