package instrument

import (
	"context"
	"time"

	"github.com/mcncl/mediator-abort/internal/errors"
	"github.com/mcncl/mediator-abort/internal/metrics"
	"github.com/mcncl/mediator-abort/pkg/mediator"
)

// Metrics records dispatch counts, durations, in-flight dispatches and
// stream items. metrics.InitMetrics must have been called.
func Metrics() Decorator {
	return func(next mediator.Mediator) mediator.Mediator {
		return &observed{next: next, obs: metricsObserver{}}
	}
}

type metricsObserver struct{}

func (metricsObserver) begin(ctx context.Context, operation string, msg any) (context.Context, func(error)) {
	start := time.Now()
	inFlight := metrics.DispatchesInFlight.WithLabelValues(operation)
	inFlight.Inc()

	return ctx, func(err error) {
		inFlight.Dec()
		outcome := errors.Label(errors.Classify(err))
		metrics.RecordDispatch(operation, MessageType(msg), outcome, time.Since(start))
		if err != nil {
			metrics.RecordError(outcome)
		}
	}
}

func (metricsObserver) item(_ context.Context, msg any) {
	metrics.RecordStreamItem(MessageType(msg))
}
