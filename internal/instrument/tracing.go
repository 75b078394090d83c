package instrument

import (
	"context"

	"github.com/mcncl/mediator-abort/internal/errors"
	"github.com/mcncl/mediator-abort/pkg/mediator"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a span per dispatch. Stream spans cover the whole iteration
// and carry the number of items yielded.
func Tracing(tracer trace.Tracer) Decorator {
	return func(next mediator.Mediator) mediator.Mediator {
		return &observed{next: next, obs: &traceObserver{tracer: tracer}}
	}
}

type traceObserver struct {
	tracer trace.Tracer
}

type itemCountKey struct{}

func (t *traceObserver) begin(ctx context.Context, operation string, msg any) (context.Context, func(error)) {
	msgType := MessageType(msg)
	ctx, span := t.tracer.Start(ctx, "mediator."+operation+" "+msgType,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("mediator.operation", operation),
			attribute.String("mediator.message_type", msgType),
		),
	)
	items := new(int)
	ctx = context.WithValue(ctx, itemCountKey{}, items)

	return ctx, func(err error) {
		defer span.End()
		if *items > 0 {
			span.SetAttributes(attribute.Int("mediator.stream.items", *items))
		}
		if err == nil {
			return
		}
		if errors.IsCanceled(err) {
			span.SetAttributes(attribute.Bool("mediator.cancelled", true))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, errors.Label(errors.Classify(err)))
	}
}

func (t *traceObserver) item(ctx context.Context, _ any) {
	if items, ok := ctx.Value(itemCountKey{}).(*int); ok {
		*items++
	}
}
