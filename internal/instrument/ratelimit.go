package instrument

import (
	"context"
	"iter"

	"github.com/mcncl/mediator-abort/internal/errors"
	"github.com/mcncl/mediator-abort/internal/metrics"
	"github.com/mcncl/mediator-abort/pkg/mediator"
	"golang.org/x/time/rate"
)

// RateLimit makes every dispatch wait for a token from limiter. Waiting
// honours the dispatch context, so a dispatch whose request is aborted
// stops waiting. A nil limiter disables limiting.
func RateLimit(limiter *rate.Limiter) Decorator {
	return func(next mediator.Mediator) mediator.Mediator {
		if limiter == nil {
			return next
		}
		return &rateLimited{next: next, limiter: limiter}
	}
}

type rateLimited struct {
	next    mediator.Mediator
	limiter *rate.Limiter
}

func (r *rateLimited) wait(ctx context.Context, operation string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		if !errors.IsCanceled(err) {
			metrics.RecordRateLimited(operation)
		}
		return errors.NewRateLimitError("dispatch rate limit", err)
	}
	return nil
}

func (r *rateLimited) Send(ctx context.Context, request any) (any, error) {
	if err := r.wait(ctx, metrics.OperationSend); err != nil {
		return nil, err
	}
	return r.next.Send(ctx, request)
}

func (r *rateLimited) Publish(ctx context.Context, notification any) error {
	if err := r.wait(ctx, metrics.OperationPublish); err != nil {
		return err
	}
	return r.next.Publish(ctx, notification)
}

func (r *rateLimited) CreateStream(ctx context.Context, request any) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		if err := r.wait(ctx, metrics.OperationStream); err != nil {
			yield(nil, err)
			return
		}
		for item, err := range r.next.CreateStream(ctx, request) {
			if !yield(item, err) {
				return
			}
		}
	}
}
