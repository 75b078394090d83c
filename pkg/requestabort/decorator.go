// Package requestabort makes a mediator.Mediator cancellation-aware within
// the lifecycle of an HTTP request.
//
// The Decorator runs every dispatch under an effective context chosen from the
// caller's context and the request-aborted signal of the request in scope:
//   - no request in scope: the caller's context, untouched
//   - request in scope, caller context cannot be cancelled: the request's
//     cancellation (the caller's values are kept)
//   - request in scope, caller context can be cancelled: a context cancelled by
//     whichever of the two fires first
//
// Payloads, responses, stream items and errors cross the Decorator unchanged.
package requestabort

import (
	"context"
	"errors"
	"iter"

	"github.com/mcncl/mediator-abort/pkg/httpcontext"
	"github.com/mcncl/mediator-abort/pkg/mediator"
)

var (
	// ErrMissingMediator is returned when no mediator is given to decorate.
	ErrMissingMediator = errors.New("requestabort: mediator is nil")
	// ErrMissingAccessor is returned when no request accessor is given.
	ErrMissingAccessor = errors.New("requestabort: request accessor is nil")
)

// Decorator wraps a mediator.Mediator and links each dispatch to the
// request-aborted signal of the current request. It holds no mutable state, so
// one Decorator may serve concurrent calls.
type Decorator struct {
	mediator mediator.Mediator
	accessor httpcontext.Accessor
}

var _ mediator.Mediator = (*Decorator)(nil)

// NewDecorator creates a Decorator over m that reads the request in scope through a.
func NewDecorator(m mediator.Mediator, a httpcontext.Accessor) (*Decorator, error) {
	if m == nil {
		return nil, ErrMissingMediator
	}
	if a == nil {
		return nil, ErrMissingAccessor
	}
	return &Decorator{mediator: m, accessor: a}, nil
}

// MustNewDecorator is like NewDecorator but panics on a missing collaborator.
func MustNewDecorator(m mediator.Mediator, a httpcontext.Accessor) *Decorator {
	d, err := NewDecorator(m, a)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Decorator) effectiveContext(ctx context.Context) (context.Context, func()) {
	var aborted context.Context
	if r, ok := d.accessor.Request(); ok {
		aborted = httpcontext.RequestAborted(r)
	}
	return effectiveContext(ctx, aborted)
}

// Send implements mediator.Sender
func (d *Decorator) Send(ctx context.Context, request any) (any, error) {
	ctx, release := d.effectiveContext(ctx)
	defer release()

	return d.mediator.Send(ctx, request)
}

// Publish implements mediator.Publisher
func (d *Decorator) Publish(ctx context.Context, notification any) error {
	ctx, release := d.effectiveContext(ctx)
	defer release()

	return d.mediator.Publish(ctx, notification)
}

// CreateStream implements mediator.StreamCreator. The effective context is
// derived when iteration starts and released when it ends, whether the
// stream is exhausted or abandoned.
func (d *Decorator) CreateStream(ctx context.Context, request any) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		ctx, release := d.effectiveContext(ctx)
		defer release()

		for item, err := range d.mediator.CreateStream(ctx, request) {
			if !yield(item, err) {
				return
			}
		}
	}
}
