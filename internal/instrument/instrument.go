// Package instrument provides mediator decorators that log, measure, trace
// and rate limit dispatches. They are composed with Chain around the
// in-process dispatcher and sit inside the request-abort decorator, so every
// one of them observes the effective context of a dispatch.
package instrument

import (
	"context"
	"iter"
	"reflect"

	"github.com/mcncl/mediator-abort/internal/metrics"
	"github.com/mcncl/mediator-abort/pkg/mediator"
)

// Decorator wraps a mediator with additional behaviour.
type Decorator func(mediator.Mediator) mediator.Mediator

// Chain applies decorators to m. The first decorator is the outermost.
func Chain(m mediator.Mediator, decorators ...Decorator) mediator.Mediator {
	for i := len(decorators) - 1; i >= 0; i-- {
		if decorators[i] != nil {
			m = decorators[i](m)
		}
	}
	return m
}

// MessageType names the dynamic type of a request or notification, e.g. "server.Ping".
func MessageType(msg any) string {
	if msg == nil {
		return "<nil>"
	}
	return reflect.TypeOf(msg).String()
}

// observer is notified around every dispatch. begin is called before the
// wrapped mediator runs and returns the context to run it with; the returned
// func is called once with the final error. Streams additionally report each
// item.
type observer interface {
	begin(ctx context.Context, operation string, msg any) (context.Context, func(err error))
	item(ctx context.Context, msg any)
}

// observed adapts an observer into a mediator decorator.
type observed struct {
	next mediator.Mediator
	obs  observer
}

func (o *observed) Send(ctx context.Context, request any) (any, error) {
	ctx, end := o.obs.begin(ctx, metrics.OperationSend, request)
	resp, err := o.next.Send(ctx, request)
	end(err)
	return resp, err
}

func (o *observed) Publish(ctx context.Context, notification any) error {
	ctx, end := o.obs.begin(ctx, metrics.OperationPublish, notification)
	err := o.next.Publish(ctx, notification)
	end(err)
	return err
}

func (o *observed) CreateStream(ctx context.Context, request any) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		ctx, end := o.obs.begin(ctx, metrics.OperationStream, request)
		var streamErr error
		defer func() { end(streamErr) }()

		for item, err := range o.next.CreateStream(ctx, request) {
			if err != nil {
				streamErr = err
			} else {
				o.obs.item(ctx, request)
			}
			if !yield(item, err) {
				return
			}
		}
	}
}
