package mediator

import (
	"context"
	"fmt"
	"iter"
)

// Send dispatches a typed request through s and asserts the response type.
func Send[TResponse any](ctx context.Context, s Sender, request Request[TResponse]) (TResponse, error) {
	var zero TResponse

	resp, err := s.Send(ctx, request)
	if err != nil {
		return zero, err
	}
	if resp == nil {
		return zero, nil
	}

	typed, ok := resp.(TResponse)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrUnexpectedResponse, resp, zero)
	}
	return typed, nil
}

// Publish broadcasts a typed notification through p.
func Publish[TNotification any](ctx context.Context, p Publisher, notification TNotification) error {
	return p.Publish(ctx, notification)
}

// CreateStream opens a typed stream through s. Items of the wrong type are
// reported as ErrUnexpectedResponse and end the stream.
func CreateStream[TResponse any](ctx context.Context, s StreamCreator, request StreamRequest[TResponse]) iter.Seq2[TResponse, error] {
	return func(yield func(TResponse, error) bool) {
		var zero TResponse

		for item, err := range s.CreateStream(ctx, request) {
			if err != nil {
				if !yield(zero, err) {
					return
				}
				continue
			}
			if item == nil {
				if !yield(zero, nil) {
					return
				}
				continue
			}

			typed, ok := item.(TResponse)
			if !ok {
				yield(zero, fmt.Errorf("%w: got %T, want %T", ErrUnexpectedResponse, item, zero))
				return
			}
			if !yield(typed, nil) {
				return
			}
		}
	}
}
