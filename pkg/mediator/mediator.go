package mediator

import (
	"context"
	"iter"
)

// Sender dispatches a request to its single handler and returns the response.
type Sender interface {
	Send(ctx context.Context, request any) (any, error)
}

// Publisher broadcasts a notification to every handler registered for its type.
type Publisher interface {
	Publish(ctx context.Context, notification any) error
}

// StreamCreator opens a lazy response stream for a stream request.
//
// The returned sequence is not restartable. Items are produced on demand as the
// caller ranges over it; an error is delivered as the second value of an item.
type StreamCreator interface {
	CreateStream(ctx context.Context, request any) iter.Seq2[any, error]
}

// Mediator is the full dispatch contract.
type Mediator interface {
	Sender
	Publisher
	StreamCreator
}

// Request is implemented by request types answered with a TResponse.
// Embed Returns[TResponse] in the request struct to satisfy it.
type Request[TResponse any] interface {
	returns(TResponse)
}

// Returns marks a request type as answered with a TResponse.
type Returns[TResponse any] struct{}

func (Returns[TResponse]) returns(TResponse) {}

// StreamRequest is implemented by stream request types yielding TResponse items.
// Embed Yields[TResponse] in the request struct to satisfy it.
type StreamRequest[TResponse any] interface {
	yields(TResponse)
}

// Yields marks a stream request type as yielding TResponse items.
type Yields[TResponse any] struct{}

func (Yields[TResponse]) yields(TResponse) {}

// RequestHandler handles requests of type TRequest.
type RequestHandler[TRequest, TResponse any] interface {
	Handle(ctx context.Context, request TRequest) (TResponse, error)
}

// RequestHandlerFunc adapts a function to a RequestHandler.
type RequestHandlerFunc[TRequest, TResponse any] func(ctx context.Context, request TRequest) (TResponse, error)

// Handle calls f(ctx, request).
func (f RequestHandlerFunc[TRequest, TResponse]) Handle(ctx context.Context, request TRequest) (TResponse, error) {
	return f(ctx, request)
}

// NotificationHandler handles notifications of type TNotification.
type NotificationHandler[TNotification any] interface {
	Handle(ctx context.Context, notification TNotification) error
}

// NotificationHandlerFunc adapts a function to a NotificationHandler.
type NotificationHandlerFunc[TNotification any] func(ctx context.Context, notification TNotification) error

// Handle calls f(ctx, notification).
func (f NotificationHandlerFunc[TNotification]) Handle(ctx context.Context, notification TNotification) error {
	return f(ctx, notification)
}

// StreamHandler handles stream requests of type TRequest.
type StreamHandler[TRequest, TResponse any] interface {
	Handle(ctx context.Context, request TRequest) iter.Seq2[TResponse, error]
}

// StreamHandlerFunc adapts a function to a StreamHandler.
type StreamHandlerFunc[TRequest, TResponse any] func(ctx context.Context, request TRequest) iter.Seq2[TResponse, error]

// Handle calls f(ctx, request).
func (f StreamHandlerFunc[TRequest, TResponse]) Handle(ctx context.Context, request TRequest) iter.Seq2[TResponse, error] {
	return f(ctx, request)
}
