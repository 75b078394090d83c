package mediator

import (
	"context"
	"fmt"
	"iter"
	"reflect"
	"strings"

	"golang.org/x/sync/errgroup"
)

// PublishStrategy controls how notification handlers are invoked.
type PublishStrategy int

const (
	// Sequential runs handlers one after another and stops at the first error.
	Sequential PublishStrategy = iota
	// Parallel runs all handlers concurrently and returns the first error
	// once every handler has finished.
	Parallel
)

func (s PublishStrategy) String() string {
	switch s {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// ParsePublishStrategy parses "sequential" or "parallel".
func ParsePublishStrategy(s string) (PublishStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequential":
		return Sequential, nil
	case "parallel":
		return Parallel, nil
	default:
		return Sequential, fmt.Errorf("mediator: unknown publish strategy %q", s)
	}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPublishStrategy sets how notification handlers are run.
func WithPublishStrategy(s PublishStrategy) Option {
	return func(d *Dispatcher) {
		d.strategy = s
	}
}

// Dispatcher is the in-process Mediator backed by a Registry.
// It hands the caller's context to handlers untouched.
type Dispatcher struct {
	registry *Registry
	strategy PublishStrategy
}

var _ Mediator = (*Dispatcher)(nil)

// New creates a Dispatcher over reg
func New(reg *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		strategy: Sequential,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send dispatches request to the handler registered for its dynamic type.
func (d *Dispatcher) Send(ctx context.Context, request any) (any, error) {
	if request == nil {
		return nil, ErrNilRequest
	}

	t := reflect.TypeOf(request)
	h, ok := d.registry.requestHandler(t)
	if !ok {
		return nil, fmt.Errorf("%w: request %s", ErrHandlerNotFound, t)
	}
	return h(ctx, request)
}

// Publish invokes every handler registered for the notification's dynamic type.
// A notification without handlers is not an error.
func (d *Dispatcher) Publish(ctx context.Context, notification any) error {
	if notification == nil {
		return ErrNilNotification
	}

	handlers := d.registry.notificationHandlers(reflect.TypeOf(notification))
	if len(handlers) == 0 {
		return nil
	}

	if d.strategy == Parallel {
		var g errgroup.Group
		for _, h := range handlers {
			g.Go(func() error {
				return h(ctx, notification)
			})
		}
		return g.Wait()
	}

	for _, h := range handlers {
		if err := h(ctx, notification); err != nil {
			return err
		}
	}
	return nil
}

// CreateStream returns the lazy stream of the handler registered for the
// request's dynamic type. Lookup failures are yielded as the only item.
func (d *Dispatcher) CreateStream(ctx context.Context, request any) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		if request == nil {
			yield(nil, ErrNilRequest)
			return
		}

		t := reflect.TypeOf(request)
		h, ok := d.registry.streamHandler(t)
		if !ok {
			yield(nil, fmt.Errorf("%w: stream %s", ErrHandlerNotFound, t))
			return
		}

		for item, err := range h(ctx, request) {
			if !yield(item, err) {
				return
			}
		}
	}
}
