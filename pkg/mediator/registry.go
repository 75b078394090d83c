package mediator

import (
	"context"
	"fmt"
	"iter"
	"reflect"
	"sync"
)

type (
	requestFunc      func(ctx context.Context, request any) (any, error)
	notificationFunc func(ctx context.Context, notification any) error
	streamFunc       func(ctx context.Context, request any) iter.Seq2[any, error]
)

// Registry maps message types to their handlers. Messages are matched on their
// dynamic type, so a handler registered for T is not found for *T.
// A Registry is safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	requests      map[reflect.Type]requestFunc
	notifications map[reflect.Type][]notificationFunc
	streams       map[reflect.Type]streamFunc
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		requests:      make(map[reflect.Type]requestFunc),
		notifications: make(map[reflect.Type][]notificationFunc),
		streams:       make(map[reflect.Type]streamFunc),
	}
}

// RegisterRequestHandler registers the single handler for TRequest.
func RegisterRequestHandler[TRequest, TResponse any](r *Registry, h RequestHandler[TRequest, TResponse]) error {
	t := reflect.TypeFor[TRequest]()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.requests[t]; ok {
		return fmt.Errorf("%w: request %s", ErrDuplicateHandler, t)
	}
	r.requests[t] = func(ctx context.Context, request any) (any, error) {
		return h.Handle(ctx, request.(TRequest))
	}
	return nil
}

// RegisterRequestHandlerFunc registers fn as the handler for TRequest.
func RegisterRequestHandlerFunc[TRequest, TResponse any](r *Registry, fn func(context.Context, TRequest) (TResponse, error)) error {
	return RegisterRequestHandler[TRequest, TResponse](r, RequestHandlerFunc[TRequest, TResponse](fn))
}

// RegisterNotificationHandler adds a handler for TNotification. Handlers run in
// registration order when the publish strategy is sequential.
func RegisterNotificationHandler[TNotification any](r *Registry, h NotificationHandler[TNotification]) {
	t := reflect.TypeFor[TNotification]()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.notifications[t] = append(r.notifications[t], func(ctx context.Context, notification any) error {
		return h.Handle(ctx, notification.(TNotification))
	})
}

// RegisterNotificationHandlerFunc adds fn as a handler for TNotification.
func RegisterNotificationHandlerFunc[TNotification any](r *Registry, fn func(context.Context, TNotification) error) {
	RegisterNotificationHandler[TNotification](r, NotificationHandlerFunc[TNotification](fn))
}

// RegisterStreamHandler registers the single handler for the stream request TRequest.
func RegisterStreamHandler[TRequest, TResponse any](r *Registry, h StreamHandler[TRequest, TResponse]) error {
	t := reflect.TypeFor[TRequest]()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.streams[t]; ok {
		return fmt.Errorf("%w: stream %s", ErrDuplicateHandler, t)
	}
	r.streams[t] = func(ctx context.Context, request any) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			for item, err := range h.Handle(ctx, request.(TRequest)) {
				if !yield(item, err) {
					return
				}
			}
		}
	}
	return nil
}

// RegisterStreamHandlerFunc registers fn as the handler for the stream request TRequest.
func RegisterStreamHandlerFunc[TRequest, TResponse any](r *Registry, fn func(context.Context, TRequest) iter.Seq2[TResponse, error]) error {
	return RegisterStreamHandler[TRequest, TResponse](r, StreamHandlerFunc[TRequest, TResponse](fn))
}

func (r *Registry) requestHandler(t reflect.Type) (requestFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.requests[t]
	return h, ok
}

func (r *Registry) notificationHandlers(t reflect.Type) []notificationFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]notificationFunc(nil), r.notifications[t]...)
}

func (r *Registry) streamHandler(t reflect.Type) (streamFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.streams[t]
	return h, ok
}
