package requestabort

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/mcncl/mediator-abort/pkg/httpcontext"
	"github.com/mcncl/mediator-abort/pkg/mediator"
)

var (
	// ErrMissingFactory is returned when Options carry no mediator factory.
	ErrMissingFactory = errors.New("requestabort: mediator factory is nil")
	// ErrNoScope is returned when a context carries no mediator scope.
	ErrNoScope = errors.New("requestabort: no mediator scope in context")
)

// Lifetime controls how often the wrapped mediator is constructed.
type Lifetime int

const (
	// Transient constructs a wrapped mediator every time one is resolved.
	Transient Lifetime = iota
	// Scoped constructs one wrapped mediator per scope.
	Scoped
	// Singleton constructs one wrapped mediator for the Resolver's lifetime.
	Singleton
)

func (l Lifetime) String() string {
	switch l {
	case Transient:
		return "transient"
	case Scoped:
		return "scoped"
	case Singleton:
		return "singleton"
	default:
		return "unknown"
	}
}

// ParseLifetime parses "transient", "scoped" or "singleton".
func ParseLifetime(s string) (Lifetime, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "transient":
		return Transient, nil
	case "scoped":
		return Scoped, nil
	case "singleton":
		return Singleton, nil
	default:
		return Transient, fmt.Errorf("requestabort: unknown lifetime %q", s)
	}
}

// Options configure a Resolver.
type Options struct {
	// Factory constructs the mediator to decorate.
	Factory func() mediator.Mediator
	// Lifetime of the mediator built by Factory.
	Lifetime Lifetime
}

// Resolver hands out one Decorator per scope, wrapping a mediator built
// according to the configured Lifetime.
type Resolver struct {
	opts Options

	singletonOnce sync.Once
	singleton     mediator.Mediator
}

// NewResolver validates opts and creates a Resolver.
func NewResolver(opts Options) (*Resolver, error) {
	if opts.Factory == nil {
		return nil, ErrMissingFactory
	}
	if opts.Lifetime < Transient || opts.Lifetime > Singleton {
		return nil, fmt.Errorf("requestabort: invalid lifetime %d", opts.Lifetime)
	}
	return &Resolver{opts: opts}, nil
}

// NewScope opens a scope whose request is looked up through a. Use it to
// resolve a Decorator outside net/http, e.g. for a background job with
// httpcontext.None.
func (r *Resolver) NewScope(a httpcontext.Accessor) *Scope {
	return &Scope{resolver: r, accessor: a}
}

// Middleware opens one scope per request. Handlers resolve the scope's
// Decorator with FromContext. The request is detached from the scope when the
// handler returns, so work outliving the request sees no request.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		holder := httpcontext.NewHolder(nil)
		scope := r.NewScope(holder)

		req = req.WithContext(WithScope(req.Context(), scope))
		holder.Set(req)
		defer holder.Clear()

		next.ServeHTTP(w, req)
	})
}

func (r *Resolver) inner(s *Scope) mediator.Mediator {
	switch r.opts.Lifetime {
	case Singleton:
		r.singletonOnce.Do(func() {
			r.singleton = r.opts.Factory()
		})
		return r.singleton
	case Scoped:
		s.innerOnce.Do(func() {
			s.inner = r.opts.Factory()
		})
		return s.inner
	default:
		return r.opts.Factory()
	}
}

// Scope is one logical unit of work, usually one HTTP request.
type Scope struct {
	resolver *Resolver
	accessor httpcontext.Accessor

	innerOnce sync.Once
	inner     mediator.Mediator

	once      sync.Once
	decorator *Decorator
	err       error
}

// Mediator returns the scope's Decorator, constructing it on first use.
func (s *Scope) Mediator() (mediator.Mediator, error) {
	s.once.Do(func() {
		s.decorator, s.err = NewDecorator(s.resolver.inner(s), s.accessor)
	})
	if s.err != nil {
		return nil, s.err
	}
	return s.decorator, nil
}

type scopeKey struct{}

// WithScope returns a copy of ctx carrying s.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFromContext returns the scope carried by ctx, if any.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok && s != nil
}

// FromContext resolves the Decorator of the scope carried by ctx.
func FromContext(ctx context.Context) (mediator.Mediator, error) {
	s, ok := ScopeFromContext(ctx)
	if !ok {
		return nil, ErrNoScope
	}
	return s.Mediator()
}
