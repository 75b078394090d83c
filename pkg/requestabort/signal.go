package requestabort

import (
	"context"
	"time"
)

// hasSignal reports whether ctx can ever be cancelled. A context whose Done
// returns nil (Background, TODO, WithoutCancel) carries no signal, while a
// cancellable context counts as a signal even if it has not fired yet.
func hasSignal(ctx context.Context) bool {
	return ctx != nil && ctx.Done() != nil
}

func noop() {}

// effectiveContext derives the context a dispatch runs under from the caller's
// context and the request-aborted signal (nil when there is no request).
// The returned release func must be called once the dispatch has finished.
func effectiveContext(caller, aborted context.Context) (context.Context, func()) {
	switch {
	case aborted == nil:
		if caller == nil {
			return context.Background(), noop
		}
		return caller, noop
	case !hasSignal(caller):
		if caller == nil {
			return aborted, noop
		}
		return withSignal(caller, aborted), noop
	case caller.Done() == aborted.Done():
		// The caller already observes the request signal, e.g. r.Context().
		return caller, noop
	default:
		return link(caller, aborted)
	}
}

// signalContext keeps the values of one context and takes deadline and
// cancellation from another.
type signalContext struct {
	values context.Context
	signal context.Context
}

func withSignal(values, signal context.Context) context.Context {
	return signalContext{values: values, signal: signal}
}

func (c signalContext) Deadline() (time.Time, bool) { return c.signal.Deadline() }
func (c signalContext) Done() <-chan struct{}       { return c.signal.Done() }
func (c signalContext) Err() error                  { return c.signal.Err() }
func (c signalContext) Value(key any) any           { return c.values.Value(key) }

// link returns a context cancelled as soon as either caller or aborted is.
// When the request aborts first, context.Cause reports the request's cause.
// An already aborted request cancels the result before it is returned.
func link(caller, aborted context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(caller)
	if aborted.Err() != nil {
		cancel(context.Cause(aborted))
		return ctx, func() { cancel(nil) }
	}
	stop := context.AfterFunc(aborted, func() {
		cancel(context.Cause(aborted))
	})
	return ctx, func() {
		stop()
		cancel(nil)
	}
}
