// Package httpcontext gives code outside an http.Handler read-only access to
// the request being served in the current scope.
//
// There is no ambient state in Go: an Accessor is an ordinary value handed to
// whoever needs it, and it is only as long-lived as the scope that owns it.
package httpcontext

import (
	"context"
	"net/http"
	"sync"
)

// Accessor looks up the request of the current scope.
// ok is false when no request is in flight, for example in a background job
// or after the request has completed.
type Accessor interface {
	Request() (r *http.Request, ok bool)
}

// RequestAborted returns the request-aborted signal of r. net/http cancels it
// when the client goes away or when ServeHTTP returns.
func RequestAborted(r *http.Request) context.Context {
	return r.Context()
}

// Holder is an Accessor bound to one scope. The owner of the scope sets the
// request on entry and clears it on exit.
type Holder struct {
	mu  sync.RWMutex
	req *http.Request
}

var _ Accessor = (*Holder)(nil)

// NewHolder creates a Holder for r. A nil r creates an empty Holder.
func NewHolder(r *http.Request) *Holder {
	return &Holder{req: r}
}

// Request implements Accessor
func (h *Holder) Request() (*http.Request, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.req, h.req != nil
}

// Set binds r to the holder.
func (h *Holder) Set(r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.req = r
}

// Clear detaches the request; subsequent lookups report no request.
func (h *Holder) Clear() {
	h.Set(nil)
}

type static struct {
	req *http.Request
}

// Static returns an Accessor that always reports r.
func Static(r *http.Request) Accessor {
	return static{req: r}
}

func (s static) Request() (*http.Request, bool) {
	return s.req, s.req != nil
}

// None is an Accessor that never has a request.
var None Accessor = static{}
