package requestabort

import (
	"context"
	"iter"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// recordingMediator records the context and payload of every call.
type recordingMediator struct {
	mu       sync.Mutex
	contexts []context.Context
	payloads []any

	// onCall runs inside Send and Publish before they return.
	onCall   func(ctx context.Context) error
	response any
	items    []any
	itemErr  error
}

func (m *recordingMediator) record(ctx context.Context, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts = append(m.contexts, ctx)
	m.payloads = append(m.payloads, payload)
}

func (m *recordingMediator) lastContext(t *testing.T) context.Context {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.contexts) == 0 {
		t.Fatal("wrapped mediator was not called")
	}
	return m.contexts[len(m.contexts)-1]
}

func (m *recordingMediator) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}

func (m *recordingMediator) Send(ctx context.Context, request any) (any, error) {
	m.record(ctx, request)
	if m.onCall != nil {
		if err := m.onCall(ctx); err != nil {
			return nil, err
		}
	}
	return m.response, nil
}

func (m *recordingMediator) Publish(ctx context.Context, notification any) error {
	m.record(ctx, notification)
	if m.onCall != nil {
		return m.onCall(ctx)
	}
	return nil
}

func (m *recordingMediator) CreateStream(ctx context.Context, request any) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		m.record(ctx, request)
		for _, item := range m.items {
			if !yield(item, nil) {
				return
			}
		}
		if m.itemErr != nil {
			yield(nil, m.itemErr)
		}
	}
}

// newAbortableRequest returns a request whose request-aborted signal fires
// when abort is called.
func newAbortableRequest(t *testing.T) (*http.Request, context.CancelCauseFunc) {
	t.Helper()
	ctx, abort := context.WithCancelCause(context.Background())
	t.Cleanup(func() { abort(nil) })
	return httptest.NewRequest(http.MethodGet, "/test", nil).WithContext(ctx), abort
}

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled")
	}
}

func assertNotDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
		t.Fatalf("context cancelled unexpectedly: %v", ctx.Err())
	case <-time.After(20 * time.Millisecond):
	}
}
