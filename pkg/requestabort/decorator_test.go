package requestabort

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mcncl/mediator-abort/pkg/httpcontext"
	"github.com/mcncl/mediator-abort/pkg/mediator"
)

type ctxKey string

var errClientGone = errors.New("client disconnected")

func TestNewDecorator_MissingCollaborators(t *testing.T) {
	tests := []struct {
		name     string
		m        mediator.Mediator
		accessor httpcontext.Accessor
		wantErr  error
	}{
		{name: "missing mediator", accessor: httpcontext.None, wantErr: ErrMissingMediator},
		{name: "missing accessor", m: &recordingMediator{}, wantErr: ErrMissingAccessor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDecorator(tt.m, tt.accessor); !errors.Is(err, tt.wantErr) {
				t.Errorf("NewDecorator() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	defer func() {
		if recover() == nil {
			t.Error("MustNewDecorator() did not panic on a missing mediator")
		}
	}()
	MustNewDecorator(nil, httpcontext.None)
}

func TestDecorator_Send_RequestPresentNoCallerSignal(t *testing.T) {
	req, _ := newAbortableRequest(t)
	aborted := httpcontext.RequestAborted(req)

	tests := []struct {
		name   string
		caller context.Context
	}{
		{name: "nil caller context", caller: nil},
		{name: "background caller context", caller: context.Background()},
		{name: "uncancellable caller context", caller: context.WithoutCancel(context.WithValue(context.Background(), ctxKey("k"), "v"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &recordingMediator{response: "pong"}
			d := MustNewDecorator(m, httpcontext.Static(req))

			resp, err := d.Send(tt.caller, "ping")
			if err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if resp != "pong" {
				t.Errorf("Send() = %v, want %v", resp, "pong")
			}

			got := m.lastContext(t)
			if got.Done() != aborted.Done() {
				t.Error("wrapped mediator did not receive the request-aborted signal")
			}
			if tt.caller == nil && got != aborted {
				t.Error("nil caller context should yield the request context itself")
			}
			if tt.caller != nil && got.Value(ctxKey("k")) != tt.caller.Value(ctxKey("k")) {
				t.Error("caller context values were not preserved")
			}
		})
	}
}

func TestDecorator_NoCallerSignalTracksRequestAborted(t *testing.T) {
	req, abort := newAbortableRequest(t)
	m := &recordingMediator{}
	d := MustNewDecorator(m, httpcontext.Static(req))

	if _, err := d.Send(context.Background(), "ping"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got := m.lastContext(t)
	if got.Err() != nil {
		t.Fatalf("effective context Err() = %v before the request aborted", got.Err())
	}

	abort(errClientGone)
	if got.Err() != context.Canceled {
		t.Errorf("effective context Err() = %v, want %v", got.Err(), context.Canceled)
	}
}

func TestDecorator_Send_NoRequest(t *testing.T) {
	caller, cancel := context.WithCancel(context.Background())
	defer cancel()

	tests := []struct {
		name     string
		accessor httpcontext.Accessor
		caller   context.Context
		want     context.Context
	}{
		{name: "caller signal is passed unmodified", accessor: httpcontext.None, caller: caller, want: caller},
		{name: "cleared holder", accessor: httpcontext.NewHolder(nil), caller: caller, want: caller},
		{name: "background is passed unmodified", accessor: httpcontext.None, caller: context.Background(), want: context.Background()},
		{name: "nil becomes background", accessor: httpcontext.None, caller: nil, want: context.Background()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &recordingMediator{}
			d := MustNewDecorator(m, tt.accessor)

			if _, err := d.Send(tt.caller, "ping"); err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if got := m.lastContext(t); got != tt.want {
				t.Errorf("wrapped mediator received %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecorator_Send_LinkedSignal(t *testing.T) {
	tests := []struct {
		name       string
		trigger    func(cancelCaller context.CancelFunc, abort context.CancelCauseFunc)
		wantCause  error
		wantCaller bool
	}{
		{
			name: "request aborted first",
			trigger: func(cancelCaller context.CancelFunc, abort context.CancelCauseFunc) {
				abort(errClientGone)
			},
			wantCause: errClientGone,
		},
		{
			name: "caller cancelled first",
			trigger: func(cancelCaller context.CancelFunc, abort context.CancelCauseFunc) {
				cancelCaller()
			},
			wantCause:  context.Canceled,
			wantCaller: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, abort := newAbortableRequest(t)
			caller, cancelCaller := context.WithCancel(context.WithValue(context.Background(), ctxKey("k"), "v"))
			defer cancelCaller()

			started := make(chan struct{})
			var (
				cause    error
				value    any
				liveAtGo error
			)
			m := &recordingMediator{onCall: func(ctx context.Context) error {
				liveAtGo = ctx.Err()
				value = ctx.Value(ctxKey("k"))
				close(started)
				select {
				case <-ctx.Done():
					cause = context.Cause(ctx)
					return ctx.Err()
				case <-time.After(time.Second):
					return errors.New("effective context was never cancelled")
				}
			}}
			d := MustNewDecorator(m, httpcontext.Static(req))

			errCh := make(chan error, 1)
			go func() {
				_, err := d.Send(caller, "ping")
				errCh <- err
			}()

			<-started
			tt.trigger(cancelCaller, abort)

			if err := <-errCh; !errors.Is(err, context.Canceled) {
				t.Fatalf("Send() error = %v, want %v", err, context.Canceled)
			}
			if liveAtGo != nil {
				t.Errorf("effective context was already cancelled when dispatch started: %v", liveAtGo)
			}
			if !errors.Is(cause, tt.wantCause) {
				t.Errorf("context.Cause() = %v, want %v", cause, tt.wantCause)
			}
			if value != "v" {
				t.Errorf("caller value = %v, want %v", value, "v")
			}
			if (caller.Err() != nil) != tt.wantCaller {
				t.Errorf("caller context Err() = %v, decorator must not cancel it", caller.Err())
			}
		})
	}
}

func TestDecorator_LinkedSignalIsNotTheRequestSignal(t *testing.T) {
	req, _ := newAbortableRequest(t)
	caller, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := &recordingMediator{onCall: func(ctx context.Context) error {
		assertNotDone(t, ctx)
		return nil
	}}
	d := MustNewDecorator(m, httpcontext.Static(req))

	if _, err := d.Send(caller, "ping"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := m.lastContext(t)
	if got.Done() == httpcontext.RequestAborted(req).Done() || got == caller {
		t.Error("a never-triggered caller signal must be linked, not treated as absent")
	}
}

func TestDecorator_LinkReleasedAfterCall(t *testing.T) {
	req, _ := newAbortableRequest(t)
	caller, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := &recordingMediator{}
	d := MustNewDecorator(m, httpcontext.Static(req))

	if _, err := d.Send(caller, "ping"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	waitDone(t, m.lastContext(t))
	if req.Context().Err() != nil || caller.Err() != nil {
		t.Error("releasing the link must not cancel either source")
	}
}

func TestDecorator_Publish(t *testing.T) {
	req, _ := newAbortableRequest(t)
	m := &recordingMediator{}
	d := MustNewDecorator(m, httpcontext.Static(req))

	notification := struct{ ID string }{ID: "n-1"}
	if err := d.Publish(context.Background(), notification); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if got := m.lastContext(t); got.Done() != req.Context().Done() {
		t.Error("wrapped Publish did not receive the request-aborted signal")
	}
	if m.payloads[0] != notification {
		t.Errorf("Publish() forwarded %v, want %v", m.payloads[0], notification)
	}
}

func TestDecorator_PublishLinked(t *testing.T) {
	req, abort := newAbortableRequest(t)
	caller, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := &recordingMediator{onCall: func(ctx context.Context) error {
		abort(errClientGone)
		waitDone(t, ctx)
		return context.Cause(ctx)
	}}
	d := MustNewDecorator(m, httpcontext.Static(req))

	if err := d.Publish(caller, "event"); !errors.Is(err, errClientGone) {
		t.Errorf("Publish() error = %v, want %v", err, errClientGone)
	}
}

func TestDecorator_ErrorsPropagateUnchanged(t *testing.T) {
	req, _ := newAbortableRequest(t)
	want := errors.New("handler exploded")
	caller, cancel := context.WithCancel(context.Background())
	defer cancel()

	accessors := map[string]httpcontext.Accessor{
		"with request":    httpcontext.Static(req),
		"without request": httpcontext.None,
	}

	for name, accessor := range accessors {
		t.Run(name, func(t *testing.T) {
			m := &recordingMediator{onCall: func(ctx context.Context) error { return want }}
			d := MustNewDecorator(m, accessor)

			if _, err := d.Send(caller, "ping"); err != want {
				t.Errorf("Send() error = %v, want %v", err, want)
			}
			if err := d.Publish(caller, "event"); err != want {
				t.Errorf("Publish() error = %v, want %v", err, want)
			}
		})
	}
}

func TestDecorator_IndependentCalls(t *testing.T) {
	req, _ := newAbortableRequest(t)
	m := &recordingMediator{}
	d := MustNewDecorator(m, httpcontext.Static(req))

	caller, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 2; i++ {
		if _, err := d.Send(caller, "ping"); err != nil {
			t.Fatalf("Send() #%d error = %v", i, err)
		}
	}

	if m.calls() != 2 {
		t.Fatalf("wrapped mediator calls = %d, want 2", m.calls())
	}
	if m.contexts[0] == m.contexts[1] {
		t.Error("two calls shared one effective context")
	}
}

func TestDecorator_ConcurrentCallsDoNotInterfere(t *testing.T) {
	req, _ := newAbortableRequest(t)

	const calls = 8
	var ready sync.WaitGroup
	ready.Add(calls)

	m := &recordingMediator{onCall: func(ctx context.Context) error {
		ready.Done()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
			return nil
		}
	}}
	d := MustNewDecorator(m, httpcontext.Static(req))

	cancels := make([]context.CancelFunc, calls)
	errs := make([]error, calls)
	var done sync.WaitGroup
	for i := 0; i < calls; i++ {
		caller, cancel := context.WithCancel(context.Background())
		cancels[i] = cancel
		done.Add(1)
		go func() {
			defer done.Done()
			_, errs[i] = d.Send(caller, i)
		}()
	}

	ready.Wait()
	cancels[0]()
	done.Wait()
	for _, cancel := range cancels {
		cancel()
	}

	if !errors.Is(errs[0], context.Canceled) {
		t.Errorf("cancelled call error = %v, want %v", errs[0], context.Canceled)
	}
	for i := 1; i < calls; i++ {
		if errs[i] != nil {
			t.Errorf("call %d error = %v, want nil", i, errs[i])
		}
	}
}

func TestDecorator_RequestAlreadyAborted(t *testing.T) {
	tests := []struct {
		name     string
		dispatch func(d *Decorator, caller context.Context) error
	}{
		{name: "send", dispatch: func(d *Decorator, caller context.Context) error {
			_, err := d.Send(caller, "ping")
			return err
		}},
		{name: "publish", dispatch: func(d *Decorator, caller context.Context) error {
			return d.Publish(caller, "event")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, abort := newAbortableRequest(t)
			abort(errClientGone)

			caller, cancel := context.WithCancel(context.Background())
			defer cancel()

			var live, cause error
			m := &recordingMediator{onCall: func(ctx context.Context) error {
				if ctx.Err() == nil {
					live = errors.New("effective context was live at dispatch start")
				}
				cause = context.Cause(ctx)
				return nil
			}}
			d := MustNewDecorator(m, httpcontext.Static(req))

			for i := 0; i < 100; i++ {
				if err := tt.dispatch(d, caller); err != nil {
					t.Fatalf("dispatch error = %v", err)
				}
				if live != nil {
					t.Fatalf("call %d: %v", i, live)
				}
			}
			if !errors.Is(cause, errClientGone) {
				t.Errorf("context.Cause() = %v, want %v", cause, errClientGone)
			}
			if caller.Err() != nil {
				t.Error("decorator must not cancel the caller context")
			}
		})
	}
}

func TestDecorator_CallerObservingRequestSignal(t *testing.T) {
	req, abort := newAbortableRequest(t)
	caller := context.WithValue(req.Context(), ctxKey("k"), "v")

	m := &recordingMediator{}
	d := MustNewDecorator(m, httpcontext.Static(req))

	if _, err := d.Send(caller, "ping"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got := m.lastContext(t); got != caller {
		t.Error("a caller already carrying the request signal should be passed through")
	}

	abort(errClientGone)
	if _, err := d.Send(caller, "ping"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := m.lastContext(t).Err(); err == nil {
		t.Error("aborted request not visible to the wrapped mediator")
	}
}
