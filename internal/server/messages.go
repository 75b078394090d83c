package server

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/mcncl/mediator-abort/internal/errors"
	"github.com/mcncl/mediator-abort/internal/logging"
	"github.com/mcncl/mediator-abort/pkg/mediator"
)

// Ping asks for a Pong, optionally after a delay.
type Ping struct {
	mediator.Returns[Pong]
	Message string `json:"message"`
	DelayMS int    `json:"delay_ms,omitempty"`
}

// Pong answers a Ping.
type Pong struct {
	Message   string    `json:"message"`
	RepliedAt time.Time `json:"replied_at"`
}

// Countdown streams the numbers From..1, one every IntervalMS.
type Countdown struct {
	mediator.Yields[Tick]
	From       int
	IntervalMS int
}

// Tick is one step of a Countdown.
type Tick struct {
	Remaining int       `json:"remaining"`
	At        time.Time `json:"at"`
}

// AuditEvent records an action taken by an actor.
type AuditEvent struct {
	Action string            `json:"action"`
	Actor  string            `json:"actor"`
	Fields map[string]string `json:"fields,omitempty"`
}

// MaxDelay bounds Ping delays and Countdown intervals.
const MaxDelay = 10 * time.Second

// RegisterHandlers registers the service's request, stream and notification
// handlers on reg.
func RegisterHandlers(reg *mediator.Registry) error {
	if err := mediator.RegisterRequestHandlerFunc(reg, handlePing); err != nil {
		return err
	}
	if err := mediator.RegisterStreamHandlerFunc(reg, handleCountdown); err != nil {
		return err
	}
	mediator.RegisterNotificationHandlerFunc(reg, logAuditEvent)
	return nil
}

// aborted reports the cancellation of ctx as a canceled error wrapping its
// cause, or nil while ctx is live.
func aborted(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return errors.NewCanceledError("dispatch aborted", context.Cause(ctx))
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return aborted(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return aborted(ctx)
	case <-t.C:
		return nil
	}
}

func validDelay(ms int) (time.Duration, error) {
	d := time.Duration(ms) * time.Millisecond
	if d < 0 || d > MaxDelay {
		return 0, errors.NewValidationError("delay must be between 0 and " + MaxDelay.String())
	}
	return d, nil
}

func handlePing(ctx context.Context, p Ping) (Pong, error) {
	delay, err := validDelay(p.DelayMS)
	if err != nil {
		return Pong{}, err
	}
	if err := sleep(ctx, delay); err != nil {
		return Pong{}, err
	}

	msg := p.Message
	if msg == "" {
		msg = "pong"
	}
	return Pong{Message: msg, RepliedAt: time.Now().UTC()}, nil
}

func handleCountdown(ctx context.Context, c Countdown) iter.Seq2[Tick, error] {
	return func(yield func(Tick, error) bool) {
		if c.From < 0 || c.From > 1000 {
			yield(Tick{}, errors.NewValidationError("from must be between 0 and 1000"))
			return
		}
		interval, err := validDelay(c.IntervalMS)
		if err != nil {
			yield(Tick{}, err)
			return
		}

		for n := c.From; n > 0; n-- {
			if err := aborted(ctx); err != nil {
				yield(Tick{}, err)
				return
			}
			if !yield(Tick{Remaining: n, At: time.Now().UTC()}, nil) {
				return
			}
			if n > 1 {
				if err := sleep(ctx, interval); err != nil {
					yield(Tick{}, err)
					return
				}
			}
		}
	}
}

func logAuditEvent(ctx context.Context, e AuditEvent) error {
	if e.Action == "" {
		return errors.NewValidationError("audit event action is required")
	}
	logging.FromContext(ctx).InfoContext(ctx, "Audit event",
		slog.String("action", e.Action),
		slog.String("actor", e.Actor),
	)
	return nil
}
