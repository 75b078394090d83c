// Package mediator provides an in-process request mediator.
//
// A Mediator routes three shapes of message to their handlers:
//   - requests, answered by exactly one handler (Send)
//   - notifications, broadcast to every registered handler (Publish)
//   - stream requests, answered by a lazy sequence of responses (CreateStream)
//
// Handlers are registered explicitly per message type on a Registry. The
// Mediator interface is untyped so decorators can wrap every shape with three
// methods; the generic Send, Publish and CreateStream functions give callers a
// typed view on top of any Mediator.
//
// Example usage:
//
//	reg := mediator.NewRegistry()
//	mediator.RegisterRequestHandlerFunc(reg, func(ctx context.Context, p Ping) (Pong, error) {
//		return Pong{Message: p.Message}, nil
//	})
//
//	m := mediator.New(reg)
//	pong, err := mediator.Send[Pong](ctx, m, Ping{Message: "hi"})
package mediator
