package mediator

import "errors"

var (
	// Argument errors.
	ErrNilRequest      = errors.New("mediator: request is nil")
	ErrNilNotification = errors.New("mediator: notification is nil")

	// Registration errors.
	ErrHandlerNotFound  = errors.New("mediator: no handler registered")
	ErrDuplicateHandler = errors.New("mediator: handler already registered")

	// ErrUnexpectedResponse is returned by the typed helpers when a handler
	// answers with a value of a different type than the request declares.
	ErrUnexpectedResponse = errors.New("mediator: unexpected response type")
)
