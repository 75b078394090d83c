// Package errors provides the error taxonomy of the mediator service.
// It defines error categories, wrapping helpers, and classification of
// dispatch failures so HTTP handlers and instrumentation report them
// consistently.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mcncl/mediator-abort/pkg/mediator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Standard error categories
var (
	ErrValidation = errors.New("validation error")
	ErrRateLimit  = errors.New("rate limit error")
	ErrPublish    = errors.New("publish error")
	ErrConnection = errors.New("connection error")
	ErrNotFound   = errors.New("not found error")
	ErrCanceled   = errors.New("canceled")
	ErrInternal   = errors.New("internal error")
)

// errorType is an error tagged with a category
type errorType struct {
	baseErr   error
	msg       string
	cause     error
	details   map[string]interface{}
	retryable bool
}

type ErrorWithDetails interface {
	Error() string
	Details() map[string]interface{}
}

// Error implements the error interface
func (e *errorType) Error() string {
	if e == nil {
		return ""
	}

	base := fmt.Sprintf("%s: %s", e.baseErr.Error(), e.msg)

	if len(e.details) > 0 {
		detailsJSON, err := json.Marshal(e.details)
		if err == nil {
			base += fmt.Sprintf(" - details: %s", detailsJSON)
		}
	}

	if e.cause != nil {
		base += fmt.Sprintf(" - caused by: %v", e.cause)
	}

	return base
}

// Unwrap returns the underlying cause of the error
func (e *errorType) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether the error belongs to the target category
func (e *errorType) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	return errors.Is(e.baseErr, target)
}

// Details implements ErrorWithDetails
func (e *errorType) Details() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *errorType) with(fn func(c *errorType)) *errorType {
	c := *e
	fn(&c)
	return &c
}

// NewValidationError creates a new validation error
func NewValidationError(msg string) error {
	return &errorType{baseErr: ErrValidation, msg: msg}
}

// NewRateLimitError creates a new rate limit error
func NewRateLimitError(msg string, cause error) error {
	return &errorType{baseErr: ErrRateLimit, msg: msg, cause: cause, retryable: true}
}

// NewPublishError creates a new publish error
func NewPublishError(msg string, cause error) error {
	return &errorType{baseErr: ErrPublish, msg: msg, cause: cause, retryable: true}
}

// NewConnectionError creates a new connection error
func NewConnectionError(msg string, cause error) error {
	return &errorType{baseErr: ErrConnection, msg: msg, cause: cause, retryable: true}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(msg string, cause error) error {
	return &errorType{baseErr: ErrNotFound, msg: msg, cause: cause}
}

// NewCanceledError creates an error for work abandoned because its context
// was cancelled or its deadline passed.
func NewCanceledError(msg string, cause error) error {
	return &errorType{baseErr: ErrCanceled, msg: msg, cause: cause}
}

// NewInternalError creates a new internal error
func NewInternalError(msg string) error {
	return &errorType{baseErr: ErrInternal, msg: msg}
}

// Wrap wraps an error with additional context
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}

	var customErr *errorType
	if errors.As(err, &customErr) {
		return customErr.with(func(c *errorType) {
			c.msg = msg + ": " + customErr.msg
		})
	}

	return &errorType{baseErr: ErrInternal, msg: msg, cause: err}
}

// WithDetails adds detail information to an error
func WithDetails(err error, details map[string]interface{}) error {
	if err == nil {
		return nil
	}

	var customErr *errorType
	if errors.As(err, &customErr) {
		return customErr.with(func(c *errorType) {
			c.details = details
		})
	}

	return &errorType{baseErr: ErrInternal, msg: err.Error(), cause: err, details: details}
}

// MakeRetryable marks an error as retryable
func MakeRetryable(err error) error {
	if err == nil {
		return nil
	}

	var customErr *errorType
	if errors.As(err, &customErr) {
		return customErr.with(func(c *errorType) {
			c.retryable = true
		})
	}

	return &errorType{baseErr: ErrInternal, msg: err.Error(), cause: err, retryable: true}
}

// IsCanceled reports whether err stems from a cancelled context, either
// directly or reported by a gRPC backend.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch grpcCode(err) {
	case codes.Canceled, codes.DeadlineExceeded:
		return true
	}
	return false
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return err != nil && errors.Is(err, ErrValidation)
}

// IsRateLimitError checks if the error is a rate limit error
func IsRateLimitError(err error) bool {
	return err != nil && errors.Is(err, ErrRateLimit)
}

// IsPublishError checks if the error is a publish error
func IsPublishError(err error) bool {
	return err != nil && errors.Is(err, ErrPublish)
}

// IsConnectionError checks if the error is a connection error
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrConnection) || grpcCode(err) == codes.Unavailable
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return err != nil && errors.Is(err, ErrNotFound)
}

// IsRetryable checks if the error is retryable
func IsRetryable(err error) bool {
	var customErr *errorType
	if errors.As(err, &customErr) {
		return customErr.retryable
	}
	return grpcCode(err) == codes.Unavailable
}

// GetDetails returns error details if available, nil otherwise
func GetDetails(err error) map[string]interface{} {
	var detailedErr ErrorWithDetails
	if errors.As(err, &detailedErr) {
		return detailedErr.Details()
	}
	return nil
}

func grpcCode(err error) codes.Code {
	var se interface{ GRPCStatus() *status.Status }
	if errors.As(err, &se) {
		return se.GRPCStatus().Code()
	}
	return codes.OK
}

// Classify maps an error returned by a dispatch to its category. Mediator
// argument and lookup errors become validation and not found errors;
// cancellations become canceled errors. Errors that already carry a
// category are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var customErr *errorType
	if errors.As(err, &customErr) {
		return err
	}

	switch {
	case errors.Is(err, mediator.ErrNilRequest), errors.Is(err, mediator.ErrNilNotification):
		return &errorType{baseErr: ErrValidation, msg: "invalid message", cause: err}
	case errors.Is(err, mediator.ErrHandlerNotFound):
		return &errorType{baseErr: ErrNotFound, msg: "no handler for message", cause: err}
	case IsCanceled(err):
		return NewCanceledError("dispatch cancelled", err)
	case IsConnectionError(err):
		return NewConnectionError("backend unavailable", err)
	}
	return Wrap(err, "dispatch failed")
}

// Label returns a short, stable name for the category of err, suitable for
// metric labels and error responses.
func Label(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsCanceled(err):
		return "canceled"
	case IsValidationError(err):
		return "validation"
	case IsRateLimitError(err):
		return "rate_limit"
	case IsConnectionError(err):
		return "connection"
	case IsPublishError(err):
		return "publish"
	case IsNotFoundError(err):
		return "not_found"
	default:
		return "internal"
	}
}

// HTTPStatus maps the category of err to an HTTP status code.
func HTTPStatus(err error) int {
	switch Label(err) {
	case "ok":
		return http.StatusOK
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "rate_limit":
		return http.StatusTooManyRequests
	case "canceled":
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		// Client closed the request; nginx's non-standard code.
		return 499
	case "connection", "publish":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse provides a consistent structure for error responses
type ErrorResponse struct {
	Status     string                 `json:"status"`
	Message    string                 `json:"message"`
	ErrorType  string                 `json:"error_type"`
	RetryAfter int                    `json:"retry_after,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// ToErrorResponse converts an error to a standardized ErrorResponse
func ToErrorResponse(err error) ErrorResponse {
	if err == nil {
		return ErrorResponse{
			Status:  "error",
			Message: "Unknown error",
		}
	}

	response := ErrorResponse{
		Status:    "error",
		Message:   err.Error(),
		ErrorType: Label(err),
		Details:   GetDetails(err),
	}

	if IsRetryable(err) {
		response.RetryAfter = 30
	}

	return response
}
