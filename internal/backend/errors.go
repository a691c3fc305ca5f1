package backend

import (
	"errors"
	"fmt"
)

// ErrorType categorizes failures talking to the job API.
type ErrorType string

const (
	ErrorTypeUnavailable     ErrorType = "unavailable"
	ErrorTypeRejected        ErrorType = "rejected"
	ErrorTypeInvalidResponse ErrorType = "invalid_response"
	ErrorTypeCancelled       ErrorType = "cancelled"
)

// Error is a structured failure from the job API.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// UserMessage returns text suitable for the status line.
func (e *Error) UserMessage() string {
	switch e.Type {
	case ErrorTypeUnavailable:
		return "Backend not available. Please check if the service is running."
	case ErrorTypeInvalidResponse:
		return "Received an invalid response from the backend."
	case ErrorTypeCancelled:
		return "Request was cancelled."
	default:
		return e.Message
	}
}

// IsUnavailable reports whether err means the backend could not be reached.
func IsUnavailable(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Type == ErrorTypeUnavailable
}

func newUnavailableError(msg string, cause error) *Error {
	return &Error{Type: ErrorTypeUnavailable, Message: msg, Cause: cause}
}

func newRejectedError(msg string) *Error {
	return &Error{Type: ErrorTypeRejected, Message: msg}
}

func newInvalidResponseError(msg string, cause error) *Error {
	return &Error{Type: ErrorTypeInvalidResponse, Message: msg, Cause: cause}
}

func newCancelledError(cause error) *Error {
	return &Error{Type: ErrorTypeCancelled, Message: "operation cancelled", Cause: cause}
}
