package media

import (
	"errors"
	"fmt"
)

// ErrorKind classifies controller and engine failures.
type ErrorKind string

const (
	KindSessionNotFound     ErrorKind = "SESSION_NOT_FOUND"
	KindInvalidOperation    ErrorKind = "INVALID_OPERATION"
	KindValidationError     ErrorKind = "VALIDATION_ERROR"
	KindEncodingError       ErrorKind = "ENCODING_ERROR"
	KindDecodingError       ErrorKind = "DECODING_ERROR"
	KindInsufficientStorage ErrorKind = "INSUFFICIENT_STORAGE"
	KindDeviceOverheating   ErrorKind = "DEVICE_OVERHEATING"
	KindLowBattery          ErrorKind = "LOW_BATTERY"
	KindTimeout             ErrorKind = "TIMEOUT_ERROR"
	KindUnknown             ErrorKind = "UNKNOWN_ERROR"
)

// Error is a classified error carrying an ErrorKind and an optional cause.
// Retryable marks conditions that may clear on their own, such as the
// admission gate being full.
type Error struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a classified error wrapping a cause.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the ErrorKind from an error chain.
// Unclassified errors report KindUnknown; nil reports an empty kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the error chain carries a retryable classified error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
