package errx

import (
	"errors"
	"fmt"
)

// Error is a rich error carrying a stable code, a category, and optional
// structured details alongside the wrapped cause.
type Error struct {
	// Code is the unique, stable error code (e.g. "QUEUE_UNIT_NOT_FOUND").
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error.
	Type Type `json:"type"`

	// HTTPStatus is the suggested HTTP status code.
	HTTPStatus int `json:"http_status"`

	// Details carries additional context about the error.
	Details map[string]any `json:"details,omitempty"`

	// Err is the underlying cause, never serialized.
	Err error `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches one detail and returns the error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithDetails attaches several details at once.
func (e *Error) WithDetails(details map[string]any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// New creates an Error of the given type with a default code derived
// from the type itself. Module-level errors should prefer a Registry.
func New(message string, errType Type) *Error {
	return &Error{
		Code:       string(errType),
		Message:    message,
		Type:       errType,
		HTTPStatus: httpStatusFor(errType),
	}
}

// Wrap wraps err with a message and category. Returns nil when err is nil.
// When err is already an *Error its code and details carry over.
func Wrap(err error, message string, errType Type) *Error {
	if err == nil {
		return nil
	}

	var inner *Error
	if errors.As(err, &inner) {
		return &Error{
			Code:       inner.Code,
			Message:    message,
			Type:       errType,
			HTTPStatus: inner.HTTPStatus,
			Details:    inner.Details,
			Err:        err,
		}
	}

	return &Error{
		Code:       string(errType),
		Message:    message,
		Type:       errType,
		HTTPStatus: httpStatusFor(errType),
		Err:        err,
	}
}

// Wrapf wraps err with a formatted message.
func Wrapf(err error, errType Type, format string, args ...any) *Error {
	return Wrap(err, fmt.Sprintf(format, args...), errType)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target's type.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// HasCode reports whether err carries the given registered code.
func HasCode(err error, code *ErrorCode) bool {
	if err == nil || code == nil {
		return false
	}
	var e *Error
	return errors.As(err, &e) && e.Code == code.Code
}

// IsType reports whether err is an *Error of the given type.
func IsType(err error, t Type) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// Convenience constructors for one-off errors.

func Internal(message string) *Error   { return New(message, TypeInternal) }
func Validation(message string) *Error { return New(message, TypeValidation) }
func NotFound(message string) *Error   { return New(message, TypeNotFound) }
func External(message string) *Error   { return New(message, TypeExternal) }
