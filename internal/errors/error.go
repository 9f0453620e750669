package errors

import (
	stderrors "errors"
	"fmt"
)

// Category represents the kind of failure.
type Category string

const (
	CategoryConfig    Category = "config"
	CategoryTransport Category = "transport"
	CategoryProtocol  Category = "protocol"
	CategoryStorage   Category = "storage"
	CategoryExport    Category = "export"
	CategoryCLI       Category = "cli"
)

// CanvasError is a structured error with an explanation and a fix hint.
type CanvasError struct {
	// Code is a unique error identifier (e.g., "E100").
	Code string

	// Category is the error kind.
	Category Category

	// Message is a short description of the error.
	Message string

	// Explanation is the registered long description of the code.
	Explanation string

	// Detail is call-site information such as an address or a path.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *CanvasError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *CanvasError) Unwrap() error {
	return e.Wrapped
}

// Is matches another CanvasError with the same code.
func (e *CanvasError) Is(target error) bool {
	t, ok := target.(*CanvasError)
	return ok && e.Code != "" && e.Code == t.Code
}

// WithSuggestion adds a fix suggestion to the error.
func (e *CanvasError) WithSuggestion(s string) *CanvasError {
	e.Suggestion = s
	return e
}

// WithDetail adds call-site detail to the error.
func (e *CanvasError) WithDetail(d string) *CanvasError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *CanvasError) Wrap(err error) *CanvasError {
	e.Wrapped = err
	return e
}

// New creates a CanvasError from a registered error code.
func New(code string) *CanvasError {
	template, ok := registry[code]
	if !ok {
		return &CanvasError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &CanvasError{
		Code:        code,
		Category:    template.Category,
		Message:     template.Message,
		Explanation: template.Explanation,
	}
}

// Newf creates a new CanvasError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *CanvasError {
	return &CanvasError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a CanvasError. An error that already
// is (or wraps) a CanvasError is returned as that CanvasError.
func FromError(err error, code string) *CanvasError {
	if err == nil {
		return nil
	}
	var ce *CanvasError
	if stderrors.As(err, &ce) {
		return ce
	}
	return New(code).Wrap(err)
}

// Code returns the code of the first CanvasError in err's chain, or "".
func Code(err error) string {
	var ce *CanvasError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
