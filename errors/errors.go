package errors

import "fmt"

// DriverError is implemented by every error the core returns across
// component boundaries. It composes: callers can attach more context to
// an error they're propagating without losing the original Code or cause.
type DriverError interface {
	error
	Code() Code
	WithMessage(message string) DriverError
	WrapError(err error) DriverError
}

type customDriverError struct {
	code          Code
	message       string
	originalError error
}

func (e customDriverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.code.Error()
}

func (e customDriverError) Code() Code {
	return e.code
}

func (e customDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		code:          e.code,
		message:       fmt.Sprintf("%s: %s", e.Error(), message),
		originalError: e,
	}
}

func (e customDriverError) WrapError(err error) DriverError {
	return customDriverError{
		code:          e.code,
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: err,
	}
}

func (e customDriverError) Unwrap() error {
	return e.originalError
}

// New builds a DriverError carrying code with no extra message.
func New(code Code) DriverError {
	return customDriverError{code: code, message: code.Error()}
}

// Newf builds a DriverError carrying code with a formatted message.
func Newf(code Code, format string, args ...any) DriverError {
	return customDriverError{code: code, message: fmt.Sprintf("%s: %s", code.Error(), fmt.Sprintf(format, args...))}
}
