package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
)

// Error pairs a Code with a caller-facing message. The optional details are
// only rendered for codes whose metadata allows them.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return Wrap(code, nil, message)
}

func Newf(code Code, format string, args ...any) *Error {
	return Wrap(code, nil, fmt.Sprintf(format, args...))
}

// Wrap keeps err as the cause; errors.Is and errors.As see through it.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails copies e; sentinel errors stay untouched.
func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	out := *e
	out.details = details
	return &out
}

// Error reads "CODE: message: cause", skipping empty parts.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	parts := []string{string(e.code)}
	if e.message != "" {
		parts = append(parts, e.message)
	}
	if e.cause != nil {
		parts = append(parts, e.cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is compares codes only, so a sentinel with any message matches.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok || e == nil || other == nil {
		return false
	}
	return e.code == other.code
}

// As finds the outermost *Error in the chain of err.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if !stdErrors.As(err, &typed) {
		return nil
	}
	return typed
}

func IsCode(err error, code Code) bool {
	return As(err).codeIs(code)
}

// Retryable reports whether a client may repeat the request unchanged.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(As(err).Code()).Retryable
}

func (e *Error) codeIs(code Code) bool {
	return e != nil && e.code == code
}
