package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure. Every error the engine returns
// carries exactly one Kind so callers can map it to a transport response
// without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindInvalidInput
	KindClosed
	KindUnauthorized
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid_input"
	case KindClosed:
		return "closed"
	case KindUnauthorized:
		return "unauthorized"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is a kinded error. Cause is optional and preserved for errors.Is.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func InvalidInput(msg string) error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

func Closed(msg string) error {
	return &Error{Kind: KindClosed, Message: msg}
}

func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// Unavailable wraps a storage/transport failure that callers may retry.
func Unavailable(msg string, cause error) error {
	return &Error{Kind: KindUnavailable, Message: msg, Cause: cause}
}

// KindOf returns the Kind carried by err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}
