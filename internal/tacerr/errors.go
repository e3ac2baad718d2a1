// Package tacerr defines the single error taxonomy used across the daemon.
package tacerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for the purposes of HTTP status mapping and
// supervisor fault handling.
type Kind int

const (
	// Internal marks a bug: an invariant the code itself broke.
	Internal Kind = iota
	// BadRequest marks external input that failed to decode or validate.
	BadRequest
	// Forbidden marks a request blocked by the setup-mode gate.
	Forbidden
	// NotFound marks a reference to an unknown topic path.
	NotFound
	// HardwareUnavailable marks a driver that refused to perform an action.
	HardwareUnavailable
	// DeadlineMiss marks a supervisor loop iteration that overran its period.
	DeadlineMiss
)

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case HardwareUnavailable:
		return "hardware_unavailable"
	case DeadlineMiss:
		return "deadline_miss"
	default:
		return "internal"
	}
}

// Error wraps a Kind with a message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given Kind with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given Kind around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Of extracts the Kind of err, defaulting to Internal when err is not (or
// does not wrap) a *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is (or wraps) an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}
