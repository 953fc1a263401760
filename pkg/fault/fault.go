// Package fault defines the error taxonomy shared by all StreamForge
// services. Every user-facing failure is classified with a Kind so that
// transport layers can map it to a status code without inspecting message
// text.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and transports.
type Kind int

const (
	// KindInternal is the default for unclassified failures.
	KindInternal Kind = iota
	// KindNotFound marks a missing topic/group/consumer/entry/session.
	KindNotFound
	// KindConflict marks duplicate names and already-terminal transitions.
	KindConflict
	// KindInvalidArgument marks validation failures detected before mutation.
	KindInvalidArgument
	// KindUnavailable marks transient storage/log failures.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error carries a Kind and a human-readable message, optionally wrapping a
// cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a classified error.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error with a message prefix.
func Wrap(kind Kind, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// NotFound is shorthand for New(KindNotFound, ...).
func NotFound(format string, args ...any) error { return New(KindNotFound, format, args...) }

// Conflict is shorthand for New(KindConflict, ...).
func Conflict(format string, args ...any) error { return New(KindConflict, format, args...) }

// InvalidArgument is shorthand for New(KindInvalidArgument, ...).
func InvalidArgument(format string, args ...any) error {
	return New(KindInvalidArgument, format, args...)
}

// Unavailable wraps a transient storage failure.
func Unavailable(cause error, format string, args ...any) error {
	return Wrap(KindUnavailable, cause, format, args...)
}

// KindOf extracts the Kind from err, walking the wrap chain.
// Unclassified errors report KindInternal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err is classified KindNotFound.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err is classified KindConflict.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsInvalidArgument reports whether err is classified KindInvalidArgument.
func IsInvalidArgument(err error) bool { return KindOf(err) == KindInvalidArgument }
