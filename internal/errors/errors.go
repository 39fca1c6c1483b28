package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes a pipeline error. Every error surfaced by the analysis
// pipeline carries exactly one Kind so callers can branch on category
// without inspecting message text.
type Kind int

const (
	// KindRepoAccess - clone, fetch or auth failure against a repository
	KindRepoAccess Kind = iota
	// KindEmptyInput - a statistic requested over zero data points
	KindEmptyInput
	// KindInvalidArgument - a bad configuration value reached a pure function
	KindInvalidArgument
	// KindTimeout - the run-wide deadline expired while a stage was suspended
	KindTimeout
	// KindNarrativeUnavailable - narrative generator failed or is disabled;
	// never fatal to a batch
	KindNarrativeUnavailable
	// KindInternal - unexpected internal state
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindRepoAccess:
		return "REPO_ACCESS"
	case KindEmptyInput:
		return "EMPTY_INPUT"
	case KindInvalidArgument:
		return "INVALID_ARGUMENT"
	case KindTimeout:
		return "TIMEOUT"
	case KindNarrativeUnavailable:
		return "NARRATIVE_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// Error is a structured pipeline error: a kind, a message, and an optional
// wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind so errors.Is(err, &Error{Kind: k}) style checks work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap wraps an existing error with a kind and message. Returns nil when
// err is nil.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// GetKind returns the kind of err, or KindInternal for foreign errors.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Convenience constructors for the pipeline's error kinds.

// RepoAccessError wraps a clone/fetch/auth failure. err may be nil when
// the failure has no underlying cause.
func RepoAccessError(err error, message string) *Error {
	if err == nil {
		return New(KindRepoAccess, message)
	}
	return Wrap(err, KindRepoAccess, message)
}

// RepoAccessErrorf wraps a clone/fetch/auth failure with formatting.
func RepoAccessErrorf(err error, format string, args ...any) *Error {
	return RepoAccessError(err, fmt.Sprintf(format, args...))
}

// EmptyInputError creates an empty-input error.
func EmptyInputError(message string) *Error {
	return New(KindEmptyInput, message)
}

// InvalidArgumentErrorf creates an invalid-argument error with formatting.
func InvalidArgumentErrorf(format string, args ...any) *Error {
	return New(KindInvalidArgument, fmt.Sprintf(format, args...))
}

// TimeoutError wraps a deadline expiry.
func TimeoutError(err error, message string) *Error {
	return Wrap(err, KindTimeout, message)
}

// NarrativeUnavailableError wraps a narrative generator failure.
func NarrativeUnavailableError(err error, message string) *Error {
	if err == nil {
		return New(KindNarrativeUnavailable, message)
	}
	return Wrap(err, KindNarrativeUnavailable, message)
}
