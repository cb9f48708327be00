// Package errs defines the detector error taxonomy used throughout the
// orchestrator: every failure a detector, the scheduler, or the VL client
// can report is classified into one of a closed set of kinds so the
// fallback controller can decide, without string matching, what to do
// with it.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for fallback/ladder purposes.
type Kind string

const (
	// KindTransientResource covers GPU OOM, device-busy, and first-time
	// per-shot deadline overruns. Eligible for fallback ladder advancement.
	KindTransientResource Kind = "transient_resource"
	// KindInputDefect covers bad frames, missing/silent audio where speech
	// was expected. Never retried; the detector's slot is skipped.
	KindInputDefect Kind = "input_defect"
	// KindInternal covers unexpected failures (panics, assertion failures,
	// malformed backend output, repeat deadline overruns).
	KindInternal Kind = "internal"
	// KindExternal covers failures in an out-of-process collaborator, i.e.
	// the VL reasoning endpoint.
	KindExternal Kind = "external"
)

// Error is a classified orchestrator error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an existing error under kind.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Transient reports a transient-resource error.
func Transient(message string, cause error) *Error {
	return Wrap(KindTransientResource, message, cause)
}

// InputDefect reports an input-defect error.
func InputDefect(message string, cause error) *Error {
	return Wrap(KindInputDefect, message, cause)
}

// Internal reports an internal error.
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// External reports an external-collaborator error.
func External(message string, cause error) *Error {
	return Wrap(KindExternal, message, cause)
}

// KindOf extracts the Kind from err, defaulting to KindInternal for
// unclassified errors so callers always have a definite bucket to act on.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindInternal
}

// IsTransient reports whether err is eligible for fallback-ladder handling.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransientResource
}
