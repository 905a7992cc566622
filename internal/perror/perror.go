// Package perror defines the error taxonomy shared by every Pure2P
// subsystem, so handlers can branch on failure class without
// string-matching wrapped errors.
package perror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into one of the taxonomy buckets used
// throughout the core: crypto, codec, transport, storage, queue,
// connectivity, validation.
type Kind string

const (
	Crypto       Kind = "crypto"
	Codec        Kind = "codec"
	Transport    Kind = "transport"
	Storage      Kind = "storage"
	Queue        Kind = "queue"
	Connectivity Kind = "connectivity"
	Validation   Kind = "validation"
)

// Error wraps a cause with a Kind so callers can recover the taxonomy
// bucket via errors.As without inspecting message text.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause, for validation-style
// failures that originate in this package (e.g. "expired", "self-import").
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap attaches a Kind and reason to an existing error.
func Wrap(kind Kind, reason string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, returning ok=false if err is not
// (or does not wrap) a *Error.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}
