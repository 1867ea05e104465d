// Package errs provides the kind-tagged error type used across the KEL/TEL
// engines, mirroring the original Rust implementation's Error enum
// (error.rs: StoreError, CryptoError, ParseError, ValidationError,
// StateError, QueueFull, Generic) while staying idiomatic Go: a single
// struct implementing error and Unwrap, inspected with Is.
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes an error the way §7 of the spec requires callers to be
// able to distinguish.
type Kind string

const (
	KindStore      Kind = "store"
	KindCrypto     Kind = "crypto"
	KindParse      Kind = "parse"
	KindValidation Kind = "validation"
	KindState      Kind = "state"
	KindQueueFull  Kind = "queue_full"
	KindGeneric    Kind = "generic"
)

// Error is the taxonomy-tagged error type. Validation and state errors are
// reported, not retried, per §7's policy; callers distinguish them from
// store/crypto failures with Is.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		if e.Message == "" {
			return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
		}
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause so errors.Is/As keep working through the
// chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a leaf error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf builds a leaf error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an existing error.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Wrapf attaches a kind and a formatted message to an existing error.
func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is an *Error of the given kind, anywhere in its
// chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// QueueFull is the sentinel the Dispatcher returns synchronously at push
// time when its bounded queue is at capacity.
var QueueFull = New(KindQueueFull, "dispatch queue is full")
