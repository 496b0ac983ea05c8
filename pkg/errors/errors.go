// Package errors defines the error taxonomy for the downloader.
//
// Per-task failures (fetch, empty data, write) are logged and skipped;
// only setup failures (auth, config load) abort a run.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error for the run loop's skip-vs-abort decision.
type Kind string

const (
	KindConfig    Kind = "config"     // unknown instrument/exchange, bad config
	KindAuth      Kind = "auth"       // session creation or login rejection
	KindFetch     Kind = "fetch"      // network or HTTP failure for one task
	KindEmptyData Kind = "empty_data" // legitimate no-data response
	KindWrite     Kind = "write"      // disk or permission failure
	KindUnknown   Kind = "unknown"
)

// Error is a classified downloader error, optionally wrapping a cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without a cause.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error wrapping a cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from an error chain, KindUnknown if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsFatal reports whether an error must abort the whole run. Only auth
// failures qualify: everything else is skipped per task or per instrument.
func IsFatal(err error) bool {
	return KindOf(err) == KindAuth
}
