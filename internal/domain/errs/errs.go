// Package errs defines the failure taxonomy shared by usecases and adapters.
// Adapters classify upstream failures; the HTTP layer maps kinds to status codes.
package errs

import (
	"github.com/pkg/errors"
)

// Kind classifies a failure by who caused it and how callers should react.
type Kind string

const (
	// KindInvalidInput is malformed or missing caller data. Not retried.
	KindInvalidInput Kind = "invalid_input"
	// KindUpstreamUnavailable is an embedding, search, model or storage failure.
	// The caller may retry the whole operation.
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	// KindPersistenceFailure is a post-stream write failure. Logged only.
	KindPersistenceFailure Kind = "persistence_failure"
	// KindWorkflowTriggerFailure is a rejected ingestion webhook call.
	KindWorkflowTriggerFailure Kind = "workflow_trigger_failure"
	// KindNotFound is a lookup of a record that does not exist.
	KindNotFound Kind = "not_found"
	// KindUnknown is anything not classified above.
	KindUnknown Kind = "unknown"
)

// Error carries a Kind, a caller-facing message and optional details.
type Error struct {
	Kind    Kind
	Msg     string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// InvalidInput builds a KindInvalidInput error.
func InvalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Msg: msg}
}

// NotFound builds a KindNotFound error.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

// Upstream wraps err as KindUpstreamUnavailable.
func Upstream(err error, msg string) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Msg: msg, Err: err}
}

// Persistence wraps err as KindPersistenceFailure.
func Persistence(err error, msg string) *Error {
	return &Error{Kind: KindPersistenceFailure, Msg: msg, Err: err}
}

// WorkflowTrigger builds a KindWorkflowTriggerFailure error. details usually
// holds the response text returned by the workflow engine.
func WorkflowTrigger(err error, msg, details string) *Error {
	return &Error{Kind: KindWorkflowTriggerFailure, Msg: msg, Details: details, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err's chain holds a classified error of kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}

// DetailsOf returns the details of the first classified error, falling back
// to the error text.
func DetailsOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Details != "" {
		return e.Details
	}
	return err.Error()
}

// MessageOf returns the caller-facing message of the first classified error.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal server error"
}
