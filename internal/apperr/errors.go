// Package apperr defines the error taxonomy shared by every component
// of the collaborative document core, and the policy for mapping each
// kind to an HTTP status and to a retry decision.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP mapping and retry policy.
type Kind string

const (
	NotFound             Kind = "not_found"
	Unauthorized         Kind = "unauthorized"
	Forbidden            Kind = "forbidden"
	BadRequest           Kind = "bad_request"
	Conflict             Kind = "conflict"
	InvalidUpdate        Kind = "invalid_update"
	PersistenceTransient Kind = "persistence_transient"
	PersistenceFatal     Kind = "persistence_fatal"
	IoTransient          Kind = "io_transient"
	IoFatal              Kind = "io_fatal"
	GitFailure           Kind = "git_failure"
	EncodingError        Kind = "encoding_error"
	Internal             Kind = "internal"
)

// Error wraps a Kind, an optional reason string, and the underlying
// cause, so callers can branch on Kind while %w-wrapping still works.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind with a plain reason.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap creates an Error of the given kind around an existing error.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Wrapf creates an Error of the given kind with a formatted reason
// around an existing error.
func Wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, defaulting to Internal for
// errors that were never classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsTransient reports whether err's kind belongs to the set that the
// persistence retry wrapper is allowed to retry.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case PersistenceTransient, IoTransient:
		return true
	default:
		return false
	}
}

// httpStatus maps each Kind to the HTTP status the REST contract uses
// for it.
var httpStatus = map[Kind]int{
	NotFound:             http.StatusNotFound,
	Unauthorized:         http.StatusUnauthorized,
	Forbidden:            http.StatusForbidden,
	BadRequest:           http.StatusBadRequest,
	Conflict:             http.StatusConflict,
	InvalidUpdate:        http.StatusBadRequest,
	PersistenceTransient: http.StatusInternalServerError,
	PersistenceFatal:     http.StatusInternalServerError,
	IoTransient:          http.StatusInternalServerError,
	IoFatal:              http.StatusInternalServerError,
	GitFailure:           http.StatusInternalServerError,
	EncodingError:        http.StatusBadRequest,
	Internal:             http.StatusInternalServerError,
}

// HTTPStatus returns the HTTP status code for err, defaulting to 500
// for unclassified errors.
func HTTPStatus(err error) int {
	if status, ok := httpStatus[KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
