// Package errs implements the error taxonomy of SPEC_FULL.md §7: every error
// that crosses a component boundary carries a Kind, from which retriability
// and an HTTP status are derived uniformly by the Queue's retry classifier
// and the HTTP handlers.
package errs

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Kind classifies an error for retry and HTTP-projection purposes.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindUnsupported
	KindRateLimited
	KindTransientNetwork
	KindStateConflict
	KindExpired
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnsupported:
		return "unsupported"
	case KindRateLimited:
		return "rate_limited"
	case KindTransientNetwork:
		return "transient_network"
	case KindStateConflict:
		return "state_conflict"
	case KindExpired:
		return "expired"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

type kindError struct {
	kind       Kind
	cause      error
	msg        string
	retryAfter time.Duration
}

func (e *kindError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *kindError) Unwrap() error { return e.cause }
func (e *kindError) Cause() error  { return e.cause }

// New returns a new error of the given kind, with a stack trace attached the
// way github.com/pkg/errors attaches one.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, cause: errors.New(msg), msg: msg}
}

// Wrap attaches a Kind to an existing error without discarding its message or
// (if it already carries one) its stack trace.
func Wrap(kind Kind, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &kindError{kind: kind, cause: errors.Wrap(cause, msg), msg: msg}
}

// KindOf extracts the Kind of err, walking Unwrap/Cause chains. Errors that
// never passed through New/Wrap report KindUnknown.
func KindOf(err error) Kind {
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			return ke.kind
		}
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		case interface{ Cause() error }:
			err = u.Cause()
		default:
			return KindUnknown
		}
	}
	return KindUnknown
}

// Retriable reports whether the Queue's retry classifier should reschedule
// the task that produced err. Validation, not-found, unsupported, expired
// and fatal errors are never retried; rate-limited, transient-network and
// (optimistically) state-conflict and unknown errors are.
func Retriable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindUnsupported, KindExpired, KindFatal:
		return false
	default:
		return true
	}
}

// HTTPStatus projects a Kind onto the HTTP status code the §6 API surface
// returns for it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnsupported:
		return http.StatusNotImplemented
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindStateConflict:
		return http.StatusConflict
	case KindExpired:
		return http.StatusGone
	case KindTransientNetwork:
		return http.StatusBadGateway
	case KindFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether err (or anything it wraps) is of the given kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// NewRateLimited builds a KindRateLimited error carrying the effector's
// Retry-After hint (SPEC_FULL.md §9 Open Question: honor Retry-After when
// present), zero meaning "no hint".
func NewRateLimited(msg string, retryAfter time.Duration) error {
	return &kindError{kind: KindRateLimited, cause: errors.New(msg), msg: msg, retryAfter: retryAfter}
}

// RetryAfter extracts the Retry-After hint attached by NewRateLimited, if
// any, walking the Unwrap/Cause chain.
func RetryAfter(err error) (time.Duration, bool) {
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			if ke.retryAfter > 0 {
				return ke.retryAfter, true
			}
			err = ke.cause
			continue
		}
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		case interface{ Cause() error }:
			err = u.Cause()
		default:
			return 0, false
		}
	}
	return 0, false
}
