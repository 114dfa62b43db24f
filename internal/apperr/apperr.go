// Package apperr defines the error kinds shared by every layer of the shop.
//
// Domain and storage code mark their errors with one of the kind sentinels;
// the HTTP layer maps kinds to status codes in one place.
package apperr

import (
	"github.com/cockroachdb/errors"
)

// Kind sentinels. Use errors.Is to test an error's kind.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrPersistence     = errors.New("persistence failure")
)

// NotFound returns a new error of kind ErrNotFound.
func NotFound(msg string) error { return errors.Mark(errors.New(msg), ErrNotFound) }

// InvalidArgument returns a new error of kind ErrInvalidArgument.
func InvalidArgument(msg string) error { return errors.Mark(errors.New(msg), ErrInvalidArgument) }

// Unauthenticated returns a new error of kind ErrUnauthenticated.
func Unauthenticated(msg string) error { return errors.Mark(errors.New(msg), ErrUnauthenticated) }

// Forbidden returns a new error of kind ErrForbidden.
func Forbidden(msg string) error { return errors.Mark(errors.New(msg), ErrForbidden) }

// Conflict returns a new error of kind ErrConflict.
func Conflict(msg string) error { return errors.Mark(errors.New(msg), ErrConflict) }

// Persistence wraps a storage failure with the failed operation and marks it
// ErrPersistence. A nil err stays nil.
func Persistence(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, op), ErrPersistence)
}

// Kind reports the kind sentinel err is marked with, or nil when err carries
// no kind.
func Kind(err error) error {
	for _, kind := range []error{
		ErrNotFound,
		ErrInvalidArgument,
		ErrUnauthenticated,
		ErrForbidden,
		ErrConflict,
		ErrPersistence,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
