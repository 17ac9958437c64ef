// Package cdserrors defines the error kinds surfaced across the dispersal,
// chunking, dedup and restore paths (see spec.md §7).
package cdserrors

import "github.com/pkg/errors"

// Kind classifies an error for callers that need to branch on failure mode
// (e.g. telling a SINGULAR_MATRIX decode failure apart from an INTEGRITY
// one).
type Kind int

const (
	// KindInvalidArg covers bad constructor/parameter validation, e.g. a
	// chunker built with max < min, or n,m,r that don't satisfy k = n-m > 1.
	KindInvalidArg Kind = iota
	// KindBadInput covers an over-large secret, an unaligned share size, or
	// a received share whose fingerprint doesn't match its claimed hash.
	KindBadInput
	// KindSingularMatrix is returned by dispersal decode when the selected
	// k rows of the distribution matrix aren't invertible.
	KindSingularMatrix
	// KindIntegrity is returned by dispersal decode when a recovered
	// hash/key check fails.
	KindIntegrity
	// KindNotFound covers a missing inode or share-index entry.
	KindNotFound
	// KindIO covers underlying file or socket failures.
	KindIO
	// KindFatal covers unrecoverable conditions such as a rejected batched
	// key-value write.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArg:
		return "INVALID_ARG"
	case KindBadInput:
		return "BAD_INPUT"
	case KindSingularMatrix:
		return "SINGULAR_MATRIX"
	case KindIntegrity:
		return "INTEGRITY"
	case KindNotFound:
		return "NOT_FOUND"
	case KindIO:
		return "IO"
	case KindFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Error is a kinded error, wrapped with context via pkg/errors the way the
// teacher's internal/errors package is used throughout restic.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps msg into a kinded error.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// Wrap annotates err with msg and a kind, matching errors.Wrap's semantics.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: errors.Wrap(err, msg)}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if as, ok := err.(*Error); ok {
			e = as
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
