// Package tcerr defines the error taxonomy raised by the table core.
//
// The taxonomy is a set of kinds, not a set of Go types: every raised
// error is a *Error carrying a Kind, so callers switch on Kind (or use
// errors.Is against the Sentinel value for that kind) instead of type
// asserting concrete error structs.
package tcerr

import (
	"errors"
	"fmt"
)

// Kind identifies which taxonomy entry an error belongs to.
type Kind int

const (
	// LockTimeout: session exceeded its lock_timeout waiting for a table lock.
	LockTimeout Kind = iota
	// Deadlock: a cycle was detected in the wait-for graph.
	Deadlock
	// DuplicateKey: a unique index rejected an insert against a committed row.
	DuplicateKey
	// ConcurrentUpdate: a unique index conflicted with another session's
	// uncommitted write under MVCC.
	ConcurrentUpdate
	// ColumnNotNullable: a primary-key column was nullable at index creation.
	ColumnNotNullable
	// UnsupportedScan: a range scan was attempted against a hash index.
	UnsupportedScan
	// TransactionClosed: a cursor was driven after its owning transaction ended.
	TransactionClosed
	// InternalCheck: an invariant was violated. Always fatal to the caller.
	InternalCheck
)

func (k Kind) String() string {
	switch k {
	case LockTimeout:
		return "LockTimeout"
	case Deadlock:
		return "Deadlock"
	case DuplicateKey:
		return "DuplicateKey"
	case ConcurrentUpdate:
		return "ConcurrentUpdate"
	case ColumnNotNullable:
		return "ColumnNotNullable"
	case UnsupportedScan:
		return "UnsupportedScan"
	case TransactionClosed:
		return "TransactionClosed"
	case InternalCheck:
		return "InternalCheck"
	default:
		return "Unknown"
	}
}

// Error is the single error type raised by every component of the table
// core. Detail carries kind-specific context: the lock manager fills it
// with the wait-for cycle and the session's held locks for Deadlock, the
// indexes fill it with the index name or row-id for DuplicateKey, etc.
type Error struct {
	Kind   Kind
	Msg    string
	Detail map[string]any
	Err    error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, tcerr.Sentinel(Kind)) match any *Error of that kind.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind && te.Err == nil && te.Msg == ""
	}
	return false
}

// New builds a bare *Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds a bare *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap converts a raw error from an index/store collaborator into the
// taxonomy, preserving the cause via Unwrap.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// WithDetail attaches kind-specific context and returns the same error
// for chaining at the call site.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// Sentinel returns a zero-value *Error of the given kind, suitable only
// for errors.Is comparisons (never for returning to a caller directly).
func Sentinel(kind Kind) error { return &Error{Kind: kind} }

// Of reports whether err is a tcerr.Error of the given kind.
func Of(err error, kind Kind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}
