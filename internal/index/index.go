// Package index implements the four physical index kinds of spec.md
// §4.2 behind the single contract of §4.1, grounded on the teacher's
// mysql/resource/index.go (HashIndex/BTreeIndex selection switch) and
// pkg/resource/badger/index.go (composite-key, unique-lookup-then-
// append patterns), generalized onto internal/kv's Store/OrderedMap/
// HashMap abstraction.
package index

import (
	"context"

	"github.com/kasuganosora/tablecore/internal/lock"
	"github.com/kasuganosora/tablecore/internal/row"
)

// Record pairs a row's internal identifier with its column values.
// spec.md's data model folds row-id into "Row"; this module keeps it
// as a sibling field so every index kind — not only the primary — can
// see the id a row was (or will be) stored under without re-deriving
// it from column values.
type Record struct {
	ID  row.RowID
	Row row.Row
}

// Kind names which of the four physical index shapes an Index is, for
// the ADD INDEX selection policy and catalog bookkeeping (spec.md
// §4.2's closing paragraph).
type Kind int

const (
	KindPrimary Kind = iota
	KindDelegate
	KindHashUnique
	KindHashNonUnique
	KindSecondary
)

func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindDelegate:
		return "delegate"
	case KindHashUnique:
		return "hash-unique"
	case KindHashNonUnique:
		return "hash-nonunique"
	case KindSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Cursor is a lazy, single-direction, restartable-by-reissue sequence
// of rows (spec.md §4.1). A cursor whose owning transaction ends
// mid-iteration returns false from its next Next call, and Err then
// reports tcerr.TransactionClosed.
type Cursor interface {
	Next(ctx context.Context) bool
	Row() row.Row
	RowID() row.RowID
	Err() error
	Close() error
}

// Index is the contract every physical index satisfies (spec.md §4.1).
// On Add, if rec.ID is row.Unassigned the index that owns row-id
// allocation (the primary) fills it in; every other index kind expects
// rec.ID to already be set.
type Index interface {
	Kind() Kind
	Name() string
	MapName() string

	Add(ctx context.Context, sess *lock.Session, rec *Record) error
	Remove(ctx context.Context, sess *lock.Session, rec *Record) error
	Truncate(ctx context.Context, sess *lock.Session) error

	// Find returns a cursor over rows whose composite key lies in the
	// half-open range [first, last). Either bound may be nil to mean
	// unbounded on that side.
	Find(ctx context.Context, sess *lock.Session, first, last *row.Key) (Cursor, error)

	RowCount(ctx context.Context) (int64, error)
	RowCountApproximation(ctx context.Context) (int64, error)

	// NeedsRebuild is true for a secondary index created against an
	// already populated table before the builder has run (spec.md §4.5).
	// A hash index always reports false; a delegate reports the primary's
	// flag.
	NeedsRebuild() bool

	// CompareRows is the index's total order over its own key columns.
	CompareRows(a, b row.Row) int
}
