package index

import (
	"context"

	"github.com/kasuganosora/tablecore/internal/lock"
	"github.com/kasuganosora/tablecore/internal/row"
)

// DelegateIndex owns no storage of its own: it is a view over a
// promoted PrimaryIndex's main column and forwards every read to it
// (spec.md §4.2); its mutations are no-ops, see Add below. It exists so the catalog can still list "the PK
// index" as a distinct named index even though there is nothing to
// store beyond what the primary already holds.
type DelegateIndex struct {
	name    string
	primary *PrimaryIndex
	mainCol int
}

func NewDelegateIndex(name string, primary *PrimaryIndex, mainCol int) *DelegateIndex {
	return &DelegateIndex{name: name, primary: primary, mainCol: mainCol}
}

func (d *DelegateIndex) Kind() Kind      { return KindDelegate }
func (d *DelegateIndex) Name() string    { return d.name }
func (d *DelegateIndex) MapName() string { return d.primary.MapName() }

// Add/Remove/Truncate are no-ops: the mutator already drives the
// primary index directly as a separate member of its index list, so a
// delegate forwarding these too would apply every mutation twice (the
// second Add finding the row-id it just inserted and raising
// DuplicateKey). A delegate only ever answers reads.
func (d *DelegateIndex) Add(ctx context.Context, sess *lock.Session, rec *Record) error {
	return nil
}

func (d *DelegateIndex) Remove(ctx context.Context, sess *lock.Session, rec *Record) error {
	return nil
}

func (d *DelegateIndex) Truncate(ctx context.Context, sess *lock.Session) error {
	return nil
}

func (d *DelegateIndex) Find(ctx context.Context, sess *lock.Session, first, last *row.Key) (Cursor, error) {
	return d.primary.Find(ctx, sess, first, last)
}

func (d *DelegateIndex) RowCount(ctx context.Context) (int64, error) {
	return d.primary.RowCount(ctx)
}

func (d *DelegateIndex) RowCountApproximation(ctx context.Context) (int64, error) {
	return d.primary.RowCountApproximation(ctx)
}

func (d *DelegateIndex) NeedsRebuild() bool { return d.primary.NeedsRebuild() }

func (d *DelegateIndex) CompareRows(a, b row.Row) int {
	return a[d.mainCol].Compare(b[d.mainCol], "")
}
