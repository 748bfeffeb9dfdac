package index

import (
	"context"
	"sync"

	"github.com/kasuganosora/tablecore/internal/kv"
	"github.com/kasuganosora/tablecore/internal/lock"
	"github.com/kasuganosora/tablecore/internal/row"
	"github.com/kasuganosora/tablecore/internal/schema"
	"github.com/kasuganosora/tablecore/internal/tcerr"
)

// PrimaryIndex stores row-id -> row (spec.md §4.2). When promoted, the
// stored key *is* the main column's own value rather than a
// separately assigned counter, so lookups on that column skip a level
// of indirection; promotion is fixed at construction time per the
// caller's decision (table.go decides (a)/(b) from spec.md §4.2).
type PrimaryIndex struct {
	name     string
	store    kv.OrderedMap
	columns  schema.Columns
	promoted bool
	mainCol  int // index into columns/row when promoted, else -1

	mu        sync.Mutex
	nextRowID int64
	rebuild   bool
}

// NewPrimaryIndex constructs a primary index. mainCol is the promoted
// column's position, or -1 for an ordinary auto-assigned row-id.
func NewPrimaryIndex(name string, store kv.OrderedMap, columns schema.Columns, mainCol int) *PrimaryIndex {
	return &PrimaryIndex{
		name:     name,
		store:    store,
		columns:  columns,
		promoted: mainCol >= 0,
		mainCol:  mainCol,
	}
}

func (p *PrimaryIndex) Kind() Kind      { return KindPrimary }
func (p *PrimaryIndex) Name() string    { return p.name }
func (p *PrimaryIndex) MapName() string { return p.name }

func (p *PrimaryIndex) assignRowID(rec *Record) row.RowID {
	if p.promoted {
		return row.RowID(rec.Row[p.mainCol].I)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := row.RowID(p.nextRowID)
	p.nextRowID++
	return id
}

func (p *PrimaryIndex) Add(ctx context.Context, sess *lock.Session, rec *Record) error {
	if rec.ID == row.Unassigned {
		rec.ID = p.assignRowID(rec)
	}
	key := rowIDKey(rec.ID)

	if existing, found, err := p.store.Get(key); err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "primary index lookup", err)
	} else if found {
		if sess != nil && sess.Txn != nil {
			if conflict, cErr := sess.Txn.IsUncommittedConflict(ctx, key); cErr == nil && conflict {
				return tcerr.New(tcerr.ConcurrentUpdate, "row-id conflicts with an uncommitted write").
					WithDetail("rowID", int64(rec.ID))
			}
		}
		_ = existing
		return tcerr.New(tcerr.DuplicateKey, "row-id already present in primary index").
			WithDetail("rowID", int64(rec.ID))
	}

	if err := p.store.Put(key, row.EncodeRow(rec.Row)); err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "primary index put", err)
	}
	registerUndo(sess, func() error { return p.store.Remove(key) })
	return nil
}

func (p *PrimaryIndex) Remove(ctx context.Context, sess *lock.Session, rec *Record) error {
	key := rowIDKey(rec.ID)
	prev, found, err := p.store.Get(key)
	if err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "primary index remove lookup", err)
	}
	if err := p.store.Remove(key); err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "primary index remove", err)
	}
	if found {
		prevCopy := append([]byte(nil), prev...)
		registerUndo(sess, func() error { return p.store.Put(key, prevCopy) })
	}
	return nil
}

func (p *PrimaryIndex) Truncate(ctx context.Context, sess *lock.Session) error {
	it, err := p.store.Scan(nil, nil)
	if err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "primary index truncate scan", err)
	}
	defer it.Close()
	var keys, vals [][]byte
	for it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
		vals = append(vals, append([]byte(nil), it.Value()...))
	}
	if err := it.Err(); err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "primary index truncate scan", err)
	}
	for _, k := range keys {
		if err := p.store.Remove(k); err != nil {
			return tcerr.Wrap(tcerr.InternalCheck, "primary index truncate remove", err)
		}
	}
	registerUndo(sess, func() error {
		for i, k := range keys {
			if err := p.store.Put(k, vals[i]); err != nil {
				return err
			}
		}
		return nil
	})
	p.mu.Lock()
	p.nextRowID = 0
	p.mu.Unlock()
	return nil
}

// GetRow looks a row up by its id directly, the fast path the table
// facade's getRow(key) uses for the common primary-key lookup.
func (p *PrimaryIndex) GetRow(id row.RowID) (row.Row, bool, error) {
	v, found, err := p.store.Get(rowIDKey(id))
	if err != nil || !found {
		return nil, found, err
	}
	r, err := row.DecodeRow(v)
	return r, true, err
}

func (p *PrimaryIndex) Find(ctx context.Context, sess *lock.Session, first, last *row.Key) (Cursor, error) {
	var lo, hi []byte
	if first != nil {
		lo = first.Encode()
	}
	if last != nil {
		hi = last.Encode()
	}
	it, err := p.store.Scan(lo, hi)
	if err != nil {
		return nil, tcerr.Wrap(tcerr.InternalCheck, "primary index scan", err)
	}
	return &mapCursor{it: it, sess: sess}, nil
}

func (p *PrimaryIndex) RowCount(ctx context.Context) (int64, error) {
	return p.store.ApproxSize(), nil
}

func (p *PrimaryIndex) RowCountApproximation(ctx context.Context) (int64, error) {
	return p.store.ApproxSize(), nil
}

func (p *PrimaryIndex) NeedsRebuild() bool { return p.rebuild }

func (p *PrimaryIndex) MarkNeedsRebuild(v bool) { p.rebuild = v }

func (p *PrimaryIndex) CompareRows(a, b row.Row) int {
	if p.promoted {
		return a[p.mainCol].Compare(b[p.mainCol], p.columns[p.mainCol].Collation)
	}
	return 0
}

// mapCursor adapts a kv.Iterator over row-id-keyed rows into an
// index.Cursor.
type mapCursor struct {
	it   kv.Iterator
	sess *lock.Session
	cur  row.Row
	id   row.RowID
	err  error
}

func (c *mapCursor) Next(ctx context.Context) bool {
	if c.sess != nil && c.sess.Txn != nil && c.sess.Txn.Closed() {
		c.err = tcerr.New(tcerr.TransactionClosed, "cursor's transaction has ended")
		return false
	}
	if !c.it.Next() {
		c.err = c.it.Err()
		return false
	}
	r, err := row.DecodeRow(c.it.Value())
	if err != nil {
		c.err = err
		return false
	}
	c.cur = r
	if id, err := decodeRowIDKey(c.it.Key()); err == nil {
		c.id = id
	}
	return true
}

func (c *mapCursor) Row() row.Row      { return c.cur }
func (c *mapCursor) RowID() row.RowID  { return c.id }
func (c *mapCursor) Err() error        { return c.err }
func (c *mapCursor) Close() error      { return c.it.Close() }
