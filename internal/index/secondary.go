package index

import (
	"context"

	"github.com/kasuganosora/tablecore/internal/kv"
	"github.com/kasuganosora/tablecore/internal/lock"
	"github.com/kasuganosora/tablecore/internal/row"
	"github.com/kasuganosora/tablecore/internal/schema"
	"github.com/kasuganosora/tablecore/internal/tcerr"
)

// SecondaryIndex stores composite_key -> row-id in an ordered map
// (spec.md §4.2). The physical key is the composite key's own
// encoding followed by the row-id, so multiple rows sharing the same
// composite key (a non-unique secondary index) each get a distinct
// physical slot while a half-open [first, last) scan on the composite
// key's encoding alone still bounds the right set of entries.
type SecondaryIndex struct {
	name    string
	store   kv.OrderedMap
	primary *PrimaryIndex
	cols    []schema.IndexColumn
	nulls   row.NullsOrder
	rebuild bool
}

func NewSecondaryIndex(name string, store kv.OrderedMap, primary *PrimaryIndex, cols []schema.IndexColumn, nulls row.NullsOrder) *SecondaryIndex {
	return &SecondaryIndex{name: name, store: store, primary: primary, cols: cols, nulls: nulls}
}

func (s *SecondaryIndex) Kind() Kind      { return KindSecondary }
func (s *SecondaryIndex) Name() string    { return s.name }
func (s *SecondaryIndex) MapName() string { return s.name }

func (s *SecondaryIndex) key(rec *Record) []byte {
	return append(buildKey(rec.Row, s.cols, s.nulls).Encode(), rowIDKey(rec.ID)...)
}

func (s *SecondaryIndex) Add(ctx context.Context, sess *lock.Session, rec *Record) error {
	key := s.key(rec)
	if err := s.store.Put(key, encodeID(rec.ID)); err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "secondary index put", err)
	}
	registerUndo(sess, func() error { return s.store.Remove(key) })
	return nil
}

func (s *SecondaryIndex) Remove(ctx context.Context, sess *lock.Session, rec *Record) error {
	key := s.key(rec)
	prev, found, err := s.store.Get(key)
	if err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "secondary index remove lookup", err)
	}
	if err := s.store.Remove(key); err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "secondary index remove", err)
	}
	if found {
		prevCopy := append([]byte(nil), prev...)
		registerUndo(sess, func() error { return s.store.Put(key, prevCopy) })
	}
	return nil
}

func (s *SecondaryIndex) Truncate(ctx context.Context, sess *lock.Session) error {
	it, err := s.store.Scan(nil, nil)
	if err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "secondary index truncate scan", err)
	}
	defer it.Close()
	var keys, vals [][]byte
	for it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
		vals = append(vals, append([]byte(nil), it.Value()...))
	}
	if err := it.Err(); err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "secondary index truncate scan", err)
	}
	for _, k := range keys {
		if err := s.store.Remove(k); err != nil {
			return tcerr.Wrap(tcerr.InternalCheck, "secondary index truncate remove", err)
		}
	}
	registerUndo(sess, func() error {
		for i, k := range keys {
			if err := s.store.Put(k, vals[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return nil
}

func (s *SecondaryIndex) Find(ctx context.Context, sess *lock.Session, first, last *row.Key) (Cursor, error) {
	var lo, hi []byte
	if first != nil {
		lo = first.Encode()
	}
	if last != nil {
		hi = last.Encode()
	}
	it, err := s.store.Scan(lo, hi)
	if err != nil {
		return nil, tcerr.Wrap(tcerr.InternalCheck, "secondary index scan", err)
	}
	return &secondaryCursor{it: it, primary: s.primary, sess: sess}, nil
}

func (s *SecondaryIndex) RowCount(ctx context.Context) (int64, error) {
	return s.store.ApproxSize(), nil
}

func (s *SecondaryIndex) RowCountApproximation(ctx context.Context) (int64, error) {
	return s.store.ApproxSize(), nil
}

func (s *SecondaryIndex) NeedsRebuild() bool     { return s.rebuild }
func (s *SecondaryIndex) MarkNeedsRebuild(v bool) { s.rebuild = v }

func (s *SecondaryIndex) CompareRows(a, b row.Row) int {
	ka := buildKey(a, s.cols, s.nulls)
	kb := buildKey(b, s.cols, s.nulls)
	return ka.Compare(kb)
}

type secondaryCursor struct {
	it      kv.Iterator
	primary *PrimaryIndex
	sess    *lock.Session
	cur     row.Row
	id      row.RowID
	err     error
}

func (c *secondaryCursor) Next(ctx context.Context) bool {
	if c.sess != nil && c.sess.Txn != nil && c.sess.Txn.Closed() {
		c.err = tcerr.New(tcerr.TransactionClosed, "cursor's transaction has ended")
		return false
	}
	for {
		if !c.it.Next() {
			c.err = c.it.Err()
			return false
		}
		id, derr := decodeID(c.it.Value())
		if derr != nil {
			c.err = derr
			return false
		}
		r, found, err := c.primary.GetRow(id)
		if err != nil {
			c.err = err
			return false
		}
		if !found {
			continue
		}
		c.id = id
		c.cur = r
		return true
	}
}

func (c *secondaryCursor) Row() row.Row     { return c.cur }
func (c *secondaryCursor) RowID() row.RowID { return c.id }
func (c *secondaryCursor) Err() error       { return c.err }
func (c *secondaryCursor) Close() error     { return c.it.Close() }
