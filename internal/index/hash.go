package index

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/kasuganosora/tablecore/internal/kv"
	"github.com/kasuganosora/tablecore/internal/lock"
	"github.com/kasuganosora/tablecore/internal/row"
	"github.com/kasuganosora/tablecore/internal/schema"
	"github.com/kasuganosora/tablecore/internal/tcerr"
)

// HashIndex is in-memory only (spec.md §4.2): equality lookup of a
// composite key against a row-id (unique) or list of row-ids
// (non-unique). Range queries are rejected outright — there is no
// ordering to scan.
type HashIndex struct {
	name    string
	hm      kv.HashMap
	primary *PrimaryIndex
	cols    []schema.IndexColumn
	nulls   row.NullsOrder
	unique  bool
}

func NewHashIndex(name string, hm kv.HashMap, primary *PrimaryIndex, cols []schema.IndexColumn, nulls row.NullsOrder, unique bool) *HashIndex {
	return &HashIndex{name: name, hm: hm, primary: primary, cols: cols, nulls: nulls, unique: unique}
}

func (h *HashIndex) Kind() Kind {
	if h.unique {
		return KindHashUnique
	}
	return KindHashNonUnique
}
func (h *HashIndex) Name() string    { return h.name }
func (h *HashIndex) MapName() string { return h.name }

func (h *HashIndex) key(r row.Row) []byte {
	return buildKey(r, h.cols, h.nulls).Encode()
}

func (h *HashIndex) Add(ctx context.Context, sess *lock.Session, rec *Record) error {
	key := h.key(rec.Row)

	if h.unique {
		existing, found, err := h.hm.Get(key)
		if err != nil {
			return tcerr.Wrap(tcerr.InternalCheck, "hash index lookup", err)
		}
		if found {
			if sess != nil && sess.Txn != nil {
				if conflict, cErr := sess.Txn.IsUncommittedConflict(ctx, key); cErr == nil && conflict {
					return tcerr.New(tcerr.ConcurrentUpdate, "hash key conflicts with an uncommitted write").
						WithDetail("index", h.name)
				}
			}
			_ = existing
			return tcerr.New(tcerr.DuplicateKey, "duplicate key in unique hash index").
				WithDetail("index", h.name)
		}
		if err := wrapInternal(h.hm.Put(key, encodeID(rec.ID))); err != nil {
			return err
		}
		registerUndo(sess, func() error { return h.hm.Remove(key) })
		return nil
	}

	existing, found, err := h.hm.Get(key)
	if err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "hash index lookup", err)
	}
	var ids []row.RowID
	if found {
		ids, err = decodeIDList(existing)
		if err != nil {
			return tcerr.Wrap(tcerr.InternalCheck, "hash index decode", err)
		}
	}
	ids = append(ids, rec.ID)
	if err := wrapInternal(h.hm.Put(key, encodeIDList(ids))); err != nil {
		return err
	}
	if found {
		prev := append([]byte(nil), existing...)
		registerUndo(sess, func() error { return h.hm.Put(key, prev) })
	} else {
		registerUndo(sess, func() error { return h.hm.Remove(key) })
	}
	return nil
}

func (h *HashIndex) Remove(ctx context.Context, sess *lock.Session, rec *Record) error {
	key := h.key(rec.Row)
	if h.unique {
		prev, found, err := h.hm.Get(key)
		if err != nil {
			return tcerr.Wrap(tcerr.InternalCheck, "hash index lookup", err)
		}
		if err := wrapInternal(h.hm.Remove(key)); err != nil {
			return err
		}
		if found {
			prevCopy := append([]byte(nil), prev...)
			registerUndo(sess, func() error { return h.hm.Put(key, prevCopy) })
		}
		return nil
	}
	existing, found, err := h.hm.Get(key)
	if err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "hash index lookup", err)
	}
	if !found {
		return nil
	}
	ids, err := decodeIDList(existing)
	if err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "hash index decode", err)
	}
	filtered := ids[:0]
	for _, id := range ids {
		if id != rec.ID {
			filtered = append(filtered, id)
		}
	}
	prevCopy := append([]byte(nil), existing...)
	if len(filtered) == 0 {
		if err := wrapInternal(h.hm.Remove(key)); err != nil {
			return err
		}
	} else if err := wrapInternal(h.hm.Put(key, encodeIDList(filtered))); err != nil {
		return err
	}
	registerUndo(sess, func() error { return h.hm.Put(key, prevCopy) })
	return nil
}

func (h *HashIndex) Truncate(ctx context.Context, sess *lock.Session) error {
	var keys, vals [][]byte
	h.hm.Range(func(k, v []byte) bool {
		keys = append(keys, append([]byte(nil), k...))
		vals = append(vals, append([]byte(nil), v...))
		return true
	})
	for _, k := range keys {
		if err := h.hm.Remove(k); err != nil {
			return tcerr.Wrap(tcerr.InternalCheck, "hash index truncate", err)
		}
	}
	registerUndo(sess, func() error {
		for i, k := range keys {
			if err := h.hm.Put(k, vals[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return nil
}

// Find supports equality lookup only: first and last must both be
// given and encode identically. Anything else — an open bound, a true
// range — is a range query and fails per spec.md §4.2.
func (h *HashIndex) Find(ctx context.Context, sess *lock.Session, first, last *row.Key) (Cursor, error) {
	if first == nil || last == nil || !bytes.Equal(first.Encode(), last.Encode()) {
		return nil, tcerr.New(tcerr.UnsupportedScan, "hash index supports equality lookup only").
			WithDetail("index", h.name)
	}
	key := first.Encode()
	v, found, err := h.hm.Get(key)
	if err != nil {
		return nil, tcerr.Wrap(tcerr.InternalCheck, "hash index lookup", err)
	}
	if !found {
		return &idListCursor{primary: h.primary, sess: sess}, nil
	}
	var ids []row.RowID
	if h.unique {
		id, derr := decodeID(v)
		if derr != nil {
			return nil, tcerr.Wrap(tcerr.InternalCheck, "hash index decode", derr)
		}
		ids = []row.RowID{id}
	} else {
		ids, err = decodeIDList(v)
		if err != nil {
			return nil, tcerr.Wrap(tcerr.InternalCheck, "hash index decode", err)
		}
	}
	return &idListCursor{ids: ids, primary: h.primary, sess: sess, idx: -1}, nil
}

func (h *HashIndex) RowCount(ctx context.Context) (int64, error) {
	return int64(h.hm.Len()), nil
}

func (h *HashIndex) RowCountApproximation(ctx context.Context) (int64, error) {
	return int64(h.hm.Len()), nil
}

func (h *HashIndex) NeedsRebuild() bool { return false }

func (h *HashIndex) CompareRows(a, b row.Row) int {
	ka := buildKey(a, h.cols, h.nulls)
	kb := buildKey(b, h.cols, h.nulls)
	return ka.Compare(kb)
}

func wrapInternal(err error) error {
	if err == nil {
		return nil
	}
	return tcerr.Wrap(tcerr.InternalCheck, "hash index store op", err)
}

func encodeID(id row.RowID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(int64(id)))
	return buf
}

func decodeID(b []byte) (row.RowID, error) {
	if len(b) != 8 {
		return row.Unassigned, tcerr.New(tcerr.InternalCheck, "malformed row-id value")
	}
	return row.RowID(int64(binary.BigEndian.Uint64(b))), nil
}

func encodeIDList(ids []row.RowID) []byte {
	buf := make([]byte, 0, 8*len(ids))
	for _, id := range ids {
		buf = append(buf, encodeID(id)...)
	}
	return buf
}

func decodeIDList(b []byte) ([]row.RowID, error) {
	if len(b)%8 != 0 {
		return nil, tcerr.New(tcerr.InternalCheck, "malformed row-id list")
	}
	ids := make([]row.RowID, 0, len(b)/8)
	for i := 0; i < len(b); i += 8 {
		id, err := decodeID(b[i : i+8])
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// idListCursor resolves a fixed list of row-ids against the primary
// index, the join-back pattern every non-clustered index uses to
// produce full rows from its key-only storage.
type idListCursor struct {
	ids     []row.RowID
	primary *PrimaryIndex
	sess    *lock.Session
	idx     int
	cur     row.Row
	err     error
}

func (c *idListCursor) Next(ctx context.Context) bool {
	if c.sess != nil && c.sess.Txn != nil && c.sess.Txn.Closed() {
		c.err = tcerr.New(tcerr.TransactionClosed, "cursor's transaction has ended")
		return false
	}
	for {
		c.idx++
		if c.idx >= len(c.ids) {
			return false
		}
		r, found, err := c.primary.GetRow(c.ids[c.idx])
		if err != nil {
			c.err = err
			return false
		}
		if !found {
			continue // referential drift: row removed after the index entry was read
		}
		c.cur = r
		return true
	}
}

func (c *idListCursor) Row() row.Row     { return c.cur }
func (c *idListCursor) RowID() row.RowID { return c.ids[c.idx] }
func (c *idListCursor) Err() error       { return c.err }
func (c *idListCursor) Close() error     { return nil }
