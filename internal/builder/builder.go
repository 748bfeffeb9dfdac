// Package builder implements the index builder of spec.md §4.5: a
// buffered (in-RAM sort) strategy for memory-backed tables and a
// block-merge (external sort) strategy for disk-backed ones, selected
// by Store.IsMemoryBacked(). Grounded on the teacher's sequence-
// allocation pattern in pkg/resource/badger/transaction.go
// (SequenceManager) for temporary-map naming and its stream/iterate
// idiom in pkg/resource/badger/index.go.
package builder

import (
	"container/heap"
	"context"
	"encoding/binary"
	"sort"

	"github.com/kasuganosora/tablecore/internal/index"
	"github.com/kasuganosora/tablecore/internal/kv"
	"github.com/kasuganosora/tablecore/internal/lock"
	"github.com/kasuganosora/tablecore/internal/row"
	"github.com/kasuganosora/tablecore/internal/tcerr"
)

// Progress is the listener callback keyed "table:index" with
// (current, total) row counters (spec.md §4.5).
type Progress func(key string, current, total int64)

// Builder rebuilds one index's contents from a source index's full
// scan. TempStore provides the scratch maps the block-merge strategy
// spills to; it is typically a disk-backed kv.Store even when the
// table's own primary storage is also disk-backed, since source and
// target already own their storage — TempStore exists purely for
// merge-sort runs.
type Builder struct {
	TempStore     kv.Store
	MaxMemoryRows int64
	Progress      Progress
}

func New(tempStore kv.Store, maxMemoryRows int64, progress Progress) *Builder {
	return &Builder{TempStore: tempStore, MaxMemoryRows: maxMemoryRows, Progress: progress}
}

// Build selects BuildBuffered or BuildBlockMerge by whether the
// target's own store is memory-backed; targetMemoryBacked is supplied
// by the caller (the table facade knows which kv.Store backs the target).
func (b *Builder) Build(ctx context.Context, sess *lock.Session, key string, source, target index.Index, targetMemoryBacked bool) error {
	if targetMemoryBacked {
		return b.BuildBuffered(ctx, sess, key, source, target)
	}
	return b.BuildBlockMerge(ctx, sess, key, source, target)
}

// BuildBuffered reads the entire source scan into RAM, sorts by the
// target's own row comparator, and inserts in order.
func (b *Builder) BuildBuffered(ctx context.Context, sess *lock.Session, key string, source, target index.Index) error {
	cur, err := source.Find(ctx, sess, nil, nil)
	if err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "builder: source scan", err)
	}
	defer cur.Close()

	var recs []*index.Record
	for cur.Next(ctx) {
		recs = append(recs, &index.Record{ID: cur.RowID(), Row: cur.Row().Clone()})
	}
	if err := cur.Err(); err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "builder: source scan", err)
	}

	sort.Slice(recs, func(i, j int) bool {
		return target.CompareRows(recs[i].Row, recs[j].Row) < 0
	})

	total := int64(len(recs))
	for i, rec := range recs {
		if err := target.Add(ctx, sess, rec); err != nil {
			return b.fail(ctx, sess, target, err, nil)
		}
		b.report(key, int64(i+1), total)
	}
	return nil
}

// BuildBlockMerge streams the source scan, sorting bounded buffers of
// size MaxMemoryRows/2 into freshly allocated temporary maps, then
// performs a multi-way merge of those blocks into target (spec.md §4.5).
func (b *Builder) BuildBlockMerge(ctx context.Context, sess *lock.Session, key string, source, target index.Index) error {
	blockSize := b.MaxMemoryRows / 2
	if blockSize <= 0 {
		blockSize = 1024
	}

	cur, err := source.Find(ctx, sess, nil, nil)
	if err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "builder: source scan", err)
	}
	defer cur.Close()

	var tempMaps []string // ledger: every temp map allocated, so a failure can release all of them
	var buf []*index.Record
	total, err := source.RowCount(ctx)
	if err != nil {
		total = 0
	}
	var done int64

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		sort.Slice(buf, func(i, j int) bool {
			return target.CompareRows(buf[i].Row, buf[j].Row) < 0
		})
		name := b.TempStore.NextTemporaryMapName()
		om, err := b.TempStore.OpenMap(name)
		if err != nil {
			return tcerr.Wrap(tcerr.InternalCheck, "builder: open temp map", err)
		}
		tempMaps = append(tempMaps, name)
		for i, rec := range buf {
			if err := om.Put(seqKey(int64(i)), encodeRecord(rec)); err != nil {
				return tcerr.Wrap(tcerr.InternalCheck, "builder: write temp block", err)
			}
		}
		buf = buf[:0]
		return nil
	}

	for cur.Next(ctx) {
		buf = append(buf, &index.Record{ID: cur.RowID(), Row: cur.Row().Clone()})
		if int64(len(buf)) >= blockSize {
			if err := flush(); err != nil {
				return b.fail(ctx, sess, target, err, tempMaps)
			}
		}
	}
	if err := cur.Err(); err != nil {
		return b.fail(ctx, sess, target, tcerr.Wrap(tcerr.InternalCheck, "builder: source scan", err), tempMaps)
	}
	if err := flush(); err != nil {
		return b.fail(ctx, sess, target, err, tempMaps)
	}

	if err := b.mergeInto(ctx, sess, key, target, tempMaps, &done, total); err != nil {
		return b.fail(ctx, sess, target, err, tempMaps)
	}

	for _, name := range tempMaps {
		_ = b.TempStore.RemoveMap(name) // scratch storage; a stray leftover costs space, not correctness
	}
	return nil
}

func (b *Builder) mergeInto(ctx context.Context, sess *lock.Session, key string, target index.Index, tempMaps []string, done *int64, total int64) error {
	h := &mergeHeap{cmp: target.CompareRows}
	var iters []kv.Iterator
	defer func() {
		for _, it := range iters {
			it.Close()
		}
	}()

	for _, name := range tempMaps {
		om, err := b.TempStore.OpenMap(name)
		if err != nil {
			return tcerr.Wrap(tcerr.InternalCheck, "builder: reopen temp map", err)
		}
		it, err := om.Scan(nil, nil)
		if err != nil {
			return tcerr.Wrap(tcerr.InternalCheck, "builder: scan temp map", err)
		}
		iters = append(iters, it)
		src, ok, err := nextRecord(it)
		if err != nil {
			return err
		}
		if ok {
			heap.Push(h, src)
		}
	}

	for h.Len() > 0 {
		top := heap.Pop(h).(*mergeSource)
		if err := target.Add(ctx, sess, top.rec); err != nil {
			return err
		}
		*done++
		b.report(key, *done, total)
		next, ok, err := nextRecord(top.it)
		if err != nil {
			return err
		}
		if ok {
			heap.Push(h, next)
		}
	}
	return nil
}

func (b *Builder) fail(ctx context.Context, sess *lock.Session, target index.Index, cause error, tempMaps []string) error {
	// On rebuild failure the target is truncated and every temporary
	// map is removed; errors from this cleanup are discarded and the
	// original cause is returned. Dropping the target's own map and
	// freeing its name is left to the caller (table.AddIndex).
	if err := target.Truncate(ctx, sess); err != nil {
		// best-effort: the cause below still wins.
		_ = err
	}
	for _, name := range tempMaps {
		_ = b.TempStore.RemoveMap(name)
	}
	return cause
}

func (b *Builder) report(key string, current, total int64) {
	if b.Progress != nil {
		b.Progress(key, current, total)
	}
}

func seqKey(n int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

func encodeRecord(rec *index.Record) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(int64(rec.ID)))
	return append(buf, row.EncodeRow(rec.Row)...)
}

func decodeRecord(b []byte) (*index.Record, error) {
	if len(b) < 8 {
		return nil, tcerr.New(tcerr.InternalCheck, "builder: malformed temp block entry")
	}
	id := row.RowID(int64(binary.BigEndian.Uint64(b[:8])))
	r, err := row.DecodeRow(b[8:])
	if err != nil {
		return nil, tcerr.Wrap(tcerr.InternalCheck, "builder: decode temp block entry", err)
	}
	return &index.Record{ID: id, Row: r}, nil
}

type mergeSource struct {
	it  kv.Iterator
	rec *index.Record
}

func nextRecord(it kv.Iterator) (*mergeSource, bool, error) {
	if !it.Next() {
		return nil, false, nil
	}
	rec, err := decodeRecord(it.Value())
	if err != nil {
		return nil, false, err
	}
	return &mergeSource{it: it, rec: rec}, true, nil
}

// mergeHeap is a container/heap min-heap over one "current record" per
// block, ordered by the target index's own comparator — the multi-way
// merge step of the block-merge strategy.
type mergeHeap struct {
	items []*mergeSource
	cmp   func(a, b row.Row) int
}

func (h *mergeHeap) Len() int { return len(h.items) }
func (h *mergeHeap) Less(i, j int) bool {
	return h.cmp(h.items[i].rec.Row, h.items[j].rec.Row) < 0
}
func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x any)    { h.items = append(h.items, x.(*mergeSource)) }
func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
