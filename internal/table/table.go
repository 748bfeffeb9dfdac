package table

import (
	"context"
	"sync"

	"github.com/kasuganosora/tablecore/internal/analyze"
	"github.com/kasuganosora/tablecore/internal/builder"
	"github.com/kasuganosora/tablecore/internal/index"
	"github.com/kasuganosora/tablecore/internal/lock"
	"github.com/kasuganosora/tablecore/internal/mutator"
	"github.com/kasuganosora/tablecore/internal/row"
	"github.com/kasuganosora/tablecore/internal/schema"
	"github.com/kasuganosora/tablecore/internal/tcctx"
	"github.com/kasuganosora/tablecore/internal/tcerr"
)

// Table is the facade of spec.md §4.7: one per table, composing the
// lock manager, the primary and secondary indexes, the transactional
// mutator, and the analyze tracker behind the operation set DDL/DML
// layers (out of scope, §1) drive.
type Table struct {
	ctx     *tcctx.Context
	name    string
	columns schema.Columns
	mainCol int // promoted main-column ordinal, or -1

	lockMgr *lock.Manager

	mu         sync.Mutex
	primary    *index.PrimaryIndex
	indexes    map[string]index.Index
	indexOrder []string // insertion order; rebuildMutator applies indexes in this order (spec.md §4.4)
	mut        *mutator.Mutator
	tracker    *analyze.Tracker
	lastModID  int64
}

// New is spec.md's `init`: it opens the primary map, validates the
// primary-key column, and decides whether that column is promotable
// (spec.md §4.2's (a)/(b) promotion condition — here simplified to "the
// table has no pre-existing primary map", since a freshly initialized
// table is always case (a), empty).
func New(ctx *tcctx.Context, name string, cols schema.Columns) (*Table, error) {
	for _, c := range cols {
		if c.PrimaryKey && c.Nullable {
			return nil, tcerr.New(tcerr.ColumnNotNullable, "primary-key column must not be nullable").
				WithDetail("column", c.Name)
		}
	}

	primaryMapName := name + ".primary"
	mainCol := -1
	if _, ord, ok := promotableMainColumn(cols); ok && !ctx.Store.HasMap(primaryMapName) {
		mainCol = ord
	}

	pm, err := ctx.Store.OpenMap(primaryMapName)
	if err != nil {
		return nil, tcerr.Wrap(tcerr.InternalCheck, "table init: open primary map", err)
	}
	primary := index.NewPrimaryIndex(primaryMapName, pm, cols, mainCol)

	t := &Table{
		ctx:     ctx,
		name:    name,
		columns: cols,
		mainCol: mainCol,
		lockMgr: ctx.NewLockManager(),
		primary: primary,
		indexes: make(map[string]index.Index),
	}
	t.tracker = analyze.New(ctx.Settings.AnalyzeAuto, ctx.Settings.AnalyzeSample, t.sample)
	t.rebuildMutator()
	return t, nil
}

func (t *Table) rebuildMutator() {
	idxs := make([]index.Index, 0, 1+len(t.indexOrder))
	idxs = append(idxs, t.primary)
	for _, name := range t.indexOrder {
		idxs = append(idxs, t.indexes[name])
	}
	t.mut = mutator.New(idxs)
}

func (t *Table) sample(n int64) {
	if t.ctx.Logger != nil {
		t.ctx.Logger.Printf("analyze: table %s sampling %d rows", t.name, n)
	}
}

func (t *Table) buildProgress(key string, current, total int64) {
	if t.ctx.Logger != nil {
		t.ctx.Logger.Printf("rebuild %s: %d/%d rows", key, current, total)
	}
}

func (t *Table) onCommitted() {
	t.mu.Lock()
	t.lastModID++
	t.mu.Unlock()
	t.tracker.RecordChange()
}

func (t *Table) onTruncated() {
	t.mu.Lock()
	t.lastModID++
	t.mu.Unlock()
	t.tracker.Reset()
}

// Lock acquires the table lock for a statement (spec.md §4.3), routed
// through the MVCC/read-committed fast paths before falling to a real
// wait. force requests a real lock even when MVCC would otherwise skip
// it (a "FOR UPDATE" read).
func (t *Table) Lock(ctx context.Context, sess *lock.Session, write, force bool) error {
	return t.lockMgr.LockForOp(ctx, sess, t.name, write, force)
}

// Unlock releases whatever hold sess has on this table.
func (t *Table) Unlock(sess *lock.Session) {
	t.lockMgr.Release(sess, t.name)
}

// AddRow is spec.md's addRow: assigns a row-id via the primary index,
// adds the row to every index under one savepoint, and bumps
// last_modification_id plus the analyze counter on success.
func (t *Table) AddRow(ctx context.Context, sess *lock.Session, r row.Row) (row.RowID, error) {
	t.mu.Lock()
	mut := t.mut
	t.mu.Unlock()

	rec := &index.Record{ID: row.Unassigned, Row: r}
	if err := mut.AddRow(ctx, sess, rec, t.onCommitted); err != nil {
		return row.Unassigned, err
	}
	return rec.ID, nil
}

// RemoveRow is spec.md's removeRow: looks the row up by id so every
// index's Remove has the column values it needs to find its own entry,
// then removes from every index in reverse order under one savepoint.
func (t *Table) RemoveRow(ctx context.Context, sess *lock.Session, id row.RowID) error {
	r, found, err := t.primary.GetRow(id)
	if err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "table removeRow: lookup", err)
	}
	if !found {
		return tcerr.New(tcerr.InternalCheck, "table removeRow: row not found").
			WithDetail("rowID", int64(id))
	}

	t.mu.Lock()
	mut := t.mut
	t.mu.Unlock()

	return mut.RemoveRow(ctx, sess, &index.Record{ID: id, Row: r}, t.onCommitted)
}

// Truncate is spec.md's truncate: empties every index under one
// savepoint and resets changesSinceAnalyze without touching nextAnalyze.
func (t *Table) Truncate(ctx context.Context, sess *lock.Session) error {
	t.mu.Lock()
	mut := t.mut
	t.mu.Unlock()
	return mut.Truncate(ctx, sess, t.onTruncated)
}

// AddIndex is spec.md's addIndex: applies the §4.2 selection policy,
// allocates the backing map (none, for a delegate), and — when the
// table is already populated — rebuilds the new index's contents via
// internal/builder before making it visible to the mutator. A failed
// rebuild leaves the schema name free and no partial index behind.
func (t *Table) AddIndex(ctx context.Context, sess *lock.Session, spec AddIndexSpec) error {
	kind := selectKind(spec, t.mainCol >= 0)

	var newIdx index.Index
	switch kind {
	case index.KindDelegate:
		newIdx = index.NewDelegateIndex(spec.Name, t.primary, t.mainCol)
	case index.KindHashUnique, index.KindHashNonUnique:
		mapName := t.name + ".index." + spec.Name
		hm, err := t.ctx.Store.OpenHashMap(mapName)
		if err != nil {
			return tcerr.Wrap(tcerr.InternalCheck, "addIndex: open hash map", err)
		}
		newIdx = index.NewHashIndex(mapName, hm, t.primary, spec.Columns, row.NullsLast, kind == index.KindHashUnique)
	default:
		mapName := t.name + ".index." + spec.Name
		om, err := t.ctx.Store.OpenMap(mapName)
		if err != nil {
			return tcerr.Wrap(tcerr.InternalCheck, "addIndex: open ordered map", err)
		}
		newIdx = index.NewSecondaryIndex(mapName, om, t.primary, spec.Columns, row.NullsLast)
	}

	if kind != index.KindDelegate {
		count, err := t.primary.RowCount(ctx)
		if err != nil {
			return tcerr.Wrap(tcerr.InternalCheck, "addIndex: row count", err)
		}
		if count > 0 {
			type rebuildFlagger interface{ MarkNeedsRebuild(bool) }
			if rf, ok := newIdx.(rebuildFlagger); ok {
				rf.MarkNeedsRebuild(true)
			}
			b := builder.New(t.ctx.Store, t.ctx.Settings.MaxMemoryRows, t.buildProgress)
			key := t.name + ":" + spec.Name
			if err := b.Build(ctx, sess, key, t.primary, newIdx, t.ctx.Store.IsMemoryBacked()); err != nil {
				if rmErr := t.ctx.Store.RemoveMap(newIdx.MapName()); rmErr != nil && t.ctx.Logger != nil {
					t.ctx.Logger.Printf("addIndex %s: cleanup of failed rebuild's map also failed: %v", key, rmErr)
				}
				return err
			}
			if rf, ok := newIdx.(rebuildFlagger); ok {
				rf.MarkNeedsRebuild(false)
			}
		}
	}

	t.mu.Lock()
	if _, exists := t.indexes[spec.Name]; !exists {
		t.indexOrder = append(t.indexOrder, spec.Name)
	}
	t.indexes[spec.Name] = newIdx
	t.rebuildMutator()
	t.mu.Unlock()
	return nil
}

// RemoveIndex is spec.md's removeIndex: drops the index from the
// mutator's rotation first, then releases its backing map (a delegate
// has none to release).
func (t *Table) RemoveIndex(ctx context.Context, sess *lock.Session, name string) error {
	t.mu.Lock()
	idx, ok := t.indexes[name]
	if !ok {
		t.mu.Unlock()
		return tcerr.New(tcerr.InternalCheck, "removeIndex: no such index").WithDetail("index", name)
	}
	delete(t.indexes, name)
	for i, n := range t.indexOrder {
		if n == name {
			t.indexOrder = append(t.indexOrder[:i], t.indexOrder[i+1:]...)
			break
		}
	}
	t.rebuildMutator()
	t.mu.Unlock()

	if idx.Kind() == index.KindDelegate {
		return nil
	}
	if err := t.ctx.Store.RemoveMap(idx.MapName()); err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "removeIndex: release backing map", err)
	}
	return nil
}

// GetRow is spec.md's getRow(key): a direct lookup by row-id through
// the primary index, the fastest path available.
func (t *Table) GetRow(id row.RowID) (row.Row, bool, error) {
	return t.primary.GetRow(id)
}

// GetScanIndex returns the primary clustered index, the scan index of
// spec.md's GLOSSARY.
func (t *Table) GetScanIndex() index.Index { return t.primary }

// GetUniqueIndex returns a unique-capable index by name (delegate or
// unique hash), or false if name does not name one.
func (t *Table) GetUniqueIndex(name string) (index.Index, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.indexes[name]
	if !ok {
		return nil, false
	}
	if idx.Kind() == index.KindDelegate || idx.Kind() == index.KindHashUnique {
		return idx, true
	}
	return nil, false
}

// GetIndexes lists every schema-visible index (not including the
// primary, which GetScanIndex already exposes).
func (t *Table) GetIndexes() []index.Index {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]index.Index, 0, len(t.indexOrder))
	for _, name := range t.indexOrder {
		out = append(out, t.indexes[name])
	}
	return out
}

func (t *Table) GetRowCount(ctx context.Context) (int64, error) {
	return t.primary.RowCount(ctx)
}

func (t *Table) GetRowCountApproximation(ctx context.Context) (int64, error) {
	return t.primary.RowCountApproximation(ctx)
}

func (t *Table) GetMaxDataModificationId() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastModID
}

// CanTruncate returns false iff any referential constraint points at
// this table (spec.md §4.7's closing sentence).
func (t *Table) CanTruncate(view ConstraintView) bool {
	return !view.ReferencedBy(t.name)
}

// CanDrop applies the same referential check as CanTruncate.
func (t *Table) CanDrop(view ConstraintView) bool {
	return !view.ReferencedBy(t.name)
}

// RemoveChildrenAndResources drops every schema-visible secondary
// index, then the primary, in that order (spec.md §5: "schema-visible
// secondaries first ... primary last"). The meta-catalog entry itself
// belongs to the schema layer (out of scope) and is not touched here.
func (t *Table) RemoveChildrenAndResources(ctx context.Context, sess *lock.Session) error {
	t.mu.Lock()
	names := make([]string, len(t.indexOrder))
	copy(names, t.indexOrder)
	t.mu.Unlock()

	for _, n := range names {
		if err := t.RemoveIndex(ctx, sess, n); err != nil {
			return err
		}
	}
	if err := t.ctx.Store.RemoveMap(t.primary.MapName()); err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "drop table: release primary map", err)
	}
	return nil
}

// Commit is spec.md's commit: commits the session's transaction and
// releases this table's lock. The session never opens its own
// transaction (§6); the table only drives the handle it was given.
func (t *Table) Commit(sess *lock.Session) error {
	if err := sess.Txn.Commit(); err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "table commit", err)
	}
	t.lockMgr.Release(sess, t.name)
	return nil
}
