package table

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/tablecore/internal/kv"
	"github.com/kasuganosora/tablecore/internal/kv/memkv"
	"github.com/kasuganosora/tablecore/internal/lock"
	"github.com/kasuganosora/tablecore/internal/row"
	"github.com/kasuganosora/tablecore/internal/schema"
	"github.com/kasuganosora/tablecore/internal/tcctx"
	"github.com/kasuganosora/tablecore/internal/tcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T, cols schema.Columns) (*Table, *lock.Session) {
	t.Helper()
	ctx := tcctx.New(memkv.New())
	tbl, err := New(ctx, "widgets", cols)
	require.NoError(t, err)
	sess := lock.NewSession("s1", time.Second, kv.NewSimpleTxn(nil))
	return tbl, sess
}

func idCol() schema.Columns {
	return schema.Columns{
		{ID: 0, Name: "id", Kind: row.KindInt64, PrimaryKey: true},
		{ID: 1, Name: "name", Kind: row.KindString},
	}
}

func TestTable_New_RejectsNullablePrimaryKey(t *testing.T) {
	ctx := tcctx.New(memkv.New())
	cols := schema.Columns{{ID: 0, Name: "id", Kind: row.KindInt64, PrimaryKey: true, Nullable: true}}
	_, err := New(ctx, "bad", cols)
	require.Error(t, err)
	assert.True(t, tcerr.Of(err, tcerr.ColumnNotNullable))
}

func TestTable_AddRow_GetRow_RoundTrip(t *testing.T) {
	ctx := context.Background()
	tbl, sess := newFixture(t, idCol())

	id, err := tbl.AddRow(ctx, sess, row.Row{row.Int64(0), row.String("bolt")})
	require.NoError(t, err)

	got, found, err := tbl.GetRow(id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "bolt", got[1].S)
	assert.EqualValues(t, 1, tbl.GetMaxDataModificationId())
}

func TestTable_RemoveRow(t *testing.T) {
	ctx := context.Background()
	tbl, sess := newFixture(t, idCol())

	id, err := tbl.AddRow(ctx, sess, row.Row{row.Int64(0), row.String("nut")})
	require.NoError(t, err)
	require.NoError(t, tbl.RemoveRow(ctx, sess, id))

	_, found, err := tbl.GetRow(id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTable_Truncate(t *testing.T) {
	ctx := context.Background()
	tbl, sess := newFixture(t, idCol())

	for i := 0; i < 3; i++ {
		_, err := tbl.AddRow(ctx, sess, row.Row{row.Int64(int64(i + 1)), row.String("x")})
		require.NoError(t, err)
	}
	require.NoError(t, tbl.Truncate(ctx, sess))

	count, err := tbl.GetRowCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestTable_AddIndex_PromotedPrimaryKeyBecomesDelegate(t *testing.T) {
	ctx := context.Background()
	tbl, sess := newFixture(t, idCol())

	cols := idCol()
	spec := AddIndexSpec{
		Name:    "PRIMARY",
		Columns: []schema.IndexColumn{{Column: cols[0], Order: row.Asc}},
		Unique:  true,
	}
	require.NoError(t, tbl.AddIndex(ctx, sess, spec))

	idx, ok := tbl.GetUniqueIndex("PRIMARY")
	require.True(t, ok)
	t.Run("is a delegate with no backing map of its own", func(t *testing.T) {
		assert.Equal(t, tbl.GetScanIndex().MapName(), idx.MapName())
	})

	t.Run("rows still insert once the PK delegate index is registered", func(t *testing.T) {
		id, err := tbl.AddRow(ctx, sess, row.Row{row.Int64(0), row.String("bolt")})
		require.NoError(t, err)
		got, found, err := tbl.GetRow(id)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "bolt", got[1].S)

		count, err := idx.RowCount(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})
}

func TestTable_AddIndex_UniqueHashRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	tbl, sess := newFixture(t, idCol())

	_, err := tbl.AddRow(ctx, sess, row.Row{row.Int64(1), row.String("dup")})
	require.NoError(t, err)
	_, err = tbl.AddRow(ctx, sess, row.Row{row.Int64(2), row.String("dup")})
	require.NoError(t, err)

	cols := idCol()
	spec := AddIndexSpec{
		Name:    "by_name",
		Columns: []schema.IndexColumn{{Column: cols[1], Order: row.Asc}},
		Unique:  true,
		UseHash: true,
	}
	err = tbl.AddIndex(ctx, sess, spec)
	require.Error(t, err, "building a unique hash index over existing duplicate values must fail")
}

func TestTable_AddIndex_RebuildsOverExistingRows(t *testing.T) {
	ctx := context.Background()
	tbl, sess := newFixture(t, idCol())

	names := []string{"c", "a", "b"}
	for i, n := range names {
		_, err := tbl.AddRow(ctx, sess, row.Row{row.Int64(int64(i + 1)), row.String(n)})
		require.NoError(t, err)
	}

	cols := idCol()
	spec := AddIndexSpec{
		Name:    "by_name",
		Columns: []schema.IndexColumn{{Column: cols[1], Order: row.Asc}},
	}
	require.NoError(t, tbl.AddIndex(ctx, sess, spec))

	idxs := tbl.GetIndexes()
	require.Len(t, idxs, 1)
	count, err := idxs[0].RowCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
	assert.False(t, idxs[0].NeedsRebuild())
}

func TestTable_RemoveIndex(t *testing.T) {
	ctx := context.Background()
	tbl, sess := newFixture(t, idCol())

	cols := idCol()
	spec := AddIndexSpec{
		Name:    "by_name",
		Columns: []schema.IndexColumn{{Column: cols[1], Order: row.Asc}},
	}
	require.NoError(t, tbl.AddIndex(ctx, sess, spec))
	require.NoError(t, tbl.RemoveIndex(ctx, sess, "by_name"))
	assert.Empty(t, tbl.GetIndexes())
}

type alwaysUnreferenced struct{}

func (alwaysUnreferenced) ReferencedBy(string) bool { return false }

type alwaysReferenced struct{}

func (alwaysReferenced) ReferencedBy(string) bool { return true }

func TestTable_CanTruncateAndCanDrop(t *testing.T) {
	tbl, _ := newFixture(t, idCol())
	assert.True(t, tbl.CanTruncate(alwaysUnreferenced{}))
	assert.False(t, tbl.CanTruncate(alwaysReferenced{}))
	assert.True(t, tbl.CanDrop(alwaysUnreferenced{}))
	assert.False(t, tbl.CanDrop(alwaysReferenced{}))
}

func TestTable_RemoveChildrenAndResources_OrdersSecondariesBeforePrimary(t *testing.T) {
	ctx := context.Background()
	tbl, sess := newFixture(t, idCol())

	cols := idCol()
	spec := AddIndexSpec{
		Name:    "by_name",
		Columns: []schema.IndexColumn{{Column: cols[1], Order: row.Asc}},
	}
	require.NoError(t, tbl.AddIndex(ctx, sess, spec))
	require.NoError(t, tbl.RemoveChildrenAndResources(ctx, sess))
	assert.Empty(t, tbl.GetIndexes())
}

func TestTable_LockUnlock_ExclusiveExcludesConcurrentWriter(t *testing.T) {
	ctx := context.Background()
	tbl, sess1 := newFixture(t, idCol())
	sess2 := lock.NewSession("s2", 50*time.Millisecond, kv.NewSimpleTxn(nil))

	// force=true bypasses the MVCC fast path so this exercises a real
	// exclusive table lock rather than MVCC's shared-lock-on-write.
	require.NoError(t, tbl.Lock(ctx, sess1, true, true))
	err := tbl.Lock(ctx, sess2, true, true)
	require.Error(t, err)
	assert.True(t, tcerr.Of(err, tcerr.LockTimeout))

	tbl.Unlock(sess1)
	require.NoError(t, tbl.Lock(ctx, sess2, true, true))
	tbl.Unlock(sess2)
}

func TestTable_Commit(t *testing.T) {
	ctx := context.Background()
	tbl, sess := newFixture(t, idCol())
	require.NoError(t, tbl.Lock(ctx, sess, true, false))
	_, err := tbl.AddRow(ctx, sess, row.Row{row.Int64(0), row.String("x")})
	require.NoError(t, err)
	require.NoError(t, tbl.Commit(sess))
	assert.True(t, sess.Txn.Closed())
}
