package builder

import (
	"context"
	"testing"

	"github.com/kasuganosora/tablecore/internal/index"
	"github.com/kasuganosora/tablecore/internal/kv/memkv"
	"github.com/kasuganosora/tablecore/internal/row"
	"github.com/kasuganosora/tablecore/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPrimary(t *testing.T, ages []int64) (*index.PrimaryIndex, schema.Columns) {
	t.Helper()
	store := memkv.New()
	cols := schema.Columns{
		{ID: 0, Name: "id", Kind: row.KindInt64, PrimaryKey: true},
		{ID: 1, Name: "age", Kind: row.KindInt64},
	}
	pm, err := store.OpenMap("primary")
	require.NoError(t, err)
	primary := index.NewPrimaryIndex("primary", pm, cols, -1)

	ctx := context.Background()
	for _, age := range ages {
		rec := &index.Record{ID: row.Unassigned, Row: row.Row{row.Int64(0), row.Int64(age)}}
		require.NoError(t, primary.Add(ctx, nil, rec))
	}
	return primary, cols
}

func newTargetSecondary(t *testing.T, cols schema.Columns, primary *index.PrimaryIndex) *index.SecondaryIndex {
	t.Helper()
	store := memkv.New()
	sm, err := store.OpenMap("by_age")
	require.NoError(t, err)
	idxCols := []schema.IndexColumn{{Column: cols[1], Order: row.Asc}}
	return index.NewSecondaryIndex("by_age", sm, primary, idxCols, row.NullsLast)
}

func scanAges(t *testing.T, ctx context.Context, idx index.Index) []int64 {
	t.Helper()
	cur, err := idx.Find(ctx, nil, nil, nil)
	require.NoError(t, err)
	defer cur.Close()
	var got []int64
	for cur.Next(ctx) {
		got = append(got, cur.Row()[1].I)
	}
	require.NoError(t, cur.Err())
	return got
}

func TestBuildBuffered_SortsAndInsertsInOrder(t *testing.T) {
	ctx := context.Background()
	primary, cols := seedPrimary(t, []int64{30, 10, 25, 40, 15})
	target := newTargetSecondary(t, cols, primary)

	var progressed []int64
	b := New(memkv.New(), 1024, func(key string, current, total int64) {
		progressed = append(progressed, current)
	})
	require.NoError(t, b.BuildBuffered(ctx, nil, "t:by_age", primary, target))

	assert.Equal(t, []int64{10, 15, 25, 30, 40}, scanAges(t, ctx, target))
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, progressed)
}

func TestBuildBlockMerge_MergesAcrossBlocksInOrder(t *testing.T) {
	ctx := context.Background()
	ages := []int64{50, 10, 40, 20, 60, 5, 35, 15, 45, 25}
	primary, cols := seedPrimary(t, ages)
	target := newTargetSecondary(t, cols, primary)

	tempStore := memkv.New()
	b := New(tempStore, 6, nil) // blockSize = 3: forces multiple temp maps
	require.NoError(t, b.BuildBlockMerge(ctx, nil, "t:by_age", primary, target))

	assert.Equal(t, []int64{5, 10, 15, 20, 25, 35, 40, 45, 50, 60}, scanAges(t, ctx, target))
}

func TestBuildBlockMerge_CleansUpTempMapsOnSuccess(t *testing.T) {
	ctx := context.Background()
	primary, cols := seedPrimary(t, []int64{3, 1, 2})
	target := newTargetSecondary(t, cols, primary)

	tempStore := memkv.New()
	b := New(tempStore, 2, nil)
	require.NoError(t, b.BuildBlockMerge(ctx, nil, "t:by_age", primary, target))

	assert.False(t, tempStore.HasMap("tmp.mem.1"))
}

func TestBuildBuffered_PropagatesTargetFailure(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	cols := schema.Columns{
		{ID: 0, Name: "id", Kind: row.KindInt64, PrimaryKey: true},
		{ID: 1, Name: "email", Kind: row.KindString},
	}
	pm, err := store.OpenMap("primary")
	require.NoError(t, err)
	primary := index.NewPrimaryIndex("primary", pm, cols, -1)

	rec1 := &index.Record{ID: row.Unassigned, Row: row.Row{row.Int64(0), row.String("dup@example.com")}}
	rec2 := &index.Record{ID: row.Unassigned, Row: row.Row{row.Int64(0), row.String("dup@example.com")}}
	require.NoError(t, primary.Add(ctx, nil, rec1))
	require.NoError(t, primary.Add(ctx, nil, rec2))

	hm, err := store.OpenHashMap("by_email")
	require.NoError(t, err)
	idxCols := []schema.IndexColumn{{Column: cols[1], Order: row.Asc}}
	unique := index.NewHashIndex("by_email", hm, primary, idxCols, row.NullsLast, true)

	b := New(memkv.New(), 1024, nil)
	err = b.BuildBuffered(ctx, nil, "t:by_email", primary, unique)
	assert.Error(t, err, "building a unique index over duplicate existing rows must fail")
}
