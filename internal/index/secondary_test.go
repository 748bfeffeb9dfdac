package index

import (
	"context"
	"testing"

	"github.com/kasuganosora/tablecore/internal/kv/memkv"
	"github.com/kasuganosora/tablecore/internal/row"
	"github.com/kasuganosora/tablecore/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSecondaryFixture(t *testing.T) (*PrimaryIndex, *SecondaryIndex) {
	t.Helper()
	store := memkv.New()
	pm, err := store.OpenMap("primary")
	require.NoError(t, err)
	cols := schema.Columns{
		{ID: 0, Name: "id", Kind: row.KindInt64, PrimaryKey: true},
		{ID: 1, Name: "age", Kind: row.KindInt64},
	}
	primary := NewPrimaryIndex("primary", pm, cols, -1)

	sm, err := store.OpenMap("by_age")
	require.NoError(t, err)
	idxCols := []schema.IndexColumn{{Column: cols[1], Order: row.Asc}}
	s := NewSecondaryIndex("by_age", sm, primary, idxCols, row.NullsLast)
	return primary, s
}

func TestSecondaryIndex_RangeScanOrdered(t *testing.T) {
	ctx := context.Background()
	primary, s := newSecondaryFixture(t)

	ages := []int64{30, 10, 25, 40, 15}
	for _, age := range ages {
		rec := &Record{ID: row.Unassigned, Row: row.Row{row.Int64(0), row.Int64(age)}}
		require.NoError(t, primary.Add(ctx, nil, rec))
		require.NoError(t, s.Add(ctx, nil, rec))
	}

	lo := row.NewKey([]row.Value{row.Int64(15)}, row.Asc, row.NullsLast)
	hi := row.NewKey([]row.Value{row.Int64(35)}, row.Asc, row.NullsLast)
	cur, err := s.Find(ctx, nil, lo, hi)
	require.NoError(t, err)
	defer cur.Close()

	var got []int64
	for cur.Next(ctx) {
		got = append(got, cur.Row()[1].I)
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, []int64{15, 25, 30}, got)
}

func TestSecondaryIndex_RemoveDropsEntry(t *testing.T) {
	ctx := context.Background()
	primary, s := newSecondaryFixture(t)

	rec := &Record{ID: row.Unassigned, Row: row.Row{row.Int64(0), row.Int64(20)}}
	require.NoError(t, primary.Add(ctx, nil, rec))
	require.NoError(t, s.Add(ctx, nil, rec))

	require.NoError(t, s.Remove(ctx, nil, rec))

	cur, err := s.Find(ctx, nil, nil, nil)
	require.NoError(t, err)
	defer cur.Close()
	assert.False(t, cur.Next(ctx))
}

func TestSecondaryIndex_CompareRows(t *testing.T) {
	_, s := newSecondaryFixture(t)
	a := row.Row{row.Int64(0), row.Int64(10)}
	b := row.Row{row.Int64(0), row.Int64(20)}
	assert.True(t, s.CompareRows(a, b) < 0)
	assert.True(t, s.CompareRows(b, a) > 0)
}
