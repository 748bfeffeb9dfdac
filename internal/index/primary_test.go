package index

import (
	"context"
	"testing"

	"github.com/kasuganosora/tablecore/internal/kv/memkv"
	"github.com/kasuganosora/tablecore/internal/row"
	"github.com/kasuganosora/tablecore/internal/schema"
	"github.com/kasuganosora/tablecore/internal/tcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPrimary(t *testing.T, mainCol int) *PrimaryIndex {
	t.Helper()
	store := memkv.New()
	om, err := store.OpenMap("primary")
	require.NoError(t, err)
	cols := schema.Columns{
		{ID: 0, Name: "id", Kind: row.KindInt64, PrimaryKey: true},
		{ID: 1, Name: "name", Kind: row.KindString},
	}
	return NewPrimaryIndex("primary", om, cols, mainCol)
}

func TestPrimaryIndex_AutoAssignsRowID(t *testing.T) {
	p := newPrimary(t, -1)
	ctx := context.Background()

	rec1 := &Record{ID: row.Unassigned, Row: row.Row{row.Int64(0), row.String("alice")}}
	require.NoError(t, p.Add(ctx, nil, rec1))
	assert.Equal(t, row.RowID(0), rec1.ID)

	rec2 := &Record{ID: row.Unassigned, Row: row.Row{row.Int64(0), row.String("bob")}}
	require.NoError(t, p.Add(ctx, nil, rec2))
	assert.Equal(t, row.RowID(1), rec2.ID)

	got, found, err := p.GetRow(rec1.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice", got[1].S)
}

func TestPrimaryIndex_PromotedUsesMainColumn(t *testing.T) {
	p := newPrimary(t, 0)
	ctx := context.Background()

	rec := &Record{ID: row.Unassigned, Row: row.Row{row.Int64(7), row.String("carol")}}
	require.NoError(t, p.Add(ctx, nil, rec))
	assert.Equal(t, row.RowID(7), rec.ID)
}

func TestPrimaryIndex_DuplicateRowIDRejected(t *testing.T) {
	p := newPrimary(t, 0)
	ctx := context.Background()

	rec1 := &Record{ID: row.Unassigned, Row: row.Row{row.Int64(1), row.String("a")}}
	require.NoError(t, p.Add(ctx, nil, rec1))

	rec2 := &Record{ID: row.Unassigned, Row: row.Row{row.Int64(1), row.String("b")}}
	err := p.Add(ctx, nil, rec2)
	require.Error(t, err)
	assert.True(t, tcerr.Of(err, tcerr.DuplicateKey))
}

func TestPrimaryIndex_RemoveAndTruncate(t *testing.T) {
	p := newPrimary(t, -1)
	ctx := context.Background()

	rec := &Record{ID: row.Unassigned, Row: row.Row{row.Int64(0), row.String("a")}}
	require.NoError(t, p.Add(ctx, nil, rec))

	require.NoError(t, p.Remove(ctx, nil, rec))
	_, found, err := p.GetRow(rec.ID)
	require.NoError(t, err)
	assert.False(t, found)

	rec2 := &Record{ID: row.Unassigned, Row: row.Row{row.Int64(0), row.String("b")}}
	require.NoError(t, p.Add(ctx, nil, rec2))
	require.NoError(t, p.Truncate(ctx, nil))
	count, err := p.RowCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestPrimaryIndex_Find(t *testing.T) {
	p := newPrimary(t, -1)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		rec := &Record{ID: row.Unassigned, Row: row.Row{row.Int64(0), row.String("x")}}
		require.NoError(t, p.Add(ctx, nil, rec))
	}

	cur, err := p.Find(ctx, nil, nil, nil)
	require.NoError(t, err)
	defer cur.Close()
	n := 0
	for cur.Next(ctx) {
		n++
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, 3, n)
}
