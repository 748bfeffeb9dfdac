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

func newHashFixture(t *testing.T, unique bool) (*PrimaryIndex, *HashIndex) {
	t.Helper()
	store := memkv.New()
	pm, err := store.OpenMap("primary")
	require.NoError(t, err)
	cols := schema.Columns{
		{ID: 0, Name: "id", Kind: row.KindInt64, PrimaryKey: true},
		{ID: 1, Name: "email", Kind: row.KindString},
	}
	primary := NewPrimaryIndex("primary", pm, cols, -1)

	hm, err := store.OpenHashMap("by_email")
	require.NoError(t, err)
	idxCols := []schema.IndexColumn{{Column: cols[1], Order: row.Asc}}
	h := NewHashIndex("by_email", hm, primary, idxCols, row.NullsLast, unique)
	return primary, h
}

func addBoth(t *testing.T, ctx context.Context, primary *PrimaryIndex, h *HashIndex, email string) *Record {
	t.Helper()
	rec := &Record{ID: row.Unassigned, Row: row.Row{row.Int64(0), row.String(email)}}
	require.NoError(t, primary.Add(ctx, nil, rec))
	require.NoError(t, h.Add(ctx, nil, rec))
	return rec
}

func TestHashIndex_UniqueRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	primary, h := newHashFixture(t, true)

	addBoth(t, ctx, primary, h, "a@example.com")

	rec2 := &Record{ID: row.Unassigned, Row: row.Row{row.Int64(0), row.String("a@example.com")}}
	require.NoError(t, primary.Add(ctx, nil, rec2))
	err := h.Add(ctx, nil, rec2)
	require.Error(t, err)
	assert.True(t, tcerr.Of(err, tcerr.DuplicateKey))
}

func TestHashIndex_NonUniqueStoresList(t *testing.T) {
	ctx := context.Background()
	primary, h := newHashFixture(t, false)

	addBoth(t, ctx, primary, h, "shared@example.com")
	addBoth(t, ctx, primary, h, "shared@example.com")

	key := row.NewKey([]row.Value{row.String("shared@example.com")}, row.Asc, row.NullsLast)
	cur, err := h.Find(ctx, nil, key, key)
	require.NoError(t, err)
	defer cur.Close()
	n := 0
	for cur.Next(ctx) {
		n++
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, 2, n)
}

func TestHashIndex_RangeScanUnsupported(t *testing.T) {
	ctx := context.Background()
	_, h := newHashFixture(t, true)

	lo := row.NewKey([]row.Value{row.String("a")}, row.Asc, row.NullsLast)
	hi := row.NewKey([]row.Value{row.String("z")}, row.Asc, row.NullsLast)
	_, err := h.Find(ctx, nil, lo, hi)
	require.Error(t, err)
	assert.True(t, tcerr.Of(err, tcerr.UnsupportedScan))
}

func TestHashIndex_RemoveNonUnique(t *testing.T) {
	ctx := context.Background()
	primary, h := newHashFixture(t, false)

	rec1 := addBoth(t, ctx, primary, h, "x@example.com")
	addBoth(t, ctx, primary, h, "x@example.com")

	require.NoError(t, h.Remove(ctx, nil, rec1))

	key := row.NewKey([]row.Value{row.String("x@example.com")}, row.Asc, row.NullsLast)
	cur, err := h.Find(ctx, nil, key, key)
	require.NoError(t, err)
	defer cur.Close()
	n := 0
	for cur.Next(ctx) {
		n++
	}
	assert.Equal(t, 1, n)
}
