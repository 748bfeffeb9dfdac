package index

import (
	"encoding/binary"
	"fmt"

	"github.com/kasuganosora/tablecore/internal/lock"
	"github.com/kasuganosora/tablecore/internal/row"
	"github.com/kasuganosora/tablecore/internal/schema"
)

// registerUndo records a compensating action with sess's transaction,
// if any, so a savepoint rollback can reverse a store mutation an
// index has already applied directly (outside the Txn's own command
// log). A nil session or Txn means there is nothing to undo through —
// tests exercising a single index in isolation pass nil.
func registerUndo(sess *lock.Session, fn func() error) {
	if sess != nil && sess.Txn != nil {
		sess.Txn.RegisterUndo(fn)
	}
}

// buildKey extracts the values named by cols (in order) out of r and
// assembles the composite row.Key a secondary/primary index sorts by.
func buildKey(r row.Row, cols []schema.IndexColumn, nulls row.NullsOrder) *row.Key {
	values := make([]row.Value, len(cols))
	orders := make([]row.SortOrder, len(cols))
	collations := make([]string, len(cols))
	for i, c := range cols {
		if c.Column.ID >= 0 && c.Column.ID < len(r) {
			values[i] = r[c.Column.ID]
		} else {
			values[i] = row.Null()
		}
		orders[i] = c.Order
		collations[i] = c.Column.Collation
	}
	k := row.NewKey(values, row.Asc, nulls)
	k.Orders = orders
	k.Collations = collations
	return k
}

func rowIDKey(id row.RowID) []byte {
	v := row.Int64(int64(id))
	return v.Encode()
}

// decodeRowIDKey is the inverse of rowIDKey, matching Value.Encode's
// tagged int64 layout (tag 0x01, sign-bit-flipped big-endian 8 bytes).
func decodeRowIDKey(key []byte) (row.RowID, error) {
	if len(key) != 9 || key[0] != 0x01 {
		return row.Unassigned, fmt.Errorf("index: malformed row-id key")
	}
	bits := binary.BigEndian.Uint64(key[1:])
	return row.RowID(int64(bits ^ (1 << 63))), nil
}
