package row

// SortOrder is the per-column direction of a composite key.
type SortOrder int

const (
	Asc SortOrder = iota
	Desc
)

// NullsOrder is the table-level policy for where NULLs sort relative to
// non-NULL values, applied uniformly across every column of a key.
type NullsOrder int

const (
	NullsFirst NullsOrder = iota
	NullsLast
)

// Key is a composite search key: one Value per indexed column, each
// with its own sort direction, plus the table's NULL-ordering policy.
// Key.Compare implements the total order spec.md §4.2 requires for
// secondary-index range scans: the lexicographic combination of the
// per-column orders.
type Key struct {
	Values     []Value
	Orders     []SortOrder
	Nulls      NullsOrder
	Collations []string // parallel to Values; "" means binary comparison
}

// NewKey builds a Key with a uniform sort order and collation across
// every column — the common case for a single- or multi-column index
// that does not mix ASC/DESC or per-column collations.
func NewKey(values []Value, order SortOrder, nulls NullsOrder) *Key {
	orders := make([]SortOrder, len(values))
	for i := range orders {
		orders[i] = order
	}
	return &Key{Values: values, Orders: orders, Nulls: nulls}
}

func (k *Key) collationFor(i int) string {
	if i < len(k.Collations) {
		return k.Collations[i]
	}
	return ""
}

// Compare returns <0, 0, >0 as k orders before, at, or after other.
// Columns are compared left to right; the first non-zero result wins.
func (k *Key) Compare(other *Key) int {
	n := len(k.Values)
	if len(other.Values) < n {
		n = len(other.Values)
	}
	for i := 0; i < n; i++ {
		a, b := k.Values[i], other.Values[i]
		cmp := compareWithNulls(a, b, k.Nulls, k.collationFor(i))
		if k.Orders[i] == Desc {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp
		}
	}
	switch {
	case len(k.Values) < len(other.Values):
		return -1
	case len(k.Values) > len(other.Values):
		return 1
	default:
		return 0
	}
}

func compareWithNulls(a, b Value, nulls NullsOrder, collation string) int {
	if a.IsNull() || b.IsNull() {
		if a.IsNull() && b.IsNull() {
			return 0
		}
		aFirst := -1
		if nulls == NullsLast {
			aFirst = 1
		}
		if a.IsNull() {
			return aFirst
		}
		return -aFirst
	}
	return a.Compare(b, collation)
}

// Encode concatenates the per-column encodings in order, producing a
// byte string whose lexicographic order matches Compare's order for an
// all-ASC key (DESC columns are encoded by bitwise-inverting the column
// encoding so ascending byte order becomes descending value order).
func (k *Key) Encode() []byte {
	out := make([]byte, 0, 16*len(k.Values))
	for i, v := range k.Values {
		enc := v.Encode()
		if k.Orders[i] == Desc {
			enc = invert(enc)
		}
		out = append(out, enc...)
	}
	return out
}

func invert(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = ^c
	}
	return out
}
