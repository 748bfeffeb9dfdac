// Package schema holds the small, shared description of a table's
// columns that both internal/index and internal/table need without
// creating an import cycle between them.
package schema

import "github.com/kasuganosora/tablecore/internal/row"

// Column is immutable after table init (spec.md §3).
type Column struct {
	ID         int
	Name       string
	Kind       row.Kind
	Nullable   bool
	PrimaryKey bool
	// Collation names the collation used when comparing this column's
	// string values; "" (or "binary") means byte-wise comparison.
	Collation string
}

type Columns []Column

func (cs Columns) ByName(name string) (Column, bool) {
	for _, c := range cs {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// IndexColumn names one column participating in an index, with the
// sort order it contributes to that index's composite key.
type IndexColumn struct {
	Column Column
	Order  row.SortOrder
}
