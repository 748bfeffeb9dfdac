// Package table implements the table facade of spec.md §4.7: the
// composition root binding schema, lock manager, mutator, builder, and
// analyze tracker into the single per-table object the DDL/DML layers
// (out of scope) drive. Grounded on the teacher's IndexManager
// composition style (pkg/resource/badger/index.go) and its
// RegisterTable/UnregisterTable lifecycle pair (mysql/resource/index.go).
package table

import (
	"github.com/kasuganosora/tablecore/internal/index"
	"github.com/kasuganosora/tablecore/internal/row"
	"github.com/kasuganosora/tablecore/internal/schema"
)

// AddIndexSpec describes a requested index the schema/DDL layer (out of
// scope, §1) hands the facade. UseHash mirrors the "hash-typed" half of
// spec.md §4.2's selection policy — whether the SQL-level index type was
// declared HASH — a decision made above this module's boundary, so it
// arrives as an explicit flag rather than being inferred from column
// types here.
type AddIndexSpec struct {
	Name    string
	Columns []schema.IndexColumn
	Unique  bool
	UseHash bool
}

// ConstraintView is the read-only slice of the constraint/schema layer
// (out of scope, §1) that CanTruncate/CanDrop need: whether anything
// still references this table. Supplied by the caller; this module
// never reaches into a constraint graph of its own.
type ConstraintView interface {
	// ReferencedBy reports whether any referential constraint points at
	// tableName from elsewhere in the schema.
	ReferencedBy(tableName string) bool
}

// selectKind implements spec.md §4.2's ADD INDEX selection policy.
func selectKind(spec AddIndexSpec, mainColPromotable bool) index.Kind {
	if mainColPromotable && len(spec.Columns) == 1 &&
		spec.Columns[0].Column.PrimaryKey && spec.Columns[0].Order == row.Asc {
		return index.KindDelegate
	}
	if spec.UseHash && len(spec.Columns) <= 1 {
		if spec.Unique {
			return index.KindHashUnique
		}
		return index.KindHashNonUnique
	}
	return index.KindSecondary
}

// promotableMainColumn reports the single column (and its ordinal) that
// qualifies as spec.md's "main index column": a lone integral ascending
// primary key. Any other shape (composite PK, non-integral PK, no PK)
// returns ok=false.
func promotableMainColumn(cols schema.Columns) (schema.Column, int, bool) {
	var pk []schema.Column
	var idx []int
	for i, c := range cols {
		if c.PrimaryKey {
			pk = append(pk, c)
			idx = append(idx, i)
		}
	}
	if len(pk) != 1 {
		return schema.Column{}, -1, false
	}
	if pk[0].Kind != row.KindInt64 {
		return schema.Column{}, -1, false
	}
	return pk[0], idx[0], true
}
