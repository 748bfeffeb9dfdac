// Package mutator applies a single row mutation across every index of
// a table inside one transaction savepoint, rolling every index back
// together the moment any one of them fails (spec.md §4.4). Grounded
// on mysql/mvcc/manager.go's Commit/Rollback apply-then-undo loop over a
// transaction's recorded commands.
package mutator

import (
	"context"
	"errors"

	"github.com/kasuganosora/tablecore/internal/index"
	"github.com/kasuganosora/tablecore/internal/lock"
	"github.com/kasuganosora/tablecore/internal/tcerr"
)

// Mutator drives Indexes in a fixed order: the primary index must be
// first, since it is the one that assigns Record.ID when unset, and
// every later index needs that id to build its own key.
type Mutator struct {
	Indexes []index.Index
}

func New(indexes []index.Index) *Mutator {
	return &Mutator{Indexes: indexes}
}

// AddRow is spec.md §4.4's addRow: savepoint, add to every index in
// order, roll back and re-raise as a typed error on the first failure,
// otherwise invoke onCommitted (the caller's last-modification-id bump
// plus analyze-trigger hook).
func (m *Mutator) AddRow(ctx context.Context, sess *lock.Session, rec *index.Record, onCommitted func()) error {
	sp, err := sess.Txn.SetSavepoint()
	if err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "mutator: set savepoint", err)
	}
	for _, idx := range m.Indexes {
		if err := idx.Add(ctx, sess, rec); err != nil {
			return m.abort(sess, sp, err)
		}
	}
	if onCommitted != nil {
		onCommitted()
	}
	return nil
}

// RemoveRow is the symmetric operation, indexes visited in reverse so
// the primary (which every other index's join-back depends on) is the
// last one to lose its entry.
func (m *Mutator) RemoveRow(ctx context.Context, sess *lock.Session, rec *index.Record, onCommitted func()) error {
	sp, err := sess.Txn.SetSavepoint()
	if err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "mutator: set savepoint", err)
	}
	for i := len(m.Indexes) - 1; i >= 0; i-- {
		if err := m.Indexes[i].Remove(ctx, sess, rec); err != nil {
			return m.abort(sess, sp, err)
		}
	}
	if onCommitted != nil {
		onCommitted()
	}
	return nil
}

// Truncate truncates every index in reverse order under one savepoint;
// onReset resets the caller's changesSinceAnalyze counter.
func (m *Mutator) Truncate(ctx context.Context, sess *lock.Session, onReset func()) error {
	sp, err := sess.Txn.SetSavepoint()
	if err != nil {
		return tcerr.Wrap(tcerr.InternalCheck, "mutator: set savepoint", err)
	}
	for i := len(m.Indexes) - 1; i >= 0; i-- {
		if err := m.Indexes[i].Truncate(ctx, sess); err != nil {
			return m.abort(sess, sp, err)
		}
	}
	if onReset != nil {
		onReset()
	}
	return nil
}

func (m *Mutator) abort(sess *lock.Session, sp int, cause error) error {
	typed := toTyped(cause)
	if rbErr := sess.Txn.RollbackToSavepoint(sp); rbErr != nil {
		var te *tcerr.Error
		if errors.As(typed, &te) {
			te.WithDetail("rollbackError", rbErr.Error())
		}
	}
	return typed
}

func toTyped(err error) error {
	var te *tcerr.Error
	if errors.As(err, &te) {
		return te
	}
	return tcerr.Wrap(tcerr.InternalCheck, "mutator: unexpected index error", err)
}
