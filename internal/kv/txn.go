package kv

import (
	"context"
	"fmt"
	"sync"
)

// SimpleTxn is a minimal, backend-agnostic kv.Txn: savepoints are
// offsets into an undo stack, and RollbackToSavepoint replays undo
// closures most-recent-first. It stands in for the real transaction
// engine (spec.md §6 treats that engine as an external collaborator),
// but is concrete enough for the table core's own tests and for single-
// process embedding.
type SimpleTxn struct {
	mu       sync.Mutex
	undo     []func() error
	closed   bool
	conflict func(ctx context.Context, key []byte) (bool, error)
}

// NewSimpleTxn creates a fresh, open transaction. conflict may be nil,
// in which case IsUncommittedConflict always reports false (the
// non-MVCC / single-session case).
func NewSimpleTxn(conflict func(ctx context.Context, key []byte) (bool, error)) *SimpleTxn {
	return &SimpleTxn{conflict: conflict}
}

func (t *SimpleTxn) SetSavepoint() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, fmt.Errorf("kv: savepoint on closed transaction")
	}
	return len(t.undo), nil
}

func (t *SimpleTxn) RollbackToSavepoint(id int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("kv: rollback on closed transaction")
	}
	if id < 0 || id > len(t.undo) {
		return fmt.Errorf("kv: invalid savepoint %d", id)
	}
	var firstErr error
	for i := len(t.undo) - 1; i >= id; i-- {
		if err := t.undo[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.undo = t.undo[:id]
	return firstErr
}

func (t *SimpleTxn) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("kv: commit on closed transaction")
	}
	t.closed = true
	t.undo = nil
	return nil
}

func (t *SimpleTxn) Rollback() error {
	t.mu.Lock()
	undo := t.undo
	t.undo = nil
	t.closed = true
	t.mu.Unlock()
	var firstErr error
	for i := len(undo) - 1; i >= 0; i-- {
		if err := undo[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *SimpleTxn) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *SimpleTxn) IsUncommittedConflict(ctx context.Context, key []byte) (bool, error) {
	if t.conflict == nil {
		return false, nil
	}
	return t.conflict(ctx, key)
}

func (t *SimpleTxn) RegisterUndo(fn func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.undo = append(t.undo, fn)
}
