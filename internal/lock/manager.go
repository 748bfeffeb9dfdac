// Package lock implements the per-table lock manager of spec.md §4.3:
// a FIFO-fair state machine with deadlock detection, grounded on the
// teacher's mvcc.Manager mutex/Config shape (mysql/mvcc/manager.go)
// even though the teacher itself avoids table locks in favor of MVCC
// versioning — the wait-for graph walk below is this module's own,
// written to the algorithm spec.md §4.3/§5 specify exactly.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/kasuganosora/tablecore/internal/tcerr"
)

// Manager owns every table's lock state; deadlock detection is
// serialized by the package-level deadlockMu (spec.md §5).
type Manager struct {
	cfg Config

	mu     sync.Mutex
	tables map[string]*tableLock
	dbWide *tableLock // used instead of per-table locks when !cfg.Multithreaded
}

// deadlockMu is the process-wide mutex that serializes deadlock
// detection across every Manager, and so across every table.
var deadlockMu sync.Mutex

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:    cfg,
		tables: make(map[string]*tableLock),
		dbWide: newTableLock("$database$"),
	}
}

func (m *Manager) tableLockFor(name string) *tableLock {
	if !m.cfg.Multithreaded {
		return m.dbWide
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tl, ok := m.tables[name]
	if !ok {
		tl = newTableLock(name)
		m.tables[name] = tl
	}
	return tl
}

// existingTableLock looks up a table's lock without creating one, for
// use by the deadlock walk (a table nobody has ever locked can't be
// part of a cycle).
func (m *Manager) existingTableLock(name string) *tableLock {
	if !m.cfg.Multithreaded {
		return m.dbWide
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[name]
}

// LockForOp implements the multi-version fast path and read-committed
// fast path of spec.md §4.3 item 1 and §4.3's closing bullet, falling
// through to Acquire only when a real lock is needed.
func (m *Manager) LockForOp(ctx context.Context, sess *Session, table string, write bool, force bool) error {
	if m.cfg.MVCCEnabled && !force {
		if !write {
			return nil
		}
		return m.Acquire(ctx, sess, table, false)
	}
	if !write && !force && !m.cfg.Multithreaded && !m.cfg.MVCCEnabled && m.cfg.Isolation == ReadCommitted {
		return nil
	}
	exclusive := write
	if !write && force {
		exclusive = false // FOR UPDATE read: shared table lock
	}
	return m.Acquire(ctx, sess, table, exclusive)
}

// Acquire is spec.md §4.3's lock(session, exclusive, force) state
// machine, force having already been folded into the exclusive/shared
// decision by the caller.
func (m *Manager) Acquire(ctx context.Context, sess *Session, table string, exclusive bool) error {
	tl := m.tableLockFor(table)

	tl.mu.Lock()
	if tl.holds(sess, exclusive) {
		tl.mu.Unlock()
		return nil
	}
	tl.waiters = append(tl.waiters, sess)

	var deadline time.Time
	if sess.LockTimeout > 0 {
		deadline = time.Now().Add(sess.LockTimeout)
	}

	armed := false
	defer func() {
		if armed {
			sess.clearWaitFor()
		}
		tl.removeWaiter(sess)
		tl.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if tl.waiters[0] == sess && tl.tryAcquire(sess, exclusive) {
			sess.recordHeld(tl, exclusive)
			return nil
		}

		if !armed {
			// Deadlock detection is armed after the first unsuccessful
			// attempt, not the zeroth, to tolerate brief contention.
			armed = true
			sess.setWaitFor(tl)
		}

		// detectDeadlock visits other tables' locks, so tl.mu must be
		// released first: holding it while reaching for a foreign tl.mu
		// (or deadlockMu) is exactly the nested-lock ordering that can
		// deadlock the detector itself against a symmetric waiter
		// walking the graph the other way round.
		tl.mu.Unlock()
		cycle := m.detectDeadlock(sess)
		tl.mu.Lock()
		if cycle != nil {
			names := make([]string, 0, len(cycle))
			for _, s := range cycle {
				names = append(names, s.ID)
			}
			return tcerr.New(tcerr.Deadlock, "deadlock detected").
				WithDetail("cycle", names).
				WithDetail("held", sess.HeldTableNames())
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return tcerr.New(tcerr.LockTimeout, "lock wait timed out").
				WithDetail("table", table)
		}

		wait := m.cfg.DeadlockPollInterval
		if wait <= 0 {
			wait = 100 * time.Millisecond
		}
		if !deadline.IsZero() {
			if remaining := time.Until(deadline); remaining < wait {
				wait = remaining
			}
		}
		if wait > 0 {
			timedCondWait(tl.cond, wait)
		}
	}
}

// Release drops sess's hold (shared or exclusive) on table and wakes
// the waiter queue so the new head can try.
func (m *Manager) Release(sess *Session, table string) {
	tl := m.existingTableLock(table)
	if tl == nil {
		return
	}
	tl.mu.Lock()
	tl.release(sess)
	tl.mu.Unlock()
	sess.forget(tl)
}

// timedCondWait wakes cond.Wait() after d even absent a real
// Broadcast; Go's sync.Cond has no native timed wait.
func timedCondWait(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
}

// detectDeadlock runs the wait-for graph walk of spec.md §4.3 under
// the process-wide detection mutex: starting from initiator, follow
// each waiting session to the table it wants, to every current holder
// of that table, to the table *they* want, and so on. A cycle is
// reported the moment the walk re-encounters initiator. The caller
// must not hold any tableLock's mu when calling this: the walk takes
// each visited table's mu one at a time (never two at once), which is
// what keeps it from nesting against a symmetric walk happening in
// another session's goroutine.
func (m *Manager) detectDeadlock(initiator *Session) []*Session {
	deadlockMu.Lock()
	defer deadlockMu.Unlock()

	visited := map[*Session]bool{initiator: true}
	var path []*Session

	var walk func(s *Session) []*Session
	walk = func(s *Session) []*Session {
		path = append(path, s)
		defer func() { path = path[:len(path)-1] }()

		tl := s.WaitFor()
		if tl == nil {
			return nil
		}

		tl.mu.Lock()
		holders := tl.holdersLocked()
		tl.mu.Unlock()

		for _, h := range holders {
			if h == initiator {
				cycle := make([]*Session, len(path)+1)
				copy(cycle, path)
				cycle[len(path)] = initiator
				return cycle
			}
			if visited[h] {
				continue
			}
			visited[h] = true
			if cyc := walk(h); cyc != nil {
				return cyc
			}
		}
		return nil
	}

	return walk(initiator)
}
