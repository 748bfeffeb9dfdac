package lock

import (
	"sync"
	"time"

	"github.com/kasuganosora/tablecore/internal/kv"
)

// Session is the lock manager's view of a connection-layer session:
// its identity, its lock-wait state, and the transaction it currently
// borrows from the kv store (spec.md §3 "Session" / §5 ownership note
// — the mutator borrows this Txn without taking ownership of it).
type Session struct {
	ID          string
	LockTimeout time.Duration
	Txn         kv.Txn

	mu       sync.Mutex
	waitFor  *tableLock
	held     map[*tableLock]bool // true = exclusive, false = shared
}

func NewSession(id string, lockTimeout time.Duration, txn kv.Txn) *Session {
	return &Session{
		ID:          id,
		LockTimeout: lockTimeout,
		Txn:         txn,
		held:        make(map[*tableLock]bool),
	}
}

func (s *Session) setWaitFor(tl *tableLock) {
	s.mu.Lock()
	s.waitFor = tl
	s.mu.Unlock()
}

func (s *Session) clearWaitFor() {
	s.mu.Lock()
	s.waitFor = nil
	s.mu.Unlock()
}

// WaitFor returns the table lock this session is currently blocked on,
// or nil if it isn't waiting. Read by the deadlock walk of other
// sessions, so it takes its own mutex rather than relying on the
// table's.
func (s *Session) WaitFor() *tableLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitFor
}

func (s *Session) recordHeld(tl *tableLock, exclusive bool) {
	s.mu.Lock()
	s.held[tl] = exclusive
	s.mu.Unlock()
}

func (s *Session) forget(tl *tableLock) {
	s.mu.Lock()
	delete(s.held, tl)
	s.mu.Unlock()
}

// HeldTableNames is used to populate Deadlock error detail with the
// reporting session's currently-held locks.
func (s *Session) HeldTableNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.held))
	for tl := range s.held {
		names = append(names, tl.name)
	}
	return names
}
