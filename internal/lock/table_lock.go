package lock

import "sync"

// tableLock is the state machine in spec.md §4.3's table: Free (no
// holder), SharedHeld (non-empty shared set), ExclusiveHeld (one
// holder, empty shared set). waiters is the FIFO queue; only its head
// may attempt acquisition.
type tableLock struct {
	name string

	mu   sync.Mutex
	cond *sync.Cond

	exclusiveHolder *Session
	sharedHolders   map[*Session]bool
	waiters         []*Session
}

func newTableLock(name string) *tableLock {
	tl := &tableLock{name: name, sharedHolders: make(map[*Session]bool)}
	tl.cond = sync.NewCond(&tl.mu)
	return tl
}

// holds reports whether sess already holds a mode at least as strong
// as the one requested — the re-entrance short-circuit (step 2 of the
// acquire protocol). Caller holds tl.mu.
func (tl *tableLock) holds(sess *Session, exclusive bool) bool {
	if tl.exclusiveHolder == sess {
		return true
	}
	if !exclusive && tl.sharedHolders[sess] {
		return true
	}
	return false
}

// tryAcquire attempts the state transition for sess, returning true on
// success. Caller holds tl.mu.
func (tl *tableLock) tryAcquire(sess *Session, exclusive bool) bool {
	if tl.exclusiveHolder == sess {
		return true
	}
	if exclusive {
		if tl.exclusiveHolder == nil && len(tl.sharedHolders) == 0 {
			tl.exclusiveHolder = sess
			return true
		}
		// Upgrade: only when sess is the sole shared holder.
		if len(tl.sharedHolders) == 1 && tl.sharedHolders[sess] {
			delete(tl.sharedHolders, sess)
			tl.exclusiveHolder = sess
			return true
		}
		return false
	}
	if tl.sharedHolders[sess] {
		return true
	}
	if tl.exclusiveHolder == nil {
		tl.sharedHolders[sess] = true
		return true
	}
	return false
}

// release removes sess from whichever holder slot it occupies and
// wakes every waiter (only the new head will actually succeed).
// Caller holds tl.mu.
func (tl *tableLock) release(sess *Session) {
	if tl.exclusiveHolder == sess {
		tl.exclusiveHolder = nil
	}
	delete(tl.sharedHolders, sess)
	tl.cond.Broadcast()
}

func (tl *tableLock) removeWaiter(sess *Session) {
	for i, w := range tl.waiters {
		if w == sess {
			tl.waiters = append(tl.waiters[:i], tl.waiters[i+1:]...)
			return
		}
	}
}

// holdersLocked lists every session currently holding tl, in either
// mode. Caller holds tl.mu.
func (tl *tableLock) holdersLocked() []*Session {
	var out []*Session
	if tl.exclusiveHolder != nil {
		out = append(out, tl.exclusiveHolder)
	}
	for s := range tl.sharedHolders {
		out = append(out, s)
	}
	return out
}
