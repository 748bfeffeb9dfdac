package lock

import "time"

// IsolationLevel mirrors the handful of isolation levels the lock
// manager needs to distinguish; anything finer-grained belongs to the
// transaction engine (out of scope, see internal/kv).
type IsolationLevel int

const (
	ReadCommitted IsolationLevel = iota
	Serializable
)

// Config mirrors the teacher's mvcc.Config/DefaultConfig shape: one
// small struct of engine-wide knobs threaded in at construction instead
// of read from globals.
type Config struct {
	// Multithreaded selects the sync-object granularity: per-table when
	// true, one shared database-wide monitor when false (spec.md §4.3).
	Multithreaded bool
	// MVCCEnabled arms the multi-version fast path: writes take shared
	// locks, reads take none unless Force is requested.
	MVCCEnabled bool
	Isolation   IsolationLevel
	// DeadlockPollInterval bounds how long a blocked acquire sleeps
	// before re-checking the state machine and re-running deadlock
	// detection. Default 100ms per spec.md §4.3.
	DeadlockPollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Multithreaded:        true,
		MVCCEnabled:          true,
		Isolation:            ReadCommitted,
		DeadlockPollInterval: 100 * time.Millisecond,
	}
}
