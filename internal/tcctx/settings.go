// Package tcctx threads engine-wide settings, storage, and logging
// through table-core operations as an explicit value instead of
// package-level globals, grounded on the teacher's mvcc.Config/
// DefaultConfig() pattern (mysql/mvcc/manager.go) generalized across every
// subsystem this module adds (lock, index, builder, analyze).
package tcctx

import (
	"log"
	"os"
	"time"

	"github.com/kasuganosora/tablecore/internal/kv"
	"github.com/kasuganosora/tablecore/internal/lock"
)

// Settings is the engine-wide configuration knob set. Each table facade
// is constructed with one Settings value; nothing in this module reads
// from a global.
type Settings struct {
	// LockTimeoutDefault is carried for callers that create sessions;
	// nothing in this module reads it. The lock manager uses only each
	// session's own LockTimeout, and a zero LockTimeout waits without a
	// deadline.
	LockTimeoutDefault time.Duration
	// DeadlockCheckInterval bounds how often a blocked Acquire re-runs
	// deadlock detection (spec.md §4.3).
	DeadlockCheckInterval time.Duration
	// MaxMemoryRows sizes the block-merge strategy's per-block buffer at
	// half this value (spec.md §4.5). The buffered strategy reads the
	// whole scan into RAM and does not consult it.
	MaxMemoryRows int64
	// AnalyzeAuto is the initial nextAnalyze threshold; 0 disables
	// automatic analysis (spec.md §4.6).
	AnalyzeAuto int64
	// AnalyzeSample is the row-count knob the sampler divides by 10.
	AnalyzeSample int64
	// Multithreaded selects per-table vs database-wide lock granularity.
	Multithreaded bool
	// MVCCEnabled arms the lock manager's multi-version fast path.
	MVCCEnabled bool
	Isolation   lock.IsolationLevel
}

// DefaultSettings mirrors the teacher's DefaultConfig() shape: one
// function giving every knob a sane engine-wide default.
func DefaultSettings() Settings {
	lc := lock.DefaultConfig()
	return Settings{
		LockTimeoutDefault:    30 * time.Second,
		DeadlockCheckInterval: lc.DeadlockPollInterval,
		MaxMemoryRows:         1 << 20,
		AnalyzeAuto:           1000,
		AnalyzeSample:         10000,
		Multithreaded:         lc.Multithreaded,
		MVCCEnabled:           lc.MVCCEnabled,
		Isolation:             lc.Isolation,
	}
}

func (s Settings) lockConfig() lock.Config {
	return lock.Config{
		Multithreaded:        s.Multithreaded,
		MVCCEnabled:          s.MVCCEnabled,
		Isolation:            s.Isolation,
		DeadlockPollInterval: s.DeadlockCheckInterval,
	}
}

// Context is the dependency-injected handle every operation in this
// module takes: settings, the external store collaborator, and a
// logger, in place of the global state the teacher's SQL layer above
// pkg/mvcc relies on.
type Context struct {
	Settings Settings
	Store    kv.Store
	Logger   *log.Logger
}

// New builds a Context with DefaultSettings and a logger that writes to
// stderr with the teacher's own log.Printf style (no third-party
// logging library appears anywhere in the teacher's own code — see
// pkg/resource/{json,jsonl,csv}/adapter.go and pkg/resource/memory/
// paged_rows.go, all of which reach for the standard library's log
// package directly, so this module follows suit rather than introducing
// a dependency the corpus itself never uses).
func New(store kv.Store) *Context {
	return &Context{
		Settings: DefaultSettings(),
		Store:    store,
		Logger:   log.New(os.Stderr, "tablecore: ", log.LstdFlags),
	}
}

// NewLockManager builds a lock.Manager configured from this Context's
// Settings, the shape every table facade uses at construction.
func (c *Context) NewLockManager() *lock.Manager {
	return lock.NewManager(c.Settings.lockConfig())
}
