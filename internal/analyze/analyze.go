// Package analyze implements the per-table analyze trigger of spec.md
// §4.6: a change counter that fires statistics refresh on a doubling
// cadence, grounded on the ticker-driven maintenance shape of
// mysql/mvcc/manager.go's GC loop (adapted here to a call-triggered, not
// ticker-driven, cadence).
package analyze

import (
	"math"
	"sync"
)

// Sampler runs the actual statistics refresh; the table facade injects
// its own callback (row sampling belongs to the table, not this
// package) and analyze.Tracker only owns the cadence bookkeeping.
type Sampler func(sampleSize int64)

// Tracker holds changesSinceAnalyze/nextAnalyze for one table.
type Tracker struct {
	mu                  sync.Mutex
	changesSinceAnalyze int64
	nextAnalyze         int64
	sample              int64
	sampler             Sampler
}

// New builds a Tracker with nextAnalyze initialized to the engine
// setting analyzeAuto (0 disables automatic analysis) and analyzeSample
// the configured sample-size knob (spec.md §4.6: "sample
// analyzeSample/10 rows").
func New(analyzeAuto, analyzeSample int64, sampler Sampler) *Tracker {
	return &Tracker{nextAnalyze: analyzeAuto, sample: analyzeSample, sampler: sampler}
}

// RecordChange is called by the mutator after every committed mutation.
// If the change counter has crossed nextAnalyze, it runs the sampler,
// resets the counter, and doubles nextAnalyze (saturating at
// math.MaxInt64 on overflow — see DESIGN.md's Open Question resolution).
func (t *Tracker) RecordChange() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.changesSinceAnalyze++
	if t.nextAnalyze <= 0 || t.changesSinceAnalyze <= t.nextAnalyze {
		return
	}

	if t.sampler != nil {
		t.sampler(t.sample / 10)
	}
	t.changesSinceAnalyze = 0
	if t.nextAnalyze > math.MaxInt64/2 {
		t.nextAnalyze = math.MaxInt64
	} else {
		t.nextAnalyze *= 2
	}
}

// Reset zeroes changesSinceAnalyze without touching nextAnalyze; the
// mutator calls this after Truncate (spec.md §4.4).
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.changesSinceAnalyze = 0
}

func (t *Tracker) ChangesSinceAnalyze() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.changesSinceAnalyze
}

func (t *Tracker) NextAnalyze() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextAnalyze
}
