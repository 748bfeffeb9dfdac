package analyze

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_FiresAtThresholdAndDoubles(t *testing.T) {
	var samples []int64
	tr := New(10, 100, func(n int64) { samples = append(samples, n) })

	for i := 0; i < 10; i++ {
		tr.RecordChange()
	}
	assert.Empty(t, samples, "must not fire until strictly past nextAnalyze")

	tr.RecordChange() // 11th change crosses the threshold of 10
	assert.Len(t, samples, 1)
	assert.Equal(t, int64(10), samples[0])
	assert.EqualValues(t, 20, tr.NextAnalyze())
	assert.EqualValues(t, 0, tr.ChangesSinceAnalyze())
}

func TestTracker_DisabledWhenNextAnalyzeZero(t *testing.T) {
	var fired bool
	tr := New(0, 100, func(int64) { fired = true })
	for i := 0; i < 1000; i++ {
		tr.RecordChange()
	}
	assert.False(t, fired)
}

func TestTracker_SaturatesOnOverflow(t *testing.T) {
	tr := New(1, 10, func(int64) {})
	tr.nextAnalyze = math.MaxInt64 - 1
	tr.changesSinceAnalyze = math.MaxInt64
	tr.RecordChange()
	assert.EqualValues(t, math.MaxInt64, tr.NextAnalyze())
}

func TestTracker_ResetClearsChangesOnly(t *testing.T) {
	tr := New(5, 10, func(int64) {})
	tr.RecordChange()
	tr.RecordChange()
	tr.Reset()
	assert.EqualValues(t, 0, tr.ChangesSinceAnalyze())
	assert.EqualValues(t, 5, tr.NextAnalyze())
}
