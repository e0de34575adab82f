package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBagCountersAndGauges(t *testing.T) {
	b := NewBag()
	b.Inc("calls", 1)
	b.Inc("calls", 2)
	b.Set("queue_depth", 4.5)

	snap := b.Snapshot()
	assert.Equal(t, int64(3), snap.Counters["calls"])
	assert.Equal(t, 4.5, snap.Gauges["queue_depth"])
}

func TestBagTimerSummarizesPercentiles(t *testing.T) {
	b := NewBag()
	for i := 1; i <= 10; i++ {
		b.Observe("latency", time.Duration(i)*time.Millisecond)
	}

	snap := b.Snapshot()
	stats := snap.Timers["latency"]
	assert.Equal(t, 10, stats.Count)
	assert.Equal(t, 10*time.Millisecond, stats.Max)
	assert.True(t, stats.P50 > 0)
	assert.True(t, stats.P95 >= stats.P50)
}

func TestBagTimerBoundedAtMaxSamples(t *testing.T) {
	b := NewBag()
	for i := 0; i < maxTimerSamples+50; i++ {
		b.Observe("latency", time.Duration(i)*time.Microsecond)
	}

	snap := b.Snapshot()
	assert.Equal(t, maxTimerSamples, snap.Timers["latency"].Count)
	// the oldest samples should have been evicted, so Max reflects the
	// most recent window rather than the very first observation.
	assert.Equal(t, time.Duration(maxTimerSamples+49)*time.Microsecond, snap.Timers["latency"].Max)
}

func TestBagSnapshotIsIndependentCopy(t *testing.T) {
	b := NewBag()
	b.Inc("x", 1)

	snap := b.Snapshot()
	b.Inc("x", 5)

	assert.Equal(t, int64(1), snap.Counters["x"])
}
