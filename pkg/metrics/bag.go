package metrics

import (
	"sort"
	"sync"
	"time"
)

// maxTimerSamples bounds each Bag timer to its most recent N samples
// for percentile computation, regardless of call volume (DESIGN.md
// "metrics sample retention" decision).
const maxTimerSamples = 100

// Bag is the set of counters, gauges and timers one service instance
// owns, snapshotted read-only for reporting over RPC or /metrics.
// Grounded on the bounded in-memory window original_source/layers/network.py
// keeps for its own request history, applied here to per-service timing
// instead.
type Bag struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]float64
	timers   map[string][]time.Duration
}

// NewBag constructs an empty metrics Bag.
func NewBag() *Bag {
	return &Bag{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		timers:   make(map[string][]time.Duration),
	}
}

// Inc increments a named counter by delta.
func (b *Bag) Inc(name string, delta int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[name] += delta
}

// Set assigns a named gauge's current value.
func (b *Bag) Set(name string, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gauges[name] = value
}

// Observe records one timing sample under name, keeping only the most
// recent maxTimerSamples.
func (b *Bag) Observe(name string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	samples := append(b.timers[name], d)
	if len(samples) > maxTimerSamples {
		samples = samples[len(samples)-maxTimerSamples:]
	}
	b.timers[name] = samples
}

// TimerStats is a percentile summary of one named timer's retained window.
type TimerStats struct {
	Count int           `json:"count"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	Max   time.Duration `json:"max"`
}

// Snapshot is a read-only copy of a Bag's current state, safe to
// marshal or hand to a caller without further locking.
type Snapshot struct {
	Counters map[string]int64      `json:"counters"`
	Gauges   map[string]float64    `json:"gauges"`
	Timers   map[string]TimerStats `json:"timers"`
}

// Snapshot copies out the Bag's current state.
func (b *Bag) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := Snapshot{
		Counters: make(map[string]int64, len(b.counters)),
		Gauges:   make(map[string]float64, len(b.gauges)),
		Timers:   make(map[string]TimerStats, len(b.timers)),
	}
	for k, v := range b.counters {
		out.Counters[k] = v
	}
	for k, v := range b.gauges {
		out.Gauges[k] = v
	}
	for name, samples := range b.timers {
		out.Timers[name] = summarize(samples)
	}
	return out
}

func summarize(samples []time.Duration) TimerStats {
	if len(samples) == 0 {
		return TimerStats{}
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return TimerStats{
		Count: len(sorted),
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
		Max:   sorted[len(sorted)-1],
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
