package metrics

import (
	"slices"
	"sync"
	"time"
)

const defaultMaxSamples = 100000

// LatencyTracker keeps the most recent read and write latencies in fixed
// rings and reports percentiles over them.
type LatencyTracker struct {
	mu         sync.RWMutex
	reads      []time.Duration
	writes     []time.Duration
	maxSamples int
	readIndex  int
	writeIndex int
	readCount  int64
	writeCount int64
}

func NewLatencyTracker() *LatencyTracker {
	return NewLatencyTrackerSize(defaultMaxSamples)
}

func NewLatencyTrackerSize(maxSamples int) *LatencyTracker {
	if maxSamples <= 0 {
		maxSamples = defaultMaxSamples
	}
	return &LatencyTracker{
		reads:      make([]time.Duration, maxSamples),
		writes:     make([]time.Duration, maxSamples),
		maxSamples: maxSamples,
	}
}

func (lt *LatencyTracker) RecordRead(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.reads[lt.readIndex] = d
	lt.readIndex = (lt.readIndex + 1) % lt.maxSamples
	lt.readCount++
}

func (lt *LatencyTracker) RecordWrite(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.writes[lt.writeIndex] = d
	lt.writeIndex = (lt.writeIndex + 1) % lt.maxSamples
	lt.writeCount++
}

func (lt *LatencyTracker) Counts() (reads, writes int64) {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	return lt.readCount, lt.writeCount
}

func (lt *LatencyTracker) ReadPercentiles() (p25, p50, p99 time.Duration) {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	return percentiles(lt.reads, lt.readCount, lt.maxSamples)
}

func (lt *LatencyTracker) WritePercentiles() (p25, p50, p99 time.Duration) {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	return percentiles(lt.writes, lt.writeCount, lt.maxSamples)
}

func percentiles(ring []time.Duration, count int64, maxSamples int) (p25, p50, p99 time.Duration) {
	samples := int(min(count, int64(maxSamples)))
	if samples == 0 {
		return 0, 0, 0
	}
	sorted := slices.Clone(ring[:samples])
	slices.Sort(sorted)

	p25 = sorted[int(float64(samples)*0.25)]
	p50 = sorted[int(float64(samples)*0.50)]
	p99 = sorted[int(float64(samples)*0.99)]
	return p25, p50, p99
}
