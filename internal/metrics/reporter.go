package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	KEY_READ_LATENCY  = "diskaio_read_latency"
	KEY_WRITE_LATENCY = "diskaio_write_latency"
	KEY_THROUGHPUT    = "diskaio_throughput"

	TAG_LATENCY_PERCENTILE = "latency_percentile"
	TAG_VALUE_P25          = "p25"
	TAG_VALUE_P50          = "p50"
	TAG_VALUE_P99          = "p99"
)

// Snapshot is what a Reporter samples on every tick. Bytes is cumulative.
type Snapshot struct {
	Bytes            int64
	RP25, RP50, RP99 time.Duration
	WP25, WP50, WP99 time.Duration
}

// Reporter periodically logs a Snapshot to the console and, when metrics
// are enabled, to statsd.
type Reporter struct {
	Interval time.Duration
	Sample   func() Snapshot

	throughput mean
	lastBytes  int64
}

// mean averages the non-zero samples it is given.
type mean struct {
	mu    sync.Mutex
	sum   float64
	count int64
}

func (m *mean) add(v float64) {
	if v == 0 {
		return
	}
	m.mu.Lock()
	m.sum += v
	m.count++
	m.mu.Unlock()
}

func (m *mean) value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Run ticks until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.tick(now.Sub(last))
			last = now
		}
	}
}

func (r *Reporter) tick(elapsed time.Duration) float64 {
	s := r.Sample()
	var mibps float64
	if elapsed > 0 {
		mibps = float64(s.Bytes-r.lastBytes) / (1 << 20) / elapsed.Seconds()
	}
	r.lastBytes = s.Bytes
	r.throughput.add(mibps)

	log.Info().Msgf("throughput: %.1f MiB/s, RP50: %v, RP99: %v, WP50: %v, WP99: %v",
		mibps, s.RP50, s.RP99, s.WP50, s.WP99)

	if Enabled() {
		Timing(KEY_READ_LATENCY, s.RP99, BuildTag(NewTag(TAG_LATENCY_PERCENTILE, TAG_VALUE_P99)))
		Timing(KEY_READ_LATENCY, s.RP50, BuildTag(NewTag(TAG_LATENCY_PERCENTILE, TAG_VALUE_P50)))
		Timing(KEY_READ_LATENCY, s.RP25, BuildTag(NewTag(TAG_LATENCY_PERCENTILE, TAG_VALUE_P25)))
		Timing(KEY_WRITE_LATENCY, s.WP99, BuildTag(NewTag(TAG_LATENCY_PERCENTILE, TAG_VALUE_P99)))
		Timing(KEY_WRITE_LATENCY, s.WP50, BuildTag(NewTag(TAG_LATENCY_PERCENTILE, TAG_VALUE_P50)))
		Timing(KEY_WRITE_LATENCY, s.WP25, BuildTag(NewTag(TAG_LATENCY_PERCENTILE, TAG_VALUE_P25)))
		Gauge(KEY_THROUGHPUT, mibps, nil)
	}
	return mibps
}

// AverageThroughput is the mean MiB/s over all ticks with progress.
func (r *Reporter) AverageThroughput() float64 {
	return r.throughput.value()
}
