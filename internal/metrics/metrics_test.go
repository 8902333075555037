package metrics

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyTrackerPercentiles(t *testing.T) {
	lt := NewLatencyTrackerSize(100)
	for i := 1; i <= 100; i++ {
		lt.RecordRead(time.Duration(i) * time.Millisecond)
	}
	p25, p50, p99 := lt.ReadPercentiles()
	assert.Equal(t, 26*time.Millisecond, p25)
	assert.Equal(t, 51*time.Millisecond, p50)
	assert.Equal(t, 100*time.Millisecond, p99)

	p25, p50, p99 = lt.WritePercentiles()
	assert.Zero(t, p25)
	assert.Zero(t, p50)
	assert.Zero(t, p99)

	reads, writes := lt.Counts()
	assert.Equal(t, int64(100), reads)
	assert.Zero(t, writes)
}

func TestLatencyTrackerRingOverwrites(t *testing.T) {
	lt := NewLatencyTrackerSize(4)
	for i := 0; i < 4; i++ {
		lt.RecordWrite(time.Second)
	}
	for i := 0; i < 4; i++ {
		lt.RecordWrite(time.Millisecond)
	}
	_, p50, p99 := lt.WritePercentiles()
	assert.Equal(t, time.Millisecond, p50)
	assert.Equal(t, time.Millisecond, p99)
}

func TestTagsAreNormalized(t *testing.T) {
	assert.Equal(t, []string{"shard_idx:3"}, GetShardTag(3))
	assert.Equal(t, "op:p_read", TagAsString(TAG_OP, "p read"))
}

func TestDisabledMetricsAreNoops(t *testing.T) {
	assert.False(t, Enabled())
	Timing(KEY_SUBMIT_LATENCY, time.Millisecond, nil)
	Incr(KEY_RETRY_COUNT, GetShardTag(0))
	Gauge(KEY_INFLIGHT, 3, nil)
	assert.NoError(t, Close())
}

func TestMeanSkipsZeroSamples(t *testing.T) {
	var m mean
	assert.Zero(t, m.value())
	m.add(2)
	m.add(0)
	m.add(4)
	assert.Equal(t, 3.0, m.value())
}

func TestReporterTickComputesThroughput(t *testing.T) {
	var bytes int64
	r := &Reporter{Sample: func() Snapshot { return Snapshot{Bytes: bytes} }}

	bytes = 4 << 20
	assert.Equal(t, 2.0, r.tick(2*time.Second))
	bytes = 10 << 20
	assert.Equal(t, 6.0, r.tick(time.Second))
	assert.Zero(t, r.tick(time.Second), "no progress")
	assert.Equal(t, 4.0, r.AverageThroughput(), "idle ticks do not drag the average")
}

func TestLogResultToCSVWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	res := Result{Mode: "async", Shards: 2, Depth: 512, Threads: 4, BlockSize: 4096, Bytes: 1 << 20, Elapsed: time.Second, MiBps: 1}

	require.NoError(t, LogResultToCSV(path, res))
	res.Mode = "sync"
	require.NoError(t, LogResultToCSV(path, res))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, "MODE", rows[0][0])
	assert.Equal(t, "async", rows[1][0])
	assert.Equal(t, "sync", rows[2][0])
	assert.Equal(t, "4096", rows[1][4])
	assert.Len(t, rows[2], len(rows[0]))
}
