//go:build linux
// +build linux

package engine

// ShardStats is a point-in-time view of one shard.
type ShardStats struct {
	Waiting      [NumPriorities]int
	Inflight     int
	PeakInflight int
	Submitted    uint64
	Completed    uint64
	Rejected     uint64
	Retried      uint64
}

// Stats snapshots every shard. Counters are read independently, so a snapshot
// taken while the engine is busy is not atomic across fields.
func (e *Engine) Stats() []ShardStats {
	out := make([]ShardStats, len(e.shards))
	for i, s := range e.shards {
		out[i] = ShardStats{
			Waiting:      s.waitingLens(),
			Inflight:     int(s.stats.inflight.Load()),
			PeakInflight: int(s.stats.peak.Load()),
			Submitted:    s.stats.submitted.Load(),
			Completed:    s.stats.completed.Load(),
			Rejected:     s.stats.rejected.Load(),
			Retried:      s.stats.retried.Load(),
		}
	}
	return out
}
