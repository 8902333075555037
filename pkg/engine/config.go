package engine

import "fmt"

const (
	// DefaultDepth is the per-shard cap on requests in flight in the kernel.
	DefaultDepth = 512
	MaxDepth     = 65536
)

type Config struct {
	// Shards is the number of independent queues, at least 1.
	Shards int
	// Depth caps in-flight requests per shard. Zero means DefaultDepth.
	Depth int
	// LockOSThread pins Run to its OS thread for the reactor's lifetime.
	LockOSThread bool
}

func (c *Config) validate() error {
	if c.Depth == 0 {
		c.Depth = DefaultDepth
	}
	if c.Shards < 1 {
		return fmt.Errorf("%w: shards=%d, need at least 1", ErrInvalidConfig, c.Shards)
	}
	if c.Depth < 1 || c.Depth > MaxDepth {
		return fmt.Errorf("%w: depth=%d, want 1..%d", ErrInvalidConfig, c.Depth, MaxDepth)
	}
	return nil
}
