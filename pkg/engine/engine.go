//go:build linux
// +build linux

package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/Meesho/BharatMLStack/diskaio/internal/eventfd"
	"github.com/Meesho/BharatMLStack/diskaio/internal/metrics"
)

// Engine owns a fixed set of shards and the reactor state that drives them.
type Engine struct {
	cfg    Config
	log    zerolog.Logger
	shards []*shard

	poller *eventfd.Poller
	wake   *eventfd.EventFD
	fired  []int
	waiter Waiter

	driving atomic.Bool
	closed  atomic.Bool
}

// New creates an engine with cfg.Shards shards of cfg.Depth in-flight slots
// each. On failure every resource already acquired is released.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	metrics.Init()

	e := &Engine{
		cfg:    cfg,
		log:    o.log,
		shards: make([]*shard, 0, cfg.Shards),
		fired:  make([]int, 0, 2*cfg.Shards+1),
		waiter: o.waiter,
	}

	var err error
	if e.wake, err = eventfd.New(); err != nil {
		return nil, err
	}
	if e.poller, err = eventfd.NewPoller(2*cfg.Shards + 1); err != nil {
		return nil, multierr.Append(err, e.wake.Close())
	}
	if err = e.poller.Add(e.wake.Fd()); err != nil {
		return nil, e.unwind(err)
	}

	for i := 0; i < cfg.Shards; i++ {
		s, err := newShard(i, cfg.Depth, o.kernel, e.log)
		if err != nil {
			return nil, e.unwind(fmt.Errorf("shard %d: %w", i, err))
		}
		e.shards = append(e.shards, s)
		if err := e.poller.Add(s.completeSig.Fd()); err != nil {
			return nil, e.unwind(fmt.Errorf("shard %d: %w", i, err))
		}
		if err := e.poller.Add(s.submitSig.Fd()); err != nil {
			return nil, e.unwind(fmt.Errorf("shard %d: %w", i, err))
		}
	}

	e.log.Info().Int("shards", cfg.Shards).Int("depth", cfg.Depth).Msg("aio engine created")
	return e, nil
}

// unwind releases everything New acquired so far, newest first.
func (e *Engine) unwind(cause error) error {
	err := cause
	for i := len(e.shards) - 1; i >= 0; i-- {
		err = multierr.Append(err, e.shards[i].close())
	}
	e.shards = nil
	err = multierr.Append(err, e.poller.Close())
	err = multierr.Append(err, e.wake.Close())
	return err
}

// Close destroys every shard. The reactor must be stopped. Requests still
// waiting, requests still in flight and requests submitted afterwards fail
// with ECANCELED, wrapped in ErrClosed. Close is idempotent.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if e.driving.Load() {
		e.log.Warn().Msg("closing engine while the reactor is running")
	}

	var err error
	for _, s := range e.shards {
		if n := s.cancelWaiting(); n > 0 {
			e.log.Warn().Int("shard", s.idx).Int("cancelled", n).Msg("cancelled waiting requests on close")
		}
		err = multierr.Append(err, s.close())
	}
	err = multierr.Append(err, e.poller.Close())
	err = multierr.Append(err, e.wake.Close())
	if err != nil {
		e.log.Error().Err(err).Msg("aio engine teardown")
	}
	return err
}

// Shards returns the number of shards.
func (e *Engine) Shards() int {
	return len(e.shards)
}

// SubmitAndWait queues req and blocks until it completes. EAGAIN and EINTR
// are retried without the caller noticing. The result is the byte count for
// reads and writes, the ready event mask for polls, and 0 for fsync.
func (e *Engine) SubmitAndWait(req Request) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	if !req.Op.valid() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidOp, req.Op)
	}
	if (req.Op == OpRead || req.Op == OpWrite) && len(req.Buf) == 0 {
		return 0, nil
	}

	idx := wrap(req.Shard, len(e.shards))
	s := e.shards[idx]
	t := acquireTask(req, idx, wrap(req.Priority, NumPriorities))
	defer releaseTask(t)

	start := time.Now()
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			t.rearm()
		}
		s.enqueue(t)
		res := t.waitWith(e.waiter)
		if res >= 0 {
			metrics.Timing(metrics.KEY_SUBMIT_LATENCY, time.Since(start), s.tags)
			return int(res), nil
		}

		errno := unix.Errno(-res)
		if errno == unix.EAGAIN || errno == unix.EINTR {
			if e.closed.Load() {
				return 0, ErrClosed
			}
			s.stats.retried.Add(1)
			metrics.Incr(metrics.KEY_RETRY_COUNT, s.tags)
			continue
		}
		if errno == unix.ECANCELED && e.closed.Load() {
			return 0, fmt.Errorf("%w: %w", ErrClosed, errno)
		}
		return 0, fmt.Errorf("%s shard=%d fd=%d off=%d: %w", req.Op, idx, req.Fd, req.Offset, errno)
	}
}

// ReadAt reads len(buf) bytes at off. A short count is not an error.
func (e *Engine) ReadAt(shard, prio, fd int, buf []byte, off int64) (int, error) {
	return e.SubmitAndWait(Request{Op: OpRead, Shard: shard, Priority: prio, Fd: fd, Buf: buf, Offset: off})
}

// WriteAt writes buf at off.
func (e *Engine) WriteAt(shard, prio, fd int, buf []byte, off int64) (int, error) {
	return e.SubmitAndWait(Request{Op: OpWrite, Shard: shard, Priority: prio, Fd: fd, Buf: buf, Offset: off})
}

// Poll waits until fd reports one of events and returns the ready mask.
func (e *Engine) Poll(shard, prio, fd int, events uint32) (uint32, error) {
	n, err := e.SubmitAndWait(Request{Op: OpPoll, Shard: shard, Priority: prio, Fd: fd, Events: events})
	return uint32(n), err
}

// Fsync flushes fd. With dataOnly only the data and the metadata needed to
// read it back are flushed (fdatasync).
func (e *Engine) Fsync(shard, prio, fd int, dataOnly bool) error {
	op := OpFsync
	if dataOnly {
		op = OpFdsync
	}
	_, err := e.SubmitAndWait(Request{Op: op, Shard: shard, Priority: prio, Fd: fd})
	return err
}
