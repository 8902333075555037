//go:build linux
// +build linux

package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/Meesho/BharatMLStack/diskaio/internal/aio"
	"github.com/Meesho/BharatMLStack/diskaio/internal/eventfd"
	"github.com/Meesho/BharatMLStack/diskaio/internal/metrics"
)

// shard is one independently scheduled queue: a kernel context, two FIFO
// waiting lists and the two signals the reactor waits on.
type shard struct {
	idx   int
	depth int
	log   zerolog.Logger
	tags  []string

	// mu guards waiting and closed. It is never held across a blocking syscall.
	mu      sync.Mutex
	waiting [NumPriorities]*queue.Queue
	closed  bool

	submitSig   *eventfd.EventFD // producers: new work queued
	completeSig *eventfd.EventFD // kernel: completions ready

	// Reactor-only state.
	kernel   Kernel
	inflight int
	tokens   arena
	batch    []*task
	iocbs    []aio.IOCB
	cbs      []*aio.IOCB
	events   []aio.Event

	stats shardCounters
}

type shardCounters struct {
	inflight  atomic.Int64
	peak      atomic.Int64
	submitted atomic.Uint64
	completed atomic.Uint64
	rejected  atomic.Uint64
	retried   atomic.Uint64
}

func newShard(idx, depth int, newKernel KernelFactory, log zerolog.Logger) (*shard, error) {
	s := &shard{
		idx:    idx,
		depth:  depth,
		log:    log.With().Int("shard", idx).Logger(),
		tags:   metrics.GetShardTag(idx),
		tokens: newArena(depth),
		batch:  make([]*task, 0, depth),
		iocbs:  make([]aio.IOCB, depth),
		cbs:    make([]*aio.IOCB, depth),
		events: make([]aio.Event, depth),
	}
	for p := range s.waiting {
		s.waiting[p] = queue.New()
	}

	var err error
	if s.submitSig, err = eventfd.New(); err != nil {
		return nil, err
	}
	if s.completeSig, err = eventfd.New(); err != nil {
		_ = s.submitSig.Close()
		return nil, err
	}
	if s.kernel, err = newKernel(depth); err != nil {
		_ = s.submitSig.Close()
		_ = s.completeSig.Close()
		return nil, err
	}
	return s, nil
}

// close tears down the kernel context and both signals. Requests still in
// flight fail with ECANCELED once the kernel context is gone, since nothing
// will ever harvest them.
func (s *shard) close() error {
	var err error
	if s.inflight > 0 || s.tokens.len() > 0 {
		s.log.Warn().Int("inflight", s.inflight).Msg("closing shard with requests still in flight")
	}
	err = multierr.Append(err, s.kernel.Destroy())
	s.tokens.drain(func(t *task) {
		t.complete(-int64(unix.ECANCELED))
	})
	s.inflight = 0
	s.stats.inflight.Store(0)
	err = multierr.Append(err, s.submitSig.Close())
	err = multierr.Append(err, s.completeSig.Close())
	return err
}

// -----------------------------------------------------------------------
// Producer side
// -----------------------------------------------------------------------

// enqueue appends t to the tail of its priority list and signals the reactor.
// On a cancelled shard t fails at once with ECANCELED.
func (s *shard) enqueue(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		t.complete(-int64(unix.ECANCELED))
		return
	}
	s.waiting[t.prio].Add(t)

	// signal under mu so close never races a send on a recycled fd
	if err := s.submitSig.Send(1); err != nil {
		// The task is queued; it will be picked up on the next drain of this shard.
		s.log.Error().Err(err).Msg("failed to signal submission")
	}
}

func (s *shard) hasWaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.waiting {
		if q.Length() > 0 {
			return true
		}
	}
	return false
}

func (s *shard) waitingLens() [NumPriorities]int {
	var lens [NumPriorities]int
	s.mu.Lock()
	for p, q := range s.waiting {
		lens[p] = q.Length()
	}
	s.mu.Unlock()
	return lens
}

// cancelWaiting fails every queued task with ECANCELED and refuses new ones.
func (s *shard) cancelWaiting() int {
	var cancelled []*task
	s.mu.Lock()
	s.closed = true
	for _, q := range s.waiting {
		for q.Length() > 0 {
			cancelled = append(cancelled, q.Remove().(*task))
		}
	}
	s.mu.Unlock()
	for _, t := range cancelled {
		t.complete(-int64(unix.ECANCELED))
	}
	return len(cancelled)
}

// -----------------------------------------------------------------------
// Reactor side
// -----------------------------------------------------------------------

// harvest consumes the completion signal and reaps exactly that many events.
func (s *shard) harvest() (int, error) {
	cnt, err := s.completeSig.Recv()
	if err != nil {
		return 0, err
	}
	want := int(cnt)
	done := 0
	for done < want {
		chunk := min(want-done, len(s.events))
		n, err := s.kernel.Poll(s.events[:chunk])
		if err != nil {
			return done, fmt.Errorf("shard %d: io_getevents: %w", s.idx, err)
		}
		if n == 0 {
			return done, fmt.Errorf("%w: shard %d signalled %d completions, harvested %d",
				ErrInconsistent, s.idx, want, done)
		}
		for i := 0; i < n; i++ {
			ev := &s.events[i]
			t, ok := s.tokens.take(ev.Data)
			if !ok {
				return done, fmt.Errorf("%w: shard %d unknown completion token %#x",
					ErrInconsistent, s.idx, ev.Data)
			}
			s.inflight--
			t.complete(ev.Res)
		}
		done += n
	}
	if done > 0 {
		s.stats.completed.Add(uint64(done))
		s.stats.inflight.Store(int64(s.inflight))
		metrics.Count(metrics.KEY_COMPLETION_COUNT, int64(done), s.tags)
	}
	return done, nil
}

// admit moves waiting tasks into the kernel, high priority first and FIFO
// within a priority, up to depth-inflight of them. Requests the kernel
// rejects are failed at once without taking an in-flight slot.
func (s *shard) admit() (int, error) {
	room := s.depth - s.inflight
	if room <= 0 {
		return 0, nil
	}

	s.batch = s.batch[:0]
	s.mu.Lock()
	for p := 0; p < NumPriorities && room > 0; p++ {
		q := s.waiting[p]
		for room > 0 && q.Length() > 0 {
			s.batch = append(s.batch, q.Remove().(*task))
			room--
		}
	}
	s.mu.Unlock()

	n := len(s.batch)
	if n == 0 {
		return 0, nil
	}
	defer clear(s.batch)

	for i, t := range s.batch {
		token, ok := s.tokens.put(t)
		if !ok {
			return 0, fmt.Errorf("%w: shard %d token arena full with %d in flight",
				ErrInconsistent, s.idx, s.inflight)
		}
		cb := &s.iocbs[i]
		s.prepare(cb, t)
		cb.Data = token
		s.cbs[i] = cb
	}

	first := 0
	for first < n {
		got, err := s.kernel.Submit(s.cbs[first:n])
		if err != nil || got <= 0 {
			errno := submitErrno(err)
			t, ok := s.tokens.take(s.cbs[first].Data)
			if !ok {
				return first, fmt.Errorf("%w: shard %d lost rejected token", ErrInconsistent, s.idx)
			}
			s.log.Info().Int("batch", n-first).Err(errno).Msg("io_submit rejected request")
			s.stats.rejected.Add(1)
			metrics.Incr(metrics.KEY_REJECT_COUNT, s.tags)
			t.complete(-int64(errno))
			first++
			continue
		}
		s.inflight += got
		first += got
	}

	s.stats.submitted.Add(uint64(n))
	s.stats.inflight.Store(int64(s.inflight))
	if int64(s.inflight) > s.stats.peak.Load() {
		s.stats.peak.Store(int64(s.inflight))
	}
	if metrics.Enabled() {
		metrics.Gauge(metrics.KEY_INFLIGHT, float64(s.inflight), s.tags)
		metrics.Count(metrics.KEY_BATCH_SIZE, int64(n), s.tags)
	}
	return n, nil
}

// pump admits work until the shard is full or nothing is waiting.
func (s *shard) pump() error {
	for {
		if _, err := s.admit(); err != nil {
			return err
		}
		if s.inflight >= s.depth || !s.hasWaiting() {
			return nil
		}
	}
}

func (s *shard) prepare(cb *aio.IOCB, t *task) {
	r := &t.req
	switch r.Op {
	case OpRead:
		cb.PrepPread(r.Fd, r.Buf, r.Offset)
	case OpWrite:
		cb.PrepPwrite(r.Fd, r.Buf, r.Offset)
	case OpPoll:
		cb.PrepPoll(r.Fd, r.Events)
	case OpFsync:
		cb.PrepFsync(r.Fd)
	case OpFdsync:
		cb.PrepFdsync(r.Fd)
	}
	cb.SetEventFd(s.completeSig.Fd())
}

func submitErrno(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) && errno != 0 {
		return errno
	}
	if err == nil {
		// accepted nothing without saying why: let the caller retry
		return unix.EAGAIN
	}
	return unix.EIO
}
