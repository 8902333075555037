//go:build linux
// +build linux

package engine

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/Meesho/BharatMLStack/diskaio/internal/aio"
)

func newTestShard(t *testing.T, depth int) (*shard, *fakeKernel) {
	t.Helper()
	f := &fakeFactory{}
	s, err := newShard(0, depth, f.create, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.close() })
	return s, f.kernel(0)
}

func writeTask(off int64, prio int) *task {
	return acquireTask(Request{Op: OpWrite, Fd: 3, Buf: make([]byte, 8), Offset: off}, 0, prio)
}

func TestAdmitHighBeforeLowFIFOWithin(t *testing.T) {
	s, k := newTestShard(t, 3)

	tasks := []*task{
		writeTask(1, PriorityLow),
		writeTask(2, PriorityHigh),
		writeTask(3, PriorityLow),
		writeTask(4, PriorityHigh),
	}
	for _, tk := range tasks {
		s.enqueue(tk)
	}

	n, err := s.admit()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, s.inflight)
	assert.Equal(t, []int64{2, 4, 1}, k.submittedOffsets())
	assert.Equal(t, [NumPriorities]int{0, 1}, s.waitingLens())

	n, err = s.admit()
	require.NoError(t, err)
	assert.Zero(t, n, "no room while the shard is full")

	k.completeOldest(1, fullLength)
	got, err := s.harvest()
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, int64(8), tasks[1].wait())

	require.NoError(t, s.pump())
	assert.Equal(t, []int64{2, 4, 1, 3}, k.submittedOffsets())
	assert.Equal(t, 3, s.inflight)
	assert.False(t, s.hasWaiting())
}

func TestAdmitPartialAcceptance(t *testing.T) {
	s, k := newTestShard(t, 8)
	k.acceptLimit = 2

	for i := 0; i < 5; i++ {
		s.enqueue(writeTask(int64(i), PriorityHigh))
	}
	n, err := s.admit()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, s.inflight)
	assert.Equal(t, 5, s.tokens.len())
	assert.Equal(t, []int{5, 3, 1}, k.calls)
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, k.submittedOffsets())
}

func TestAdmitRejectedRequestFailsWithoutSlot(t *testing.T) {
	s, k := newTestShard(t, 8)
	k.setReject(unix.EBADF, 1)

	first := writeTask(10, PriorityHigh)
	s.enqueue(first)
	s.enqueue(writeTask(11, PriorityHigh))
	s.enqueue(writeTask(12, PriorityHigh))

	n, err := s.admit()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, -int64(unix.EBADF), first.wait())
	assert.Equal(t, 2, s.inflight)
	assert.Equal(t, 2, s.tokens.len())
	assert.Equal(t, uint64(1), s.stats.rejected.Load())
	assert.Equal(t, []int{3, 2}, k.calls)
	assert.Equal(t, []int64{11, 12}, k.submittedOffsets())
}

func TestAdmitUnknownSubmitErrorBecomesEIO(t *testing.T) {
	s, k := newTestShard(t, 2)
	k.setReject(errors.New("not an errno"), 1)

	tk := writeTask(0, PriorityLow)
	s.enqueue(tk)
	_, err := s.admit()
	require.NoError(t, err)
	assert.Equal(t, -int64(unix.EIO), tk.wait())
	assert.Zero(t, s.inflight)
}

func TestHarvestDetectsMissingCompletions(t *testing.T) {
	s, k := newTestShard(t, 4)
	s.enqueue(writeTask(0, PriorityHigh))
	_, err := s.admit()
	require.NoError(t, err)

	k.completeOldest(1, fullLength)
	require.NoError(t, s.completeSig.Send(1)) // one signal too many

	_, err = s.harvest()
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestHarvestRejectsUnknownToken(t *testing.T) {
	s, k := newTestShard(t, 4)
	k.mu.Lock()
	k.ready = append(k.ready, aio.Event{Data: 7<<32 | 1})
	k.mu.Unlock()
	require.NoError(t, s.completeSig.Send(1))

	_, err := s.harvest()
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestHarvestWithoutSignalIsNoop(t *testing.T) {
	s, _ := newTestShard(t, 4)
	n, err := s.harvest()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCancelWaiting(t *testing.T) {
	s, _ := newTestShard(t, 4)
	a, b := writeTask(0, PriorityHigh), writeTask(1, PriorityLow)
	s.enqueue(a)
	s.enqueue(b)

	assert.Equal(t, 2, s.cancelWaiting())
	assert.Equal(t, -int64(unix.ECANCELED), a.wait())
	assert.Equal(t, -int64(unix.ECANCELED), b.wait())
	assert.False(t, s.hasWaiting())
}

func TestEnqueueAfterCancelFails(t *testing.T) {
	s, _ := newTestShard(t, 2)
	assert.Zero(t, s.cancelWaiting())

	tk := writeTask(0, PriorityHigh)
	s.enqueue(tk)
	assert.Equal(t, -int64(unix.ECANCELED), tk.wait())
	assert.False(t, s.hasWaiting())
}

func TestPrepareSetsCompletionEventFd(t *testing.T) {
	s, _ := newTestShard(t, 1)
	var cb aio.IOCB

	s.prepare(&cb, acquireTask(Request{Op: OpPoll, Fd: 5, Events: unix.POLLIN}, 0, 0))
	assert.Equal(t, aio.CmdPoll, cb.Opcode)
	assert.Equal(t, uint64(unix.POLLIN), cb.Buf)
	assert.Equal(t, uint32(aio.FlagResfd), cb.Flags)
	assert.Equal(t, uint32(s.completeSig.Fd()), cb.ResFd)

	s.prepare(&cb, acquireTask(Request{Op: OpFdsync, Fd: 5}, 0, 0))
	assert.Equal(t, aio.CmdFdsync, cb.Opcode)
	assert.Equal(t, uint32(s.completeSig.Fd()), cb.ResFd)
}
