//go:build linux
// +build linux

package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Meesho/BharatMLStack/diskaio/internal/aio"
	"github.com/Meesho/BharatMLStack/diskaio/internal/eventfd"
)

// fakeKernel accepts requests into a pending list and completes them only
// when the test says so, signalling the request's resfd like the kernel does.
type fakeKernel struct {
	mu sync.Mutex

	submitted  []aio.IOCB // copies, in acceptance order
	pending    []aio.IOCB
	ready      []aio.Event
	calls      []int // len(cbs) per Submit call
	maxPending int

	rejectErr   error // returned for the next rejectN submits
	rejectN     int
	acceptLimit int // cap on requests accepted per Submit, 0 = no cap
	destroyed   bool
}

func (k *fakeKernel) Submit(cbs []*aio.IOCB) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls = append(k.calls, len(cbs))
	if k.rejectN > 0 {
		k.rejectN--
		return 0, k.rejectErr
	}
	n := len(cbs)
	if k.acceptLimit > 0 && n > k.acceptLimit {
		n = k.acceptLimit
	}
	for _, cb := range cbs[:n] {
		k.submitted = append(k.submitted, *cb)
		k.pending = append(k.pending, *cb)
	}
	if len(k.pending) > k.maxPending {
		k.maxPending = len(k.pending)
	}
	return n, nil
}

func (k *fakeKernel) Poll(events []aio.Event) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := copy(events, k.ready)
	k.ready = k.ready[n:]
	return n, nil
}

func (k *fakeKernel) Destroy() error {
	k.mu.Lock()
	k.destroyed = true
	k.mu.Unlock()
	return nil
}

// completeOldest finishes up to n pending requests in submission order.
func (k *fakeKernel) completeOldest(n int, res func(cb aio.IOCB) int64) int {
	k.mu.Lock()
	if n > len(k.pending) {
		n = len(k.pending)
	}
	done := append([]aio.IOCB(nil), k.pending[:n]...)
	k.pending = k.pending[n:]
	for _, cb := range done {
		k.ready = append(k.ready, aio.Event{Data: cb.Data, Res: res(cb)})
	}
	k.mu.Unlock()

	for _, cb := range done {
		_ = eventfd.Signal(int(cb.ResFd), 1)
	}
	return n
}

func (k *fakeKernel) completeAll(res func(cb aio.IOCB) int64) int {
	return k.completeOldest(1<<30, res)
}

func (k *fakeKernel) pendingLen() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pending)
}

func (k *fakeKernel) submittedOffsets() []int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]int64, 0, len(k.submitted))
	for _, cb := range k.submitted {
		out = append(out, cb.Offset)
	}
	return out
}

func (k *fakeKernel) setReject(err error, n int) {
	k.mu.Lock()
	k.rejectErr, k.rejectN = err, n
	k.mu.Unlock()
}

func fullLength(cb aio.IOCB) int64 { return int64(cb.Nbytes) }

func withResult(res int64) func(aio.IOCB) int64 {
	return func(aio.IOCB) int64 { return res }
}

type fakeFactory struct {
	mu      sync.Mutex
	kernels []*fakeKernel
	failAt  int // fail the failAt-th creation (1-based), 0 = never
	err     error
}

func (f *fakeFactory) create(depth int) (Kernel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.kernels)+1 == f.failAt {
		return nil, f.err
	}
	k := &fakeKernel{}
	f.kernels = append(f.kernels, k)
	return k, nil
}

func (f *fakeFactory) kernel(i int) *fakeKernel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kernels[i]
}

// newFakeEngine builds an engine on fake kernels. With run set, a reactor
// goroutine drives it until the test ends.
func newFakeEngine(t *testing.T, cfg Config, run bool, opts ...Option) (*Engine, *fakeFactory) {
	t.Helper()
	f := &fakeFactory{}
	e, err := New(cfg, append([]Option{WithKernel(f.create)}, opts...)...)
	require.NoError(t, err)

	if !run {
		t.Cleanup(func() { _ = e.Close() })
		return e, f
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("reactor did not stop")
		}
		_ = e.Close()
	})
	return e, f
}

func waitingTotal(st ShardStats) int {
	total := 0
	for _, n := range st.Waiting {
		total += n
	}
	return total
}
