package engine

import "sync"

// task is one request in flight through the engine. It is visible to the
// reactor only between enqueue and result delivery; the owning caller must
// not release it before done is closed.
type task struct {
	req    Request
	shard  int
	prio   int
	result int64 // negative: negated errno
	done   chan struct{}
}

// Waiter blocks the submitting goroutine until done is closed. It lets a
// caller park on its own scheduler instead of a plain channel receive. It is
// called once per attempt, retries included.
type Waiter func(done <-chan struct{})

var taskPool = sync.Pool{
	New: func() interface{} {
		return &task{}
	},
}

func acquireTask(req Request, shard, prio int) *task {
	t := taskPool.Get().(*task)
	t.req = req
	t.shard = shard
	t.prio = prio
	t.rearm()
	return t
}

func releaseTask(t *task) {
	t.req = Request{}
	t.result = 0
	t.done = nil
	taskPool.Put(t)
}

// rearm readies t for another trip through the engine.
func (t *task) rearm() {
	t.result = 0
	t.done = make(chan struct{})
}

// complete stores the result and wakes the owner. The reactor must not touch
// t afterwards.
func (t *task) complete(res int64) {
	t.result = res
	close(t.done)
}

func (t *task) wait() int64 {
	return t.waitWith(nil)
}

// waitWith hands done to w before blocking on it, so a waiter that returns
// early still never sees a result before it is delivered.
func (t *task) waitWith(w Waiter) int64 {
	if w != nil {
		w(t.done)
	}
	<-t.done
	return t.result
}
