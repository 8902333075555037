// Package engine turns Linux native AIO into a sharded, two-priority,
// goroutine-safe request/completion pipeline.
//
// Many producer goroutines call SubmitAndWait (or ReadAt, WriteAt, Poll,
// Fsync). Each request is routed to shard hint mod N, appended to the tail of
// that shard's high or low priority waiting list, and the caller blocks on a
// private completion signal.
//
// Exactly one reactor goroutine calls DriveOnce in a loop (Run does this). It
// waits on every shard's "submission pending" and "completions pending"
// eventfds, harvests completions back to their callers, and drains waiting
// lists into the kernel, high priority first and FIFO within a priority, never
// exceeding Config.Depth in-flight requests per shard.
//
// Requests failing with EAGAIN or EINTR are re-queued transparently. Low
// priority work can starve while high priority work keeps arriving.
//
//	eng, err := engine.New(engine.Config{Shards: 2})
//	if err != nil {
//		return err
//	}
//	ctx, cancel := context.WithCancel(context.Background())
//	done := make(chan error, 1)
//	go func() { done <- eng.Run(ctx) }()
//
//	n, err := eng.WriteAt(0, engine.PriorityHigh, fd, buf, 0)
//
//	cancel()
//	<-done
//	eng.Close()
package engine
