//go:build linux
// +build linux

package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/Meesho/BharatMLStack/diskaio/internal/arrays"
)

// DriveOnce runs one reactor iteration: wait for any shard signal, harvest
// completions, then admit waiting work. Only one goroutine may drive the
// engine at a time; a concurrent call returns ErrConcurrentDrive.
//
// An interrupted wait (a signal, or Interrupt) returns nil without touching
// any shard. ErrInconsistent means the engine state can no longer be trusted.
func (e *Engine) DriveOnce() error {
	if !e.driving.CompareAndSwap(false, true) {
		return ErrConcurrentDrive
	}
	defer e.driving.Store(false)
	if e.closed.Load() {
		return ErrClosed
	}

	var err error
	e.fired, err = e.poller.Wait(-1, e.fired[:0])
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return err
	}
	if len(e.fired) == 0 {
		return fmt.Errorf("%w: wait returned with nothing ready", ErrInconsistent)
	}
	arrays.Sort(e.fired, arrays.CompareInt)

	if _, ok := arrays.BSearch(e.fired, e.wake.Fd(), arrays.CompareInt); ok {
		// Level triggered: shard signals that also fired are seen next time.
		_, err := e.wake.Recv()
		return err
	}

	for _, s := range e.shards {
		_, completions := arrays.BSearch(e.fired, s.completeSig.Fd(), arrays.CompareInt)
		_, submissions := arrays.BSearch(e.fired, s.submitSig.Fd(), arrays.CompareInt)
		if !completions && !submissions {
			continue
		}

		dirty := false
		if completions {
			n, err := s.harvest()
			if err != nil {
				e.log.Error().Err(err).Int("shard", s.idx).Msg("harvest failed")
				return err
			}
			dirty = n > 0
		}
		if submissions {
			if _, err := s.submitSig.Recv(); err != nil {
				return err
			}
			dirty = true
		}
		if dirty {
			if err := s.pump(); err != nil {
				e.log.Error().Err(err).Int("shard", s.idx).Msg("submission failed")
				return err
			}
		}
	}
	return nil
}

// Interrupt wakes a reactor blocked in DriveOnce. Safe from any goroutine.
func (e *Engine) Interrupt() error {
	return e.wake.Send(1)
}

// Run drives the engine until ctx is done or an iteration fails. Cancellation
// is observed only between iterations.
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	stop := context.AfterFunc(ctx, func() {
		if err := e.Interrupt(); err != nil {
			e.log.Error().Err(err).Msg("failed to interrupt reactor")
		}
	})
	defer stop()

	e.log.Info().Int("shards", len(e.shards)).Msg("reactor started")
	for {
		if err := ctx.Err(); err != nil {
			e.log.Info().Msg("reactor stopped")
			return err
		}
		if err := e.DriveOnce(); err != nil {
			e.log.Error().Err(err).Msg("reactor stopped")
			return err
		}
	}
}
