package engine

import "errors"

var (
	ErrClosed          = errors.New("engine is closed")
	ErrInvalidConfig   = errors.New("invalid engine config")
	ErrInvalidOp       = errors.New("invalid operation")
	ErrConcurrentDrive = errors.New("reactor is already being driven by another goroutine")

	// ErrInconsistent reports a broken internal invariant (completion counts
	// or tokens that do not match what was submitted). It is a defect, not a
	// recoverable condition.
	ErrInconsistent = errors.New("engine internal consistency violation")
)
