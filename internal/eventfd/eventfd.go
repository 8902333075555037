//go:build linux
// +build linux

// Package eventfd provides the counting signal used for cross-thread wakeups
// and an epoll based multiplexed wait across many of them.
package eventfd

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// EventFD is a non-blocking counting signal. Send adds to the counter, Recv
// reads and resets it.
type EventFD struct {
	fd int
}

// New creates a close-on-exec, non-blocking eventfd with a zero counter.
func New() (*EventFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &EventFD{fd: fd}, nil
}

// Fd returns the underlying descriptor, e.g. for IOCB.SetEventFd.
func (e *EventFD) Fd() int {
	return e.fd
}

// Send adds n to the counter.
func (e *EventFD) Send(n uint64) error {
	return Signal(e.fd, n)
}

// Recv returns the counter and resets it to zero. An empty counter yields 0.
func (e *EventFD) Recv() (uint64, error) {
	var buf [8]byte
	for {
		_, err := unix.Read(e.fd, buf[:])
		switch err {
		case nil:
			return binary.NativeEndian.Uint64(buf[:]), nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, nil
		default:
			return 0, fmt.Errorf("eventfd read: %w", err)
		}
	}
}

// Close releases the descriptor.
func (e *EventFD) Close() error {
	if err := unix.Close(e.fd); err != nil {
		return fmt.Errorf("eventfd close: %w", err)
	}
	return nil
}

// Signal adds n to the counter of the eventfd behind fd. A saturated counter
// (EAGAIN) is not an error: the descriptor is already readable.
func Signal(fd int, n uint64) error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], n)
	for {
		_, err := unix.Write(fd, buf[:])
		switch err {
		case nil, unix.EAGAIN:
			return nil
		case unix.EINTR:
			continue
		default:
			return fmt.Errorf("eventfd write: %w", err)
		}
	}
}
