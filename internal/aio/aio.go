//go:build linux
// +build linux

// Package aio provides a minimal Linux native AIO binding using raw syscalls.
// No external dependencies beyond golang.org/x/sys/unix are needed.
package aio

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// -----------------------------------------------------------------------
// Linux AIO constants (include/uapi/linux/aio_abi.h)
// -----------------------------------------------------------------------

// Cmd is the iocb opcode (aio_lio_opcode).
type Cmd uint16

const (
	CmdPread  Cmd = 0
	CmdPwrite Cmd = 1
	CmdFsync  Cmd = 2
	CmdFdsync Cmd = 3
	CmdPoll   Cmd = 5
	CmdNoop   Cmd = 6
)

const (
	// FlagResfd asks the kernel to signal IOCB.ResFd (an eventfd) on completion.
	FlagResfd = 1 << 0
)

func (c Cmd) String() string {
	switch c {
	case CmdPread:
		return "pread"
	case CmdPwrite:
		return "pwrite"
	case CmdFsync:
		return "fsync"
	case CmdFdsync:
		return "fdsync"
	case CmdPoll:
		return "poll"
	case CmdNoop:
		return "noop"
	}
	return fmt.Sprintf("cmd(%d)", uint16(c))
}

// -----------------------------------------------------------------------
// Kernel structures (must match kernel ABI exactly, little-endian layout)
// -----------------------------------------------------------------------

// IOCB is the 64-byte struct iocb.
type IOCB struct {
	Data    uint64 // aio_data, returned untouched in Event.Data
	Key     uint32 // aio_key, set by the kernel
	RWFlags int32  // aio_rw_flags
	Opcode  Cmd
	ReqPrio int16
	Fd      uint32
	Buf     uint64 // buffer address; poll: requested event mask
	Nbytes  uint64
	Offset  int64
	_       uint64 // aio_reserved2
	Flags   uint32
	ResFd   uint32
}

// Event is the 32-byte struct io_event.
type Event struct {
	Data uint64 // IOCB.Data of the completed request
	Obj  uint64 // address of the completed iocb
	Res  int64  // bytes transferred, poll mask, or negated errno
	Res2 int64
}

// -----------------------------------------------------------------------
// Request preparation
// -----------------------------------------------------------------------

func (cb *IOCB) prepRW(cmd Cmd, fd int, buf []byte, offset int64) {
	*cb = IOCB{Opcode: cmd, Fd: uint32(fd), Offset: offset}
	if len(buf) == 0 {
		return
	}
	cb.Buf = uint64(uintptr(unsafe.Pointer(&buf[0])))
	cb.Nbytes = uint64(len(buf))
}

// PrepPread prepares a positional read into buf. The caller keeps buf
// reachable until the completion is harvested.
func (cb *IOCB) PrepPread(fd int, buf []byte, offset int64) {
	cb.prepRW(CmdPread, fd, buf, offset)
}

// PrepPwrite prepares a positional write of buf.
func (cb *IOCB) PrepPwrite(fd int, buf []byte, offset int64) {
	cb.prepRW(CmdPwrite, fd, buf, offset)
}

// PrepPoll prepares a one-shot poll for events (POLLIN, POLLOUT, ...).
// The kernel rejects non-zero Nbytes/Offset for this opcode.
func (cb *IOCB) PrepPoll(fd int, events uint32) {
	*cb = IOCB{Opcode: CmdPoll, Fd: uint32(fd), Buf: uint64(events)}
}

func (cb *IOCB) PrepFsync(fd int) {
	*cb = IOCB{Opcode: CmdFsync, Fd: uint32(fd)}
}

func (cb *IOCB) PrepFdsync(fd int) {
	*cb = IOCB{Opcode: CmdFdsync, Fd: uint32(fd)}
}

// SetEventFd makes the kernel add 1 to the eventfd when this request completes.
func (cb *IOCB) SetEventFd(efd int) {
	cb.Flags |= FlagResfd
	cb.ResFd = uint32(efd)
}

// -----------------------------------------------------------------------
// Context is one kernel AIO context
// -----------------------------------------------------------------------

// Context wraps an aio_context_t created by io_setup(2).
type Context struct {
	id      uintptr
	entries int
}

// Setup creates a context able to hold maxEvents in-flight requests.
func Setup(maxEvents int) (*Context, error) {
	if maxEvents <= 0 {
		return nil, fmt.Errorf("io_setup: invalid queue depth %d", maxEvents)
	}
	var id uintptr
	_, _, errno := unix.Syscall(unix.SYS_IO_SETUP, uintptr(maxEvents), uintptr(unsafe.Pointer(&id)), 0)
	if errno != 0 {
		return nil, fmt.Errorf("io_setup(%d) failed: %w", maxEvents, errno)
	}
	return &Context{id: id, entries: maxEvents}, nil
}

// Entries returns the depth the context was created with.
func (c *Context) Entries() int {
	return c.entries
}

// Submit queues cbs with io_submit(2). It returns the number of requests the
// kernel accepted; when the first request is rejected outright the count is
// zero and the errno describes that request.
func (c *Context) Submit(cbs []*IOCB) (int, error) {
	if len(cbs) == 0 {
		return 0, nil
	}
	n, _, errno := unix.Syscall(unix.SYS_IO_SUBMIT, c.id, uintptr(len(cbs)), uintptr(unsafe.Pointer(&cbs[0])))
	runtime.KeepAlive(cbs)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

// GetEvents reaps between minNr and len(events) completions. A nil timeout
// blocks until minNr completions are available.
func (c *Context) GetEvents(minNr int, events []Event, timeout *unix.Timespec) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	n, _, errno := unix.Syscall6(unix.SYS_IO_GETEVENTS, c.id, uintptr(minNr), uintptr(len(events)),
		uintptr(unsafe.Pointer(&events[0])), uintptr(unsafe.Pointer(timeout)), 0)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

// Poll reaps whatever completions are ready without blocking.
func (c *Context) Poll(events []Event) (int, error) {
	var ts unix.Timespec
	for {
		n, err := c.GetEvents(1, events, &ts)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// Destroy cancels outstanding requests and releases the context.
func (c *Context) Destroy() error {
	_, _, errno := unix.Syscall(unix.SYS_IO_DESTROY, c.id, 0, 0)
	if errno != 0 {
		return fmt.Errorf("io_destroy failed: %w", errno)
	}
	return nil
}
