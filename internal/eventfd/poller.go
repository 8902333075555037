//go:build linux
// +build linux

package eventfd

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Poller waits on a fixed set of descriptors for read readiness.
type Poller struct {
	epfd   int
	events []unix.EpollEvent
}

// NewPoller creates a poller able to report up to capacity ready descriptors
// per Wait.
func NewPoller(capacity int) (*Poller, error) {
	if capacity <= 0 {
		capacity = 1
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &Poller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, capacity),
	}, nil
}

// Add registers fd for level-triggered read readiness.
func (p *Poller) Add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add %d: %w", fd, err)
	}
	return nil
}

// Wait blocks for up to msec milliseconds (-1 = forever) and appends the
// ready descriptors to fired. A signal interrupting the wait is reported as
// unix.EINTR so the caller can treat it as a cancellation point.
func (p *Poller) Wait(msec int, fired []int) ([]int, error) {
	n, err := unix.EpollWait(p.epfd, p.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return fired, err
		}
		return fired, fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		fired = append(fired, int(p.events[i].Fd))
	}
	return fired, nil
}

// Close releases the epoll descriptor. Registered descriptors stay open.
func (p *Poller) Close() error {
	if err := unix.Close(p.epfd); err != nil {
		return fmt.Errorf("epoll close: %w", err)
	}
	return nil
}
