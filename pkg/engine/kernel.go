//go:build linux
// +build linux

package engine

import (
	"github.com/Meesho/BharatMLStack/diskaio/internal/aio"
)

// Kernel is a batched asynchronous I/O facility with a fixed depth. Only the
// reactor calls it.
type Kernel interface {
	// Submit hands cbs to the kernel and returns how many were accepted. A
	// zero count with an error means cbs[0] was rejected with that errno.
	Submit(cbs []*aio.IOCB) (int, error)
	// Poll reaps ready completions without blocking.
	Poll(events []aio.Event) (int, error)
	// Destroy releases the facility.
	Destroy() error
}

// KernelFactory creates one Kernel per shard.
type KernelFactory func(depth int) (Kernel, error)

// LinuxAIO is the default KernelFactory, backed by io_setup(2).
func LinuxAIO(depth int) (Kernel, error) {
	ctx, err := aio.Setup(depth)
	if err != nil {
		return nil, err
	}
	return ctx, nil
}
