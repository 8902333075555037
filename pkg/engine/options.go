//go:build linux
// +build linux

package engine

import (
	"github.com/rs/zerolog"

	"github.com/Meesho/BharatMLStack/diskaio/pkg/logger"
)

type options struct {
	log    zerolog.Logger
	kernel KernelFactory
	waiter Waiter
}

type Option func(*options)

// WithLogger routes engine diagnostics to l instead of logger.Default().
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithKernel replaces the Linux AIO backend.
func WithKernel(f KernelFactory) Option {
	return func(o *options) {
		if f != nil {
			o.kernel = f
		}
	}
}

// WithWaiter makes SubmitAndWait wait for completions through w.
func WithWaiter(w Waiter) Option {
	return func(o *options) {
		o.waiter = w
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log:    logger.Default(),
		kernel: LinuxAIO,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
