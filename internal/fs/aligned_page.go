//go:build linux
// +build linux

package fs

import (
	"fmt"
	"runtime/pprof"

	"golang.org/x/sys/unix"
)

var mmapProf = pprof.NewProfile("diskaio_mmap") // will show up in /debug/pprof/

// AlignedPage is an anonymous mapping, so Buf always starts on a page
// boundary and can be handed to O_DIRECT transfers.
type AlignedPage struct {
	Buf  []byte
	mmap []byte
}

// NewAlignedPage maps size bytes, rounded up to whole pages. Buf has
// exactly size bytes.
func NewAlignedPage(size int) (*AlignedPage, error) {
	if size <= 0 {
		return nil, fmt.Errorf("aligned page: invalid size %d", size)
	}
	pageSize := unix.Getpagesize()
	mapped := (size + pageSize - 1) / pageSize * pageSize
	b, err := unix.Mmap(-1, 0, mapped, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("aligned page mmap(%d): %w", mapped, err)
	}
	mmapProf.Add(&b[0], 1)
	return &AlignedPage{
		Buf:  b[:size],
		mmap: b,
	}, nil
}

// Unmap releases the mapping. Buf must not be used afterwards.
func (p *AlignedPage) Unmap() error {
	if p.mmap == nil {
		return nil
	}
	mmapProf.Remove(&p.mmap[0])
	err := unix.Munmap(p.mmap)
	p.Buf = nil
	p.mmap = nil
	return err
}
