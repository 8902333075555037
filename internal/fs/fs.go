//go:build linux
// +build linux

// Package fs holds the file plumbing around the engine: direct I/O opening,
// aligned buffers, device sizing and a synchronous pread/pwrite path.
package fs

import (
	"errors"
	"os"
	"unsafe"

	"github.com/ncw/directio"
	"github.com/rs/zerolog/log"
)

const (
	// SECTOR_SIZE is the offset and length granularity O_DIRECT requires.
	SECTOR_SIZE = 512
	FILE_MODE   = 0644
)

var (
	ErrBufNoAlign       = errors.New("buffer is not aligned to page size")
	ErrOffsetNotAligned = errors.New("offset is not aligned to sector size")
)

// OpenFile opens name, with O_DIRECT when direct is set. Filesystems that
// refuse O_DIRECT (tmpfs, some overlays) fall back to buffered I/O; the
// returned bool reports whether the file really is in direct mode.
func OpenFile(name string, flag int, direct bool) (*os.File, bool, error) {
	if direct {
		f, err := directio.OpenFile(name, flag, FILE_MODE)
		if err == nil {
			return f, true, nil
		}
		log.Warn().Msgf("DIRECT_IO not supported for %s, falling back to buffered I/O: %v", name, err)
	}
	f, err := os.OpenFile(name, flag, FILE_MODE)
	if err != nil {
		return nil, false, err
	}
	return f, false, nil
}

// CanDirect reports whether a transfer of buf at off satisfies O_DIRECT:
// sector aligned offset and length, page aligned memory.
func CanDirect(buf []byte, off int64) bool {
	return isAlignedOffset(off, SECTOR_SIZE) &&
		len(buf)%SECTOR_SIZE == 0 &&
		isAlignedBuffer(buf, directio.AlignSize)
}

// CheckDirect is CanDirect with a reason.
func CheckDirect(buf []byte, off int64) error {
	if !isAlignedOffset(off, SECTOR_SIZE) || len(buf)%SECTOR_SIZE != 0 {
		return ErrOffsetNotAligned
	}
	if !isAlignedBuffer(buf, directio.AlignSize) {
		return ErrBufNoAlign
	}
	return nil
}

func isAlignedBuffer(buf []byte, alignment int) bool {
	if len(buf) == 0 {
		return false
	}
	addr := uintptr(unsafe.Pointer(&buf[0]))
	return addr%uintptr(alignment) == 0
}

func isAlignedOffset(offset int64, alignment int) bool {
	return offset%int64(alignment) == 0
}
