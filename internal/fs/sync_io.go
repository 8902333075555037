//go:build linux
// +build linux

package fs

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Pread reads until buf is full or EOF, retrying EAGAIN and EINTR. A short
// count with a nil error means EOF.
func Pread(fd int, buf []byte, off int64) (int, error) {
	done := 0
	for done < len(buf) {
		n, err := unix.Pread(fd, buf[done:], off+int64(done))
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			return done, fmt.Errorf("pread fd=%d off=%d: %w", fd, off+int64(done), err)
		}
		if n == 0 {
			break
		}
		done += n
	}
	return done, nil
}

// Pwrite writes all of buf, retrying EAGAIN and EINTR. A write that makes no
// progress is reported as ENOSPC.
func Pwrite(fd int, buf []byte, off int64) (int, error) {
	done := 0
	for done < len(buf) {
		n, err := unix.Pwrite(fd, buf[done:], off+int64(done))
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			return done, fmt.Errorf("pwrite fd=%d off=%d: %w", fd, off+int64(done), err)
		}
		if n == 0 {
			return done, fmt.Errorf("pwrite fd=%d off=%d: %w", fd, off+int64(done), unix.ENOSPC)
		}
		done += n
	}
	return done, nil
}

// Size returns the size of a regular file or of a block device.
func Size(f *os.File) (int64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if st.Mode().IsRegular() {
		return st.Size(), nil
	}
	if st.Mode()&os.ModeDevice != 0 && st.Mode()&os.ModeCharDevice == 0 {
		var size uint64
		if err := ioctlBlockSize(int(f.Fd()), &size); err != nil {
			return 0, fmt.Errorf("BLKGETSIZE64 %s: %w", f.Name(), err)
		}
		return int64(size), nil
	}
	return 0, fmt.Errorf("%s: cannot size %s", f.Name(), st.Mode().Type())
}

func ioctlBlockSize(fd int, size *uint64) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(size)))
	if errno != 0 {
		return errno
	}
	return nil
}
