package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/xxh3"
)

// verify compares size bytes of src at srcOff with dst at dstOff. The whole
// range is hashed once; only on a mismatch is it walked block by block to
// name the first bad block.
func verify(src, dst *os.File, srcOff, dstOff, size int64, bs int) error {
	want, err := rangeSum(src, srcOff, size)
	if err != nil {
		return fmt.Errorf("hash source: %w", err)
	}
	got, err := rangeSum(dst, dstOff, size)
	if err != nil {
		return fmt.Errorf("hash destination: %w", err)
	}
	if want == got {
		return nil
	}

	a, b := make([]byte, bs), make([]byte, bs)
	for off := int64(0); off < size; off += int64(bs) {
		n := int(min(int64(bs), size-off))
		if _, err := src.ReadAt(a[:n], srcOff+off); err != nil && err != io.EOF {
			return err
		}
		if _, err := dst.ReadAt(b[:n], dstOff+off); err != nil && err != io.EOF {
			return err
		}
		if xxh3.Hash(a[:n]) != xxh3.Hash(b[:n]) {
			return fmt.Errorf("verify: block %d (offset %d) differs", off/int64(bs), off)
		}
	}
	return fmt.Errorf("verify: range hash %016x != %016x", want, got)
}

func rangeSum(f *os.File, off, size int64) (uint64, error) {
	h := xxhash.New()
	n, err := io.Copy(h, io.NewSectionReader(f, off, size))
	if err != nil {
		return 0, err
	}
	if n != size {
		return 0, fmt.Errorf("%s: short range, %d of %d bytes", f.Name(), n, size)
	}
	return h.Sum64(), nil
}
