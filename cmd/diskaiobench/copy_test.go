//go:build linux
// +build linux

package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/Meesho/BharatMLStack/diskaio/internal/config"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	os.Exit(m.Run())
}

func writeInput(t *testing.T, size int) string {
	t.Helper()
	data := make([]byte, size)
	rng := rand.New(rand.NewPCG(1, 2))
	for i := range data {
		data[i] = byte(rng.Uint32())
	}
	name := filepath.Join(t.TempDir(), "in")
	require.NoError(t, os.WriteFile(name, data, 0644))
	return name
}

func testOptions(t *testing.T, in string) options {
	return options{
		In:      in,
		Out:     filepath.Join(t.TempDir(), "out"),
		BS:      4096,
		IBS:     4096,
		OBS:     4096,
		Threads: 3,
		Env:     config.Env{Shards: 2, Depth: 16},
	}
}

func TestSyncCopy(t *testing.T) {
	in := writeInput(t, 10*4096+123)
	o := testOptions(t, in)
	o.Random = true
	o.ReportEvery = time.Millisecond

	rep, c, err := copyFile(context.Background(), o)
	require.NoError(t, err)
	defer c.close()

	assert.Equal(t, int64(10*4096+123), rep.Bytes)
	assert.Equal(t, int64(11), rep.Blocks)
	reads, writes := c.lat.Counts()
	assert.Equal(t, int64(11), reads)
	assert.Equal(t, int64(11), writes)
	assert.NoError(t, verify(c.in, c.out, c.skipOff, c.seekOff, c.size, int(o.BS)))
}

func TestSyncCopySkipSeekCount(t *testing.T) {
	in := writeInput(t, 20*4096)
	o := testOptions(t, in)
	o.Skip, o.Seek, o.Count = 2, 5, 4
	o.IBS, o.OBS = 1024, 2048

	rep, c, err := copyFile(context.Background(), o)
	require.NoError(t, err)
	defer c.close()

	assert.Equal(t, int64(4*4096), rep.Bytes)
	assert.Equal(t, int64(2048), c.skipOff)
	assert.Equal(t, int64(10240), c.seekOff)

	src, err := os.ReadFile(o.In)
	require.NoError(t, err)
	dst, err := os.ReadFile(o.Out)
	require.NoError(t, err)
	require.Len(t, dst, 10240+4*4096)
	assert.Equal(t, src[2048:2048+4*4096], dst[10240:])
}

func TestCopyRejectsSkipPastEnd(t *testing.T) {
	o := testOptions(t, writeInput(t, 4096))
	o.Skip = 1
	_, _, err := copyFile(context.Background(), o)
	assert.ErrorContains(t, err, "unable to skip")
}

func TestAsyncCopy(t *testing.T) {
	in := writeInput(t, 64*4096+17)
	o := testOptions(t, in)
	o.Async = true
	o.Direct = true
	o.Threads = 8

	rep, c, err := copyFile(context.Background(), o)
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.EAGAIN) {
		t.Skipf("linux aio unavailable: %v", err)
	}
	require.NoError(t, err)
	defer c.close()

	assert.Equal(t, int64(65), rep.Blocks)
	assert.NoError(t, verify(c.in, c.out, 0, 0, c.size, int(o.BS)))
}

func TestAsyncCopyReturnsPromptlyOnCancel(t *testing.T) {
	in := writeInput(t, 64<<20)
	o := testOptions(t, in)
	o.Async = true
	o.Threads = 8

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		c   *copier
		err error
	}
	done := make(chan result, 1)
	go func() {
		_, c, err := copyFile(ctx, o)
		done <- result{c, err}
	}()

	time.Sleep(3 * time.Millisecond)
	cancel()

	select {
	case r := <-done:
		if errors.Is(r.err, unix.ENOSYS) || errors.Is(r.err, unix.EPERM) || errors.Is(r.err, unix.EAGAIN) {
			t.Skipf("linux aio unavailable: %v", r.err)
		}
		if r.err == nil {
			// finished before the cancel landed
			r.c.close()
			return
		}
		assert.ErrorIs(t, r.err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("copy still running 10s after cancel")
	}
}

func TestVerifyNamesFirstBadBlock(t *testing.T) {
	in := writeInput(t, 8*4096)
	o := testOptions(t, in)

	_, c, err := copyFile(context.Background(), o)
	require.NoError(t, err)
	defer c.close()

	_, err = c.out.WriteAt([]byte{0}, 5*4096+7)
	require.NoError(t, err)
	// make sure the byte really changed
	var b [1]byte
	_, err = c.in.ReadAt(b[:], 5*4096+7)
	require.NoError(t, err)
	if b[0] == 0 {
		_, err = c.out.WriteAt([]byte{1}, 5*4096+7)
		require.NoError(t, err)
	}

	err = verify(c.in, c.out, 0, 0, c.size, 4096)
	assert.ErrorContains(t, err, "block 5")
}
