//go:build linux
// +build linux

package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Meesho/BharatMLStack/diskaio/internal/arrays"
	"github.com/Meesho/BharatMLStack/diskaio/internal/fs"
	"github.com/Meesho/BharatMLStack/diskaio/internal/metrics"
	"github.com/Meesho/BharatMLStack/diskaio/pkg/engine"
)

// Reads go to shard 0 and writes to shard 1, both at high priority.
const (
	readShard  = 0
	writeShard = 1
)

// copier moves size bytes from in+skipOff to out+seekOff in blocks of bs.
type copier struct {
	opts options
	eng  *engine.Engine // nil: synchronous pread/pwrite

	size    int64
	skipOff int64
	seekOff int64

	in, out             *os.File
	inDirect, outDirect *os.File // nil unless --direct took effect

	lat  *metrics.LatencyTracker
	done atomic.Int64 // bytes copied so far
}

type report struct {
	Bytes   int64
	Blocks  int64
	Elapsed time.Duration
}

func (r report) MiBps() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Bytes) / (1 << 20) / r.Elapsed.Seconds()
}

func newCopier(o options, eng *engine.Engine) (*copier, error) {
	c := &copier{
		opts:    o,
		eng:     eng,
		skipOff: int64(o.IBS) * int64(o.Skip),
		seekOff: int64(o.OBS) * int64(o.Seek),
		lat:     metrics.NewLatencyTracker(),
	}

	var err error
	if c.in, err = os.Open(o.In); err != nil {
		return nil, err
	}
	total, err := fs.Size(c.in)
	if err != nil {
		c.close()
		return nil, err
	}
	if c.skipOff >= total {
		c.close()
		return nil, fmt.Errorf("unable to skip %d bytes of %s (size %d)", c.skipOff, o.In, total)
	}
	c.size = total - c.skipOff
	if o.Count > 0 {
		c.size = min(c.size, int64(o.Count)*int64(o.BS))
	}

	if c.out, err = os.OpenFile(o.Out, os.O_RDWR|os.O_CREATE|os.O_TRUNC, fs.FILE_MODE); err != nil {
		c.close()
		return nil, err
	}
	if o.Direct {
		if c.inDirect, err = openDirect(o.In, os.O_RDONLY); err != nil {
			c.close()
			return nil, err
		}
		if c.outDirect, err = openDirect(o.Out, os.O_WRONLY); err != nil {
			c.close()
			return nil, err
		}
	}
	return c, nil
}

func openDirect(name string, flag int) (*os.File, error) {
	f, direct, err := fs.OpenFile(name, flag, true)
	if err != nil {
		return nil, err
	}
	if !direct {
		_ = f.Close()
		return nil, nil
	}
	return f, nil
}

func (c *copier) close() {
	for _, f := range []*os.File{c.in, c.out, c.inDirect, c.outDirect} {
		if f != nil {
			_ = f.Close()
		}
	}
}

func (c *copier) blocks() int64 {
	bs := int64(c.opts.BS)
	return (c.size + bs - 1) / bs
}

// run copies with opts.Threads workers. Worker w owns blocks w, w+T, w+2T...
func (c *copier) run(ctx context.Context) (report, error) {
	start := time.Now()
	if c.opts.ReportEvery > 0 {
		rctx, stop := context.WithCancel(ctx)
		defer stop()
		r := &metrics.Reporter{Interval: c.opts.ReportEvery, Sample: c.snapshot}
		go r.Run(rctx)
	}

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < c.opts.Threads; w++ {
		g.Go(func() error {
			return c.worker(ctx, w)
		})
	}
	err := g.Wait()
	return report{Bytes: c.done.Load(), Blocks: c.blocks(), Elapsed: time.Since(start)}, err
}

func (c *copier) worker(ctx context.Context, w int) error {
	var order []int64
	for j := int64(w); j < c.blocks(); j += int64(c.opts.Threads) {
		order = append(order, j)
	}
	if c.opts.Random {
		arrays.Shuffle(order, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(w))))
	}

	page, err := fs.NewAlignedPage(int(c.opts.BS))
	if err != nil {
		return err
	}
	defer page.Unmap()

	bs := int64(c.opts.BS)
	for _, j := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		off := j * bs
		data := page.Buf[:min(bs, c.size-off)]
		if err := c.copyBlock(data, off); err != nil {
			log.Error().Err(err).Int("worker", w).Int64("block", j).Msg("copy failed")
			return err
		}
	}
	return nil
}

func (c *copier) copyBlock(data []byte, off int64) error {
	inOff, outOff := c.skipOff+off, c.seekOff+off

	start := time.Now()
	n, err := c.transfer(engine.OpRead, readShard, pick(c.in, c.inDirect, data, inOff), data, inOff)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short read at %d: %d of %d bytes", inOff, n, len(data))
	}
	c.lat.RecordRead(time.Since(start))

	start = time.Now()
	n, err = c.transfer(engine.OpWrite, writeShard, pick(c.out, c.outDirect, data, outOff), data, outOff)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short write at %d: %d of %d bytes", outOff, n, len(data))
	}
	c.lat.RecordWrite(time.Since(start))
	c.done.Add(int64(len(data)))
	return nil
}

func (c *copier) snapshot() metrics.Snapshot {
	s := metrics.Snapshot{Bytes: c.done.Load()}
	s.RP25, s.RP50, s.RP99 = c.lat.ReadPercentiles()
	s.WP25, s.WP50, s.WP99 = c.lat.WritePercentiles()
	return s
}

// pick uses the O_DIRECT descriptor only for transfers it can carry.
func pick(buffered, direct *os.File, data []byte, off int64) int {
	if direct != nil && fs.CanDirect(data, off) {
		return int(direct.Fd())
	}
	return int(buffered.Fd())
}

func (c *copier) transfer(op engine.Op, shard, fd int, data []byte, off int64) (int, error) {
	if c.eng != nil {
		return c.eng.SubmitAndWait(engine.Request{
			Op:       op,
			Shard:    shard,
			Priority: engine.PriorityHigh,
			Fd:       fd,
			Buf:      data,
			Offset:   off,
		})
	}
	if op == engine.OpWrite {
		return fs.Pwrite(fd, data, off)
	}
	return fs.Pread(fd, data, off)
}
