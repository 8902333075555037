//go:build linux
// +build linux

// Command diskaiobench copies a file or block device dd-style, either through
// the aio engine (--async) or with plain pread/pwrite, and reports throughput
// and per-block latency.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/Meesho/BharatMLStack/diskaio/internal/metrics"
	"github.com/Meesho/BharatMLStack/diskaio/pkg/engine"
	"github.com/Meesho/BharatMLStack/diskaio/pkg/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "diskaiobench: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	o, err := parseOptions(args, viper.New())
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(o.Env.LogLevel)
	log.Logger = logger.Default()

	if o.Pprof != "" {
		go func() {
			log.Info().Msgf("Starting pprof server on %s", o.Pprof)
			if err := http.ListenAndServe(o.Pprof, nil); err != nil {
				log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, c, err := copyFile(ctx, o)
	if err != nil {
		return err
	}
	defer c.close()

	mode := "sync"
	if o.Async {
		mode = "async"
	}
	fmt.Printf("%s copy: %d bytes in %d blocks, %v, %.1f MiB/s\n",
		mode, rep.Bytes, rep.Blocks, rep.Elapsed, rep.MiBps())
	rp25, rp50, rp99 := c.lat.ReadPercentiles()
	wp25, wp50, wp99 := c.lat.WritePercentiles()
	fmt.Printf("read  p25=%v p50=%v p99=%v\n", rp25, rp50, rp99)
	fmt.Printf("write p25=%v p50=%v p99=%v\n", wp25, wp50, wp99)

	if o.CSV != "" {
		res := metrics.Result{
			Mode: mode, Shards: o.Env.Shards, Depth: o.Env.Depth, Threads: o.Threads,
			BlockSize: o.BS, Random: o.Random, Direct: o.Direct,
			Bytes: rep.Bytes, Elapsed: rep.Elapsed, MiBps: rep.MiBps(),
			RP99: rp99, RP50: rp50, RP25: rp25, WP99: wp99, WP50: wp50, WP25: wp25,
		}
		if err := metrics.LogResultToCSV(o.CSV, res); err != nil {
			return err
		}
	}

	if o.Verify {
		if err := verify(c.in, c.out, c.skipOff, c.seekOff, c.size, int(o.BS)); err != nil {
			return err
		}
		fmt.Println("verify: ok")
	}
	return metrics.Close()
}

// copyFile runs one copy. In async mode it owns the engine and its reactor
// for the duration of the copy.
func copyFile(ctx context.Context, o options) (report, *copier, error) {
	if !o.Async {
		c, err := newCopier(o, nil)
		if err != nil {
			return report{}, nil, err
		}
		rep, err := c.run(ctx)
		if err != nil {
			c.close()
			return report{}, nil, err
		}
		return rep, c, nil
	}

	cfg := o.Env.EngineConfig()
	if cfg.Shards < 2 {
		// reads and writes get a shard each
		cfg.Shards = 2
	}
	eng, err := engine.New(cfg)
	if err != nil {
		return report{}, nil, err
	}
	// The reactor runs until every worker has returned, so requests already
	// submitted when ctx ends are still harvested. A failed reactor aborts the
	// copy and closes the engine, failing whatever the workers wait on.
	cctx, abort := context.WithCancelCause(ctx)
	defer abort(nil)
	rctx, stopReactor := context.WithCancel(context.Background())
	reactor := make(chan error, 1)
	go func() {
		err := eng.Run(rctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			abort(fmt.Errorf("reactor: %w", err))
			err = multierr.Append(err, eng.Close())
		}
		reactor <- err
	}()

	shutdown := func() error {
		stopReactor()
		rerr := <-reactor
		if errors.Is(rerr, context.Canceled) {
			rerr = nil
		}
		return multierr.Append(rerr, eng.Close())
	}

	c, err := newCopier(o, eng)
	if err != nil {
		return report{}, nil, multierr.Append(err, shutdown())
	}
	rep, err := c.run(cctx)
	if cause := context.Cause(cctx); err != nil && cause != nil && !errors.Is(cause, context.Canceled) {
		err = cause
	}
	if serr := shutdown(); err == nil {
		err = serr
	}
	if err != nil {
		c.close()
		return report{}, nil, err
	}
	return rep, c, nil
}
