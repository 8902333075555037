package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Meesho/BharatMLStack/diskaio/internal/config"
)

type options struct {
	In, Out string

	Async  bool
	Direct bool
	Random bool
	Verify bool

	BS, IBS, OBS uint64
	Threads      int
	Count        int
	Skip, Seek   int

	Pprof       string
	CSV         string
	ReportEvery time.Duration
	Env         config.Env
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("diskaiobench", pflag.ContinueOnError)
	fs.StringP("if", "i", "", "input file or block device")
	fs.StringP("of", "o", "", "output file")
	fs.BoolP("async", "a", false, "go through the aio engine instead of pread/pwrite")
	fs.BoolP("direct", "d", false, "use O_DIRECT where block alignment allows")
	fs.BoolP("random", "r", false, "copy blocks in shuffled order")
	fs.Bool("verify", false, "hash source and destination ranges after copying")
	fs.StringP("bs", "b", "4k", "block size")
	fs.StringP("ibs", "I", "4k", "input block size, the unit of --skip")
	fs.StringP("obs", "O", "4k", "output block size, the unit of --seek")
	fs.IntP("thread", "t", 1, "number of copy workers")
	fs.IntP("count", "c", 0, "copy at most this many blocks, 0 = whole input")
	fs.IntP("skip", "p", 0, "skip this many ibs blocks of input")
	fs.IntP("seek", "k", 0, "skip this many obs blocks of output")
	fs.Int(config.KeyShards, 2, "engine shards")
	fs.Int(config.KeyDepth, 512, "in-flight requests per shard")
	fs.String(config.KeyLogLevel, "info", "log level")
	fs.String("pprof", "", "serve net/http/pprof on this address")
	fs.String("csv", "", "append the run's results to this CSV file")
	fs.Duration("report-interval", 0, "log progress at this interval, 0 = only at the end")
	return fs
}

// parseOptions parses args into v, so flags win over DISKAIO_* variables.
func parseOptions(args []string, v *viper.Viper) (options, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	// only explicitly set flags override the environment
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			_ = v.BindPFlag(f.Name, f)
		}
	})

	env, err := config.LoadFrom(v)
	if err != nil {
		return options{}, err
	}

	o := options{Env: env}
	o.In, _ = fs.GetString("if")
	o.Out, _ = fs.GetString("of")
	o.Async, _ = fs.GetBool("async")
	o.Direct, _ = fs.GetBool("direct")
	o.Random, _ = fs.GetBool("random")
	o.Verify, _ = fs.GetBool("verify")
	o.Threads, _ = fs.GetInt("thread")
	o.Count, _ = fs.GetInt("count")
	o.Skip, _ = fs.GetInt("skip")
	o.Seek, _ = fs.GetInt("seek")
	o.Pprof, _ = fs.GetString("pprof")
	o.CSV, _ = fs.GetString("csv")
	o.ReportEvery, _ = fs.GetDuration("report-interval")

	for name, dst := range map[string]*uint64{"bs": &o.BS, "ibs": &o.IBS, "obs": &o.OBS} {
		s, _ := fs.GetString(name)
		if *dst, err = parseSize(s); err != nil {
			return options{}, fmt.Errorf("--%s: %w", name, err)
		}
	}
	return o, o.validate()
}

func (o options) validate() error {
	switch {
	case o.In == "" || o.Out == "":
		return errors.New("both --if and --of are required")
	case o.BS == 0 || o.IBS == 0 || o.OBS == 0:
		return errors.New("block sizes must be positive")
	case o.Threads < 1:
		return fmt.Errorf("--thread=%d, need at least 1", o.Threads)
	case o.Count < 0 || o.Skip < 0 || o.Seek < 0:
		return errors.New("--count, --skip and --seek must not be negative")
	}
	return nil
}
