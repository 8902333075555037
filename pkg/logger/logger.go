// Package logger is the diagnostics facade used by the engine. Messages go
// either to a user supplied Sink or, by default, to standard output.
package logger

import (
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// CallSite identifies where a message was logged.
type CallSite struct {
	Func string
	File string
	Line int
}

// Sink receives every enabled message with its severity and call site.
type Sink func(level zerolog.Level, site CallSite, msg string)

var (
	mu      sync.RWMutex
	current = New(nil)
)

// New builds a logger. With a nil sink it writes human readable lines to
// stdout; otherwise output is discarded and each event is handed to sink.
func New(sink Sink) zerolog.Logger {
	if sink == nil {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Caller().Logger()
	}
	return zerolog.New(io.Discard).Hook(sinkHook{sink: sink})
}

// Configure replaces the process-wide default. A nil sink restores stdout.
func Configure(sink Sink) {
	l := New(sink)
	mu.Lock()
	current = l
	mu.Unlock()
}

// Default returns the process-wide logger set by Configure.
func Default() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

type sinkHook struct {
	sink Sink
}

func (h sinkHook) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	h.sink(level, callSite(), msg)
}

// callSite walks out of zerolog and this package to the first caller frame.
func callSite() CallSite {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !isInternalFrame(f.Function) {
			return CallSite{Func: f.Function, File: f.File, Line: f.Line}
		}
		if !more {
			return CallSite{}
		}
	}
}

func isInternalFrame(fn string) bool {
	return strings.HasPrefix(fn, "github.com/rs/zerolog") ||
		strings.HasPrefix(fn, "github.com/Meesho/BharatMLStack/diskaio/pkg/logger.")
}
