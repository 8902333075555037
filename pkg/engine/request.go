package engine

import "fmt"

// Op is the kind of request.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpPoll
	OpFsync
	OpFdsync
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpPoll:
		return "poll"
	case OpFsync:
		return "fsync"
	case OpFdsync:
		return "fdsync"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

func (o Op) valid() bool {
	return o >= OpRead && o <= OpFdsync
}

// Priority classes. Any integer is accepted as a hint and wrapped mod
// NumPriorities.
const (
	PriorityHigh = 0
	PriorityLow  = 1

	NumPriorities = 2
)

// Request describes one operation. Buf is read into / written from at
// Offset; for OpPoll, Events holds the requested mask (POLLIN, ...).
// Shard and Priority are hints: any value routes to hint mod N.
type Request struct {
	Op       Op
	Shard    int
	Priority int
	Fd       int
	Buf      []byte
	Offset   int64
	Events   uint32
}

// wrap is the non-negative remainder of x mod n.
func wrap(x, n int) int {
	r := x % n
	if r < 0 {
		r += n
	}
	return r
}
