package engine

// arena maps completion tokens carried through the kernel back to tasks.
// A token is generation<<32 | slot, so a stale or forged token never
// resolves to a task that has since reused the slot. Only the reactor
// touches an arena.
type arena struct {
	slots []arenaSlot
	free  []uint32
	live  int
}

type arenaSlot struct {
	t   *task
	gen uint32
}

func newArena(capacity int) arena {
	a := arena{
		slots: make([]arenaSlot, capacity),
		free:  make([]uint32, capacity),
	}
	// pop from the tail, so hand out slot 0 first
	for i := range a.free {
		a.free[i] = uint32(capacity - 1 - i)
	}
	return a
}

// put stores t and returns its token, or false when every slot is taken.
func (a *arena) put(t *task) (uint64, bool) {
	if len(a.free) == 0 {
		return 0, false
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	s := &a.slots[idx]
	s.gen++
	s.t = t
	a.live++
	return uint64(s.gen)<<32 | uint64(idx), true
}

// take resolves and frees a token.
func (a *arena) take(token uint64) (*task, bool) {
	idx := uint32(token)
	gen := uint32(token >> 32)
	if int(idx) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[idx]
	if s.t == nil || s.gen != gen {
		return nil, false
	}
	t := s.t
	s.t = nil
	a.free = append(a.free, idx)
	a.live--
	return t, true
}

// drain frees every live slot, handing its task to fn.
func (a *arena) drain(fn func(*task)) {
	for i := range a.slots {
		s := &a.slots[i]
		if s.t == nil {
			continue
		}
		t := s.t
		s.t = nil
		a.free = append(a.free, uint32(i))
		a.live--
		fn(t)
	}
}

func (a *arena) len() int {
	return a.live
}
