// Package history implements the short recent-selection memory used to
// damp repeat picks during queue refill, ported from playqueuehistory.py.
package history

import "math"

// Buffer is an insertion-ordered bounded queue of recently-added file
// paths. Capacity adapts to the candidate pool size each time CanAdd is
// consulted.
type Buffer struct {
	items []string
	limit int
}

// CapacityFor computes the capacity law from spec.md §3/§4.4 for a given
// candidate pool size.
func CapacityFor(poolSize int) int {
	switch {
	case poolSize == 1:
		return 1
	case poolSize < 5:
		return int(math.Ceil(float64(poolSize) / 2.0))
	default:
		cap := int(math.Ceil(float64(poolSize) * 0.75))
		if cap > 200 {
			cap = 200
		}
		return cap
	}
}

// CanAdd reports whether file may be added given a candidate pool of
// poolSize tracks. It recomputes the capacity law from spec.md §3/§4.4;
// a capacity change clears the buffer and returns true unconditionally
// (the rules effectively just changed). A pool of size 1 always returns
// true without touching the buffer's capacity, matching the upstream
// behavior this was ported from.
func (b *Buffer) CanAdd(file string, poolSize int) bool {
	if poolSize == 1 {
		return true
	}

	cap := CapacityFor(poolSize)
	if cap != b.limit {
		b.limit = cap
		b.items = nil
		return true
	}

	for _, f := range b.items {
		if f == file {
			return false
		}
	}
	return true
}

// StoreSong records file as recently added, evicting the oldest entry if
// the buffer is at capacity.
func (b *Buffer) StoreSong(file string) {
	if b.limit <= 0 {
		b.limit = 5
	}
	if len(b.items) >= b.limit {
		b.items = b.items[1:]
	}
	b.items = append(b.items, file)
}
