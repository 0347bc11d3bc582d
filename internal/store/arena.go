package store

import "cogkernel/internal/types"

// Index is an opaque, stable handle into an Arena. It stays valid until the
// slot it names is freed; later allocations may reuse it.
type Index uint32

type slot[T any] struct {
	value T
	used  bool
}

// Arena is capped backing storage with a free-list. Slots grow lazily up to
// the cap; freed slots are reused before the backing slice grows.
type Arena[T any] struct {
	slots []slot[T]
	free  []Index
	cap   int
	live  int
}

// NewArena returns an empty arena holding at most capacity values.
func NewArena[T any](capacity int) *Arena[T] {
	return &Arena[T]{cap: capacity}
}

// Alloc stores v and returns its index.
func (a *Arena[T]) Alloc(v T) (Index, error) {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx] = slot[T]{value: v, used: true}
		a.live++
		return idx, nil
	}
	if len(a.slots) >= a.cap {
		return 0, types.CapacityFault("arena", a.cap)
	}
	a.slots = append(a.slots, slot[T]{value: v, used: true})
	a.live++
	return Index(len(a.slots) - 1), nil
}

// Free releases idx. Freeing an unused slot is a no-op returning false.
func (a *Arena[T]) Free(idx Index) bool {
	if int(idx) >= len(a.slots) || !a.slots[idx].used {
		return false
	}
	var zero T
	a.slots[idx] = slot[T]{value: zero}
	a.free = append(a.free, idx)
	a.live--
	return true
}

// Get returns the value at idx.
func (a *Arena[T]) Get(idx Index) (T, bool) {
	if int(idx) >= len(a.slots) || !a.slots[idx].used {
		var zero T
		return zero, false
	}
	return a.slots[idx].value, true
}

// Set overwrites the value at a live idx.
func (a *Arena[T]) Set(idx Index, v T) bool {
	if int(idx) >= len(a.slots) || !a.slots[idx].used {
		return false
	}
	a.slots[idx].value = v
	return true
}

// Each visits live slots in ascending index order until fn returns false.
func (a *Arena[T]) Each(fn func(Index, T) bool) {
	for i, s := range a.slots {
		if s.used && !fn(Index(i), s.value) {
			return
		}
	}
}

// Len is the number of live values.
func (a *Arena[T]) Len() int { return a.live }

// Cap is the maximum number of live values.
func (a *Arena[T]) Cap() int { return a.cap }

// Clone deep-copies the arena, using copyValue for each live value.
func (a *Arena[T]) Clone(copyValue func(T) T) *Arena[T] {
	c := &Arena[T]{
		slots: make([]slot[T], len(a.slots), cap(a.slots)),
		free:  append([]Index(nil), a.free...),
		cap:   a.cap,
		live:  a.live,
	}
	for i, s := range a.slots {
		if s.used {
			c.slots[i] = slot[T]{value: copyValue(s.value), used: true}
		}
	}
	return c
}
