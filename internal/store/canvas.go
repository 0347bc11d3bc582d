package store

import (
	"iter"

	"cogkernel/internal/types"
)

// ItemKind tags a canvas entry.
type ItemKind uint8

const (
	ItemObservation ItemKind = iota + 1
	ItemPrediction
	ItemDream
)

func (k ItemKind) String() string {
	switch k {
	case ItemObservation:
		return "observation"
	case ItemPrediction:
		return "prediction"
	case ItemDream:
		return "dream"
	default:
		return "unknown"
	}
}

// Item is one working-memory entry. It refers to the store by id only.
type Item struct {
	Formula    types.FormulaID `json:"formula"`
	Kind       ItemKind        `json:"kind"`
	Source     types.FormulaID `json:"source,omitempty"` // producing rule, predictions only
	ValidFrom  uint64          `json:"valid_from"`
	ValidUntil uint64          `json:"valid_until"`
}

// Canvas is a fixed-size ring of Items ordered oldest to newest.
type Canvas struct {
	buf   []Item
	head  int // index of the oldest item
	size  int
	total uint64 // items ever pushed
}

// NewCanvas returns an empty canvas holding at most capacity items.
func NewCanvas(capacity int) *Canvas {
	return &Canvas{buf: make([]Item, capacity)}
}

// Push appends item. When the canvas is full the oldest item is evicted and
// returned with ok=true.
func (c *Canvas) Push(item Item) (evicted Item, ok bool) {
	c.total++
	if c.size < len(c.buf) {
		c.buf[(c.head+c.size)%len(c.buf)] = item
		c.size++
		return Item{}, false
	}
	evicted = c.buf[c.head]
	c.buf[c.head] = item
	c.head = (c.head + 1) % len(c.buf)
	return evicted, true
}

func (c *Canvas) at(i int) Item {
	return c.buf[(c.head+i)%len(c.buf)]
}

// Scan lazily yields items satisfying match, oldest first. A nil match
// yields everything.
func (c *Canvas) Scan(match func(Item) bool) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		for i := 0; i < c.size; i++ {
			it := c.at(i)
			if match != nil && !match(it) {
				continue
			}
			if !yield(it) {
				return
			}
		}
	}
}

// Due yields predictions that become checkable at tick.
func (c *Canvas) Due(tick uint64) iter.Seq[Item] {
	return c.Scan(func(it Item) bool { return it.Kind == ItemPrediction && it.ValidFrom == tick })
}

// Since yields items of kind whose ValidFrom is at least from.
func (c *Canvas) Since(kind ItemKind, from uint64) iter.Seq[Item] {
	return c.Scan(func(it Item) bool { return it.Kind == kind && it.ValidFrom >= from })
}

// Snapshot copies the canvas, oldest first.
func (c *Canvas) Snapshot() []Item {
	out := make([]Item, 0, c.size)
	for it := range c.Scan(nil) {
		out = append(out, it)
	}
	return out
}

// References reports whether any item mentions id.
func (c *Canvas) References(id types.FormulaID) bool {
	for it := range c.Scan(nil) {
		if it.Formula == id || it.Source == id {
			return true
		}
	}
	return false
}

// Pinned returns the ids still needed from tick next on: the formula and
// source of every prediction not yet due, and every observation made within
// the last window ticks.
func (c *Canvas) Pinned(next uint64, window int) map[types.FormulaID]bool {
	out := make(map[types.FormulaID]bool)
	for it := range c.Scan(nil) {
		switch it.Kind {
		case ItemPrediction:
			if it.ValidFrom >= next {
				out[it.Formula] = true
				out[it.Source] = true
			}
		case ItemObservation:
			if it.ValidFrom+uint64(window) > next {
				out[it.Formula] = true
			}
		}
	}
	return out
}

// Purge removes every item matching drop, keeping the rest in order.
// Returns the number removed.
func (c *Canvas) Purge(drop func(Item) bool) int {
	kept := make([]Item, 0, c.size)
	for it := range c.Scan(nil) {
		if !drop(it) {
			kept = append(kept, it)
		}
	}
	removed := c.size - len(kept)
	if removed == 0 {
		return 0
	}
	clear(c.buf)
	copy(c.buf, kept)
	c.head = 0
	c.size = len(kept)
	return removed
}

// Len is the number of live items.
func (c *Canvas) Len() int { return c.size }

// Cap is the ring size.
func (c *Canvas) Cap() int { return len(c.buf) }

// Total counts every push since construction, evicted or not.
func (c *Canvas) Total() uint64 { return c.total }

// Clone deep-copies the canvas.
func (c *Canvas) Clone() *Canvas {
	out := *c
	out.buf = append([]Item(nil), c.buf...)
	return &out
}
