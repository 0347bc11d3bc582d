package patterns

import (
	"sort"

	"cogkernel/internal/logging"
	"cogkernel/internal/types"
)

// MaxLevel is the top of the abstraction ladder. Level 0 is raw patterns.
const MaxLevel = 4

// MetaEvent is a compressed recurring unit. Level-1 sources are fact ids;
// higher levels point at the merged events of the level below.
type MetaEvent struct {
	ID         uint64   `json:"id"`
	Level      int      `json:"level"`
	Sources    []uint64 `json:"sources"`
	Confidence float64  `json:"confidence"`
	StartTick  uint64   `json:"start_tick"`
	Duration   uint64   `json:"duration"`
	CreatedAt  uint64   `json:"created_at"`
	Merged     bool     `json:"merged"`
}

func (e MetaEvent) end() uint64 { return e.StartTick + e.Duration }

func (e MetaEvent) clone() MetaEvent {
	e.Sources = append([]uint64(nil), e.Sources...)
	return e
}

// Ladder holds MetaEvents of levels 1..MaxLevel.
type Ladder struct {
	mergeWindow int
	max         int
	events      []MetaEvent // ascending id
	ids         *types.IDAllocator
	evicted     int
}

// NewLadder returns an empty ladder holding at most max events.
func NewLadder(mergeWindow, max int) *Ladder {
	return &Ladder{mergeWindow: mergeWindow, max: max, ids: types.NewIDAllocator()}
}

func (l *Ladder) add(level int, sources []uint64, conf float64, start, duration, tick uint64) MetaEvent {
	if len(l.events) >= l.max {
		if gone, ok := l.evict(); ok && gone.Level == level-1 {
			sources = without(sources, gone.ID)
		}
	}
	ev := MetaEvent{
		ID:         l.ids.Next(),
		Level:      level,
		Sources:    sources,
		Confidence: conf,
		StartTick:  start,
		Duration:   duration,
		CreatedAt:  tick,
	}
	l.events = append(l.events, ev)
	logging.PatternsDebug("ladder: level %d event %d (c=%.3f, start=%d)", level, ev.ID, conf, start)
	return ev.clone()
}

// evict drops the oldest event of the lowest populated level and removes it
// from the sources of the level above.
func (l *Ladder) evict() (MetaEvent, bool) {
	victim := -1
	for i, e := range l.events {
		if victim < 0 || e.Level < l.events[victim].Level {
			victim = i
		}
	}
	if victim < 0 {
		return MetaEvent{}, false
	}
	gone := l.events[victim]
	l.events = append(l.events[:victim], l.events[victim+1:]...)
	l.evicted++
	for i := range l.events {
		if l.events[i].Level == gone.Level+1 {
			l.events[i].Sources = without(l.events[i].Sources, gone.ID)
		}
	}
	return gone, true
}

func without(ids []uint64, id uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// merge pairs temporally close unmerged events level by level. Events
// created during this pass are not candidates, so promotion climbs at most
// one level per pass.
func (l *Ladder) merge(tick uint64) []MetaEvent {
	var created []MetaEvent
	for level := 1; level < MaxLevel; level++ {
		var cand []int
		for i, e := range l.events {
			if e.Level == level && !e.Merged && e.CreatedAt < tick {
				cand = append(cand, i)
			}
		}
		sort.SliceStable(cand, func(a, b int) bool {
			ea, eb := l.events[cand[a]], l.events[cand[b]]
			if ea.StartTick != eb.StartTick {
				return ea.StartTick < eb.StartTick
			}
			return ea.ID < eb.ID
		})

		for k := 0; k+1 < len(cand); {
			a, b := l.events[cand[k]], l.events[cand[k+1]]
			if b.StartTick-a.StartTick > uint64(l.mergeWindow) {
				k++
				continue
			}
			l.events[cand[k]].Merged = true
			l.events[cand[k+1]].Merged = true
			end := a.end()
			if b.end() > end {
				end = b.end()
			}
			created = append(created, MetaEvent{
				Level:      level + 1,
				Sources:    []uint64{a.ID, b.ID},
				Confidence: a.Confidence * b.Confidence,
				StartTick:  a.StartTick,
				Duration:   end - a.StartTick,
			})
			k += 2
		}
	}

	// Append after scanning so indices above stay valid.
	out := make([]MetaEvent, 0, len(created))
	for _, ev := range created {
		out = append(out, l.add(ev.Level, ev.Sources, ev.Confidence, ev.StartTick, ev.Duration, tick))
	}
	return out
}

// Events returns all events in id order.
func (l *Ladder) Events() []MetaEvent {
	out := make([]MetaEvent, len(l.events))
	for i, e := range l.events {
		out[i] = e.clone()
	}
	return out
}

// CountByLevel returns the number of events at each level, index 0 unused.
func (l *Ladder) CountByLevel() [MaxLevel + 1]int {
	var out [MaxLevel + 1]int
	for _, e := range l.events {
		out[e.Level]++
	}
	return out
}

// Len is the number of events held.
func (l *Ladder) Len() int { return len(l.events) }

// Evicted counts events dropped on overflow.
func (l *Ladder) Evicted() int { return l.evicted }

// Clone deep-copies the ladder.
func (l *Ladder) Clone() *Ladder {
	return &Ladder{
		mergeWindow: l.mergeWindow,
		max:         l.max,
		events:      l.Events(),
		ids:         l.ids.Clone(),
		evicted:     l.evicted,
	}
}
