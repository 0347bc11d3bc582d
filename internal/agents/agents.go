// Package agents tracks per-entity state transitions and detects when
// entities move in step with each other.
package agents

import (
	"sort"

	"cogkernel/internal/config"
	"cogkernel/internal/logging"
	"cogkernel/internal/types"
)

// Class is the coordination category of a synchronized pair.
type Class uint8

const (
	ClassFlocking Class = iota
	ClassAvoidance
	ClassPursuit
	ClassOther
	numClasses
)

func (c Class) String() string {
	switch c {
	case ClassFlocking:
		return "flocking"
	case ClassAvoidance:
		return "avoidance"
	case ClassPursuit:
		return "pursuit"
	case ClassOther:
		return "other"
	default:
		return "unknown"
	}
}

// Event records one synchronized pair at a tick.
type Event struct {
	Tick     uint64  `json:"tick"`
	A        string  `json:"a"`
	B        string  `json:"b"`
	Strength float64 `json:"strength"`
	Lag      int64   `json:"lag"` // latest(A) - latest(B)
	Class    Class   `json:"class"`
}

type agent struct {
	last        types.Predicates
	seen        bool
	transitions []uint64 // ring of recent transition ticks, oldest first
}

func (a *agent) latest() (uint64, bool) {
	if len(a.transitions) == 0 {
		return 0, false
	}
	return a.transitions[len(a.transitions)-1], true
}

type pair struct{ a, b string }

// Tracker owns agent state and the coordination event log.
type Tracker struct {
	cfg       config.AgentsConfig
	maxAgents int
	maxEvents int
	agents    map[string]*agent
	rejected  int

	events     []Event // ring, oldest first
	classCount [numClasses]int
	lags       map[pair][]int64 // recent sync lags per pair
	evaluated  map[pair]uint64  // last transition tick already evaluated
	checks     int
	synced     int
}

// NewTracker returns an empty tracker.
func NewTracker(cfg config.AgentsConfig, maxAgents, maxEvents int) *Tracker {
	return &Tracker{
		cfg:       cfg,
		maxAgents: maxAgents,
		maxEvents: maxEvents,
		agents:    make(map[string]*agent),
		lags:      make(map[pair][]int64),
		evaluated: make(map[pair]uint64),
	}
}

// Observe records an entity's state at tick. It reports whether the state
// changed beyond tol since the previous observation. Entities beyond the
// agent bound are rejected and counted.
func (t *Tracker) Observe(entity string, state types.Predicates, tick uint64, tol float64) (bool, error) {
	a, ok := t.agents[entity]
	if !ok {
		if len(t.agents) >= t.maxAgents {
			t.rejected++
			return false, nil
		}
		a = &agent{}
		t.agents[entity] = a
	}

	changed := a.seen && !(a.last.Within(state, tol) && state.Within(a.last, tol))
	a.last = state.Clone()
	a.seen = true
	if !changed {
		return false, nil
	}
	a.transitions = append(a.transitions, tick)
	if len(a.transitions) > t.cfg.History {
		a.transitions = a.transitions[len(a.transitions)-t.cfg.History:]
	}
	return true, nil
}

func (t *Tracker) names() []string {
	out := make([]string, 0, len(t.agents))
	for n := range t.agents {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// strength is the share of transitions with a partner transition inside the
// sync window, over the larger of the two histories.
func (t *Tracker) strength(a, b *agent) float64 {
	den := len(a.transitions)
	if len(b.transitions) > den {
		den = len(b.transitions)
	}
	if den == 0 {
		return 0
	}
	matched := 0
	for _, ta := range a.transitions {
		for _, tb := range b.transitions {
			if abs64(int64(ta)-int64(tb)) < int64(t.cfg.SyncWindow) {
				matched++
				break
			}
		}
	}
	s := float64(matched) / float64(den)
	if s > 1 {
		s = 1
	}
	return s
}

// Coordinate evaluates every agent pair with a transition newer than its last
// evaluation and logs synchronized pairs as classified events.
func (t *Tracker) Coordinate(tick uint64) []Event {
	names := t.names()
	var out []Event
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, b := t.agents[names[i]], t.agents[names[j]]
			la, okA := a.latest()
			lb, okB := b.latest()
			if !okA || !okB {
				continue
			}
			key := pair{names[i], names[j]}
			newest := la
			if lb > newest {
				newest = lb
			}
			if newest <= t.evaluated[key] {
				continue
			}
			t.evaluated[key] = newest
			t.checks++

			lag := int64(la) - int64(lb)
			if abs64(lag) >= int64(t.cfg.SyncWindow) {
				continue
			}
			t.synced++

			lags := append(t.lags[key], lag)
			if len(lags) > t.cfg.History {
				lags = lags[len(lags)-t.cfg.History:]
			}
			t.lags[key] = lags

			ev := Event{Tick: tick, A: names[i], B: names[j], Strength: t.strength(a, b), Lag: lag}
			ev.Class = classify(ev.Strength, lags)
			t.record(ev)
			out = append(out, ev)
		}
	}
	if len(out) > 0 {
		logging.AgentsDebug("coordinate: tick=%d synchronized pairs=%d", tick, len(out))
	}
	return out
}

func classify(strength float64, lags []int64) Class {
	switch {
	case strength > 0.8:
		if leaderFollower(lags) {
			return ClassPursuit
		}
		return ClassFlocking
	case strength >= 0.5:
		return ClassAvoidance
	default:
		return ClassOther
	}
}

// leaderFollower reports whether every lag is non-zero with the same sign.
func leaderFollower(lags []int64) bool {
	if len(lags) == 0 {
		return false
	}
	sign := lags[0] > 0
	for _, l := range lags {
		if l == 0 || (l > 0) != sign {
			return false
		}
	}
	return true
}

func (t *Tracker) record(ev Event) {
	if len(t.events) >= t.maxEvents {
		t.events = t.events[1:]
	}
	t.events = append(t.events, ev)
	t.classCount[ev.Class]++
}

// Events copies the event log, oldest first.
func (t *Tracker) Events() []Event {
	return append([]Event(nil), t.events...)
}

// ClassCounts returns how many events of each class were ever logged.
func (t *Tracker) ClassCounts() map[Class]int {
	out := make(map[Class]int, numClasses)
	for c := Class(0); c < numClasses; c++ {
		out[c] = t.classCount[c]
	}
	return out
}

// SyncRate is synchronized evaluations over all pair evaluations.
func (t *Tracker) SyncRate() float64 {
	if t.checks == 0 {
		return 0
	}
	return float64(t.synced) / float64(t.checks)
}

// Agents is the number of tracked entities.
func (t *Tracker) Agents() int { return len(t.agents) }

// Rejected counts entities refused for lack of room.
func (t *Tracker) Rejected() int { return t.rejected }

// Clone deep-copies the tracker.
func (t *Tracker) Clone() *Tracker {
	c := &Tracker{
		cfg:        t.cfg,
		maxAgents:  t.maxAgents,
		maxEvents:  t.maxEvents,
		agents:     make(map[string]*agent, len(t.agents)),
		rejected:   t.rejected,
		events:     t.Events(),
		classCount: t.classCount,
		lags:       make(map[pair][]int64, len(t.lags)),
		evaluated:  make(map[pair]uint64, len(t.evaluated)),
		checks:     t.checks,
		synced:     t.synced,
	}
	for k, a := range t.agents {
		c.agents[k] = &agent{last: a.last.Clone(), seen: a.seen, transitions: append([]uint64(nil), a.transitions...)}
	}
	for k, v := range t.lags {
		c.lags[k] = append([]int64(nil), v...)
	}
	for k, v := range t.evaluated {
		c.evaluated[k] = v
	}
	return c
}
