// Package patterns mines short behavioural sequences from the canvas and
// compresses recurring ones into a fixed ladder of MetaEvents.
package patterns

import (
	"fmt"
	"sort"
	"strings"

	"cogkernel/internal/config"
	"cogkernel/internal/logging"
	"cogkernel/internal/types"
)

// Observation is one canvas observation as seen by the miner.
type Observation struct {
	Subject    string
	Fact       types.FormulaID
	Tick       uint64
	Confidence float64
}

// Pattern is an ordered 2- or 3-step sequence of facts of one subject.
type Pattern struct {
	Key        string            `json:"key"`
	Steps      []types.FormulaID `json:"steps"`
	Confidence float64           `json:"confidence"` // product of step confidences
	Count      int               `json:"count"`      // occurrences, one per start tick
	FirstSeen  uint64            `json:"first_seen"`
	LastSeen   uint64            `json:"last_seen"`
	LastStart  uint64            `json:"last_start"`
	LastEnd    uint64            `json:"last_end"`
	Promoted   bool              `json:"promoted"`
}

func (p Pattern) clone() Pattern {
	p.Steps = append([]types.FormulaID(nil), p.Steps...)
	return p
}

func patternKey(steps []Observation) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = fmt.Sprint(uint64(s.Fact))
	}
	return strings.Join(parts, ">")
}

// Miner holds the pattern table and the abstraction ladder.
type Miner struct {
	cfg         config.PatternsConfig
	maxPatterns int
	patterns    map[string]*Pattern
	evicted     int
	ladder      *Ladder
}

// NewMiner returns an empty miner.
func NewMiner(cfg config.PatternsConfig, maxPatterns, maxMetaEvents int) *Miner {
	return &Miner{
		cfg:         cfg,
		maxPatterns: maxPatterns,
		patterns:    make(map[string]*Pattern),
		ladder:      NewLadder(cfg.MergeWindow, maxMetaEvents),
	}
}

// Mine scans observations from the last window ticks (ending at now) and
// records every consecutive 2- and 3-step sequence per subject. It returns
// the number of new occurrences counted.
func (m *Miner) Mine(obs []Observation, now uint64, window int) (int, error) {
	var from uint64
	if now > uint64(window) {
		from = now - uint64(window) + 1
	}

	bySubject := make(map[string][]Observation)
	for _, o := range obs {
		if o.Tick < from || o.Tick > now {
			continue
		}
		bySubject[o.Subject] = append(bySubject[o.Subject], o)
	}
	subjects := make([]string, 0, len(bySubject))
	for s := range bySubject {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)

	found := 0
	for _, subj := range subjects {
		seq := bySubject[subj]
		sort.SliceStable(seq, func(i, j int) bool { return seq[i].Tick < seq[j].Tick })
		for i := range seq {
			for n := 2; n <= 3 && i+n <= len(seq); n++ {
				counted, err := m.record(seq[i:i+n], now)
				if err != nil {
					return found, err
				}
				if counted {
					found++
				}
			}
		}
	}
	if found > 0 {
		logging.PatternsDebug("mine: tick=%d window=%d new occurrences=%d patterns=%d", now, window, found, len(m.patterns))
	}
	return found, nil
}

func (m *Miner) record(steps []Observation, now uint64) (bool, error) {
	key := patternKey(steps)
	start, end := steps[0].Tick, steps[len(steps)-1].Tick

	p, ok := m.patterns[key]
	if !ok {
		if len(m.patterns) >= m.maxPatterns {
			m.evictStalest()
		}
		conf := 1.0
		ids := make([]types.FormulaID, len(steps))
		for i, s := range steps {
			conf *= s.Confidence
			ids[i] = s.Fact
		}
		if conf < 0 || conf > 1 {
			return false, types.InconsistentFault("patterns", 0, fmt.Errorf("pattern %s confidence %v", key, conf))
		}
		p = &Pattern{Key: key, Steps: ids, Confidence: conf, FirstSeen: now}
		m.patterns[key] = p
	}
	p.LastSeen = now
	// Windows overlap between passes; count each start tick once.
	if start <= p.LastStart {
		return false, nil
	}
	p.Count++
	p.LastStart, p.LastEnd = start, end
	return true, nil
}

func (m *Miner) evictStalest() {
	var victim *Pattern
	for _, p := range m.patterns {
		if victim == nil || p.LastSeen < victim.LastSeen || (p.LastSeen == victim.LastSeen && p.Key < victim.Key) {
			victim = p
		}
	}
	if victim != nil {
		delete(m.patterns, victim.Key)
		m.evicted++
	}
}

// Abstract promotes recurring 3-step patterns to level-1 MetaEvents and then
// runs one merge pass up the ladder. It returns the events created.
func (m *Miner) Abstract(tick uint64) []MetaEvent {
	var created []MetaEvent
	for _, p := range m.Patterns() {
		if len(p.Steps) != 3 || p.Promoted || p.Count < m.cfg.PromotionCount {
			continue
		}
		sources := make([]uint64, len(p.Steps))
		for i, s := range p.Steps {
			sources[i] = uint64(s)
		}
		ev := m.ladder.add(1, sources, p.Confidence, p.LastStart, p.LastEnd-p.LastStart+1, tick)
		m.patterns[p.Key].Promoted = true
		created = append(created, ev)
	}
	created = append(created, m.ladder.merge(tick)...)
	return created
}

// Patterns returns every pattern sorted by key.
func (m *Miner) Patterns() []Pattern {
	out := make([]Pattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Ladder exposes the abstraction ladder.
func (m *Miner) Ladder() *Ladder { return m.ladder }

// Len is the number of distinct patterns held.
func (m *Miner) Len() int { return len(m.patterns) }

// Evicted counts patterns dropped on overflow.
func (m *Miner) Evicted() int { return m.evicted }

// Clone deep-copies the miner.
func (m *Miner) Clone() *Miner {
	c := &Miner{
		cfg:         m.cfg,
		maxPatterns: m.maxPatterns,
		patterns:    make(map[string]*Pattern, len(m.patterns)),
		evicted:     m.evicted,
		ladder:      m.ladder.Clone(),
	}
	for k, p := range m.patterns {
		cp := p.clone()
		c.patterns[k] = &cp
	}
	return c
}
