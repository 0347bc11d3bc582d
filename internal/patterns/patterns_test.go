package patterns

import (
	"testing"

	"cogkernel/internal/config"
	"cogkernel/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultCfg() config.PatternsConfig {
	return config.DefaultConfig().Patterns
}

// oscillation returns subject a alternating between facts 1 and 2.
func oscillation(ticks int) []Observation {
	var obs []Observation
	for t := 1; t <= ticks; t++ {
		id := types.FormulaID(1)
		if t%2 == 0 {
			id = 2
		}
		obs = append(obs, Observation{Subject: "a", Fact: id, Tick: uint64(t), Confidence: 0.9})
	}
	return obs
}

func TestThreeStepConfidenceIsProduct(t *testing.T) {
	m := NewMiner(defaultCfg(), 64, 16)
	_, err := m.Mine(oscillation(3), 3, 6)
	require.NoError(t, err)

	var three *Pattern
	for _, p := range m.Patterns() {
		if len(p.Steps) == 3 {
			p := p
			three = &p
		}
	}
	require.NotNil(t, three)
	assert.Equal(t, []types.FormulaID{1, 2, 1}, three.Steps)
	assert.InDelta(t, 0.729, three.Confidence, 1e-12)
	assert.Less(t, three.Confidence, 0.9, "longer chains are trusted less")
}

func TestOccurrencesCountedOncePerStart(t *testing.T) {
	m := NewMiner(defaultCfg(), 64, 16)
	obs := oscillation(6)

	// Re-mining overlapping windows must not inflate counts.
	for now := uint64(1); now <= 6; now++ {
		_, err := m.Mine(obs[:now], now, 6)
		require.NoError(t, err)
	}
	counts := map[string]int{}
	for _, p := range m.Patterns() {
		counts[p.Key] = p.Count
	}
	assert.Equal(t, 3, counts["1>2"], "starts 1,3,5")
	assert.Equal(t, 2, counts["2>1"], "starts 2,4")
	assert.Equal(t, 2, counts["1>2>1"], "starts 1,3")
	assert.Equal(t, 2, counts["2>1>2"], "starts 2,4")
}

func TestWindowBoundsScan(t *testing.T) {
	m := NewMiner(defaultCfg(), 64, 16)
	_, err := m.Mine(oscillation(10), 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len(), "only ticks 9 and 10 are visible")
}

func TestPatternTableEvictsStalest(t *testing.T) {
	m := NewMiner(defaultCfg(), 2, 16)
	m.Mine([]Observation{{Subject: "a", Fact: 1, Tick: 1, Confidence: 1}, {Subject: "a", Fact: 2, Tick: 2, Confidence: 1}}, 2, 6)
	m.Mine([]Observation{{Subject: "b", Fact: 3, Tick: 3, Confidence: 1}, {Subject: "b", Fact: 4, Tick: 4, Confidence: 1}}, 4, 6)
	m.Mine([]Observation{{Subject: "c", Fact: 5, Tick: 5, Confidence: 1}, {Subject: "c", Fact: 6, Tick: 6, Confidence: 1}}, 6, 6)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 1, m.Evicted())
	for _, p := range m.Patterns() {
		assert.NotEqual(t, "1>2", p.Key)
	}
}

func TestPromotionAndMerge(t *testing.T) {
	m := NewMiner(defaultCfg(), 64, 16)
	obs := oscillation(6)
	for now := uint64(1); now <= 6; now++ {
		_, err := m.Mine(obs[:now], now, 6)
		require.NoError(t, err)
	}

	created := m.Abstract(6)
	require.Len(t, created, 2, "1>2>1 and 2>1>2 both recur")
	for _, ev := range created {
		assert.Equal(t, 1, ev.Level)
		assert.InDelta(t, 0.729, ev.Confidence, 1e-12)
	}

	again := m.Abstract(6)
	assert.Empty(t, again, "same-pass events are not merged and patterns promote once")

	merged := m.Abstract(7)
	require.Len(t, merged, 1)
	assert.Equal(t, 2, merged[0].Level)
	assert.InDelta(t, 0.729*0.729, merged[0].Confidence, 1e-12)
	assert.Equal(t, []uint64{created[0].ID, created[1].ID}, merged[0].Sources)

	levels := m.Ladder().CountByLevel()
	assert.Equal(t, 2, levels[1])
	assert.Equal(t, 1, levels[2])
}

func TestLadderEvictsLowestLevel(t *testing.T) {
	l := NewLadder(3, 2)
	a := l.add(2, nil, 0.5, 1, 1, 1)
	l.add(1, nil, 0.5, 1, 1, 1)
	l.add(1, nil, 0.5, 2, 1, 1)

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 1, l.Evicted())
	assert.Equal(t, a.ID, l.Events()[0].ID, "higher level survives")
}

func TestLadderEvictionClearsSources(t *testing.T) {
	l := NewLadder(3, 3)
	a := l.add(1, []uint64{10, 11}, 0.5, 1, 1, 1)
	b := l.add(1, []uint64{12, 13}, 0.5, 2, 1, 1)
	up := l.add(2, []uint64{a.ID, b.ID}, 0.25, 1, 2, 2)

	// Full: adding evicts a, the oldest level-1 event.
	c := l.add(1, []uint64{14, 15}, 0.5, 5, 1, 3)
	for _, e := range l.Events() {
		if e.ID == up.ID {
			assert.Equal(t, []uint64{b.ID}, e.Sources)
		}
		assert.NotEqual(t, a.ID, e.ID)
	}

	// A merged event whose source is evicted while it is added.
	top := l.add(2, []uint64{b.ID, c.ID}, 0.25, 2, 4, 4)
	assert.Equal(t, []uint64{c.ID}, top.Sources)
	live := make(map[uint64]bool)
	for _, e := range l.Events() {
		live[e.ID] = true
	}
	for _, e := range l.Events() {
		if e.Level < 2 {
			continue
		}
		for _, src := range e.Sources {
			assert.True(t, live[src], "event %d points at evicted %d", e.ID, src)
		}
	}
}

func TestMinerCloneIsolation(t *testing.T) {
	m := NewMiner(defaultCfg(), 64, 16)
	m.Mine(oscillation(3), 3, 6)
	c := m.Clone()
	c.Mine(oscillation(5), 5, 6)
	assert.NotEqual(t, m.Len(), c.Len())
}
