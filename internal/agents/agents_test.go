package agents

import (
	"testing"

	"cogkernel/internal/config"
	"cogkernel/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func state(v float64) types.Predicates {
	return types.PredicatesFrom(map[string]float64{"pos": v})
}

func cfg() config.AgentsConfig { return config.DefaultConfig().Agents }

func TestObserveTransitions(t *testing.T) {
	tr := NewTracker(cfg(), 4, 16)
	changed, err := tr.Observe("a", state(0), 1, 0.05)
	require.NoError(t, err)
	assert.False(t, changed, "first sighting is not a transition")

	changed, _ = tr.Observe("a", state(0.01), 2, 0.05)
	assert.False(t, changed, "within tolerance")

	changed, _ = tr.Observe("a", state(1), 3, 0.05)
	assert.True(t, changed)
}

func TestAgentBoundRejects(t *testing.T) {
	tr := NewTracker(cfg(), 1, 16)
	tr.Observe("a", state(0), 1, 0.05)
	tr.Observe("b", state(0), 1, 0.05)
	assert.Equal(t, 1, tr.Agents())
	assert.Equal(t, 1, tr.Rejected())
}

func TestFlockingWhenMovingTogether(t *testing.T) {
	tr := NewTracker(cfg(), 4, 16)
	var last []Event
	for tick := uint64(1); tick <= 6; tick++ {
		v := float64(tick % 2)
		tr.Observe("a", state(v), tick, 0.05)
		tr.Observe("b", state(v), tick, 0.05)
		if evs := tr.Coordinate(tick); len(evs) > 0 {
			last = evs
		}
	}
	require.Len(t, last, 1)
	assert.Equal(t, ClassFlocking, last[0].Class)
	assert.Equal(t, 1.0, last[0].Strength)
	assert.Equal(t, 1.0, tr.SyncRate())
	assert.Equal(t, 5, tr.ClassCounts()[ClassFlocking])
}

func TestPursuitWithConsistentLag(t *testing.T) {
	tr := NewTracker(cfg(), 4, 16)
	var last []Event
	for tick := uint64(1); tick <= 10; tick++ {
		// leader moves every fourth tick, follower one tick later
		tr.Observe("leader", state(float64(tick/4)), tick, 0.05)
		tr.Observe("follower", state(float64((tick-1)/4)), tick, 0.05)
		if evs := tr.Coordinate(tick); len(evs) > 0 {
			last = evs
		}
	}
	require.Len(t, last, 1)
	assert.Equal(t, uint64(9), last[0].Tick)
	assert.Equal(t, ClassPursuit, last[0].Class)
	assert.Equal(t, 1.0, last[0].Strength)
}

func TestClassifyBands(t *testing.T) {
	assert.Equal(t, ClassFlocking, classify(0.9, []int64{0, 1}))
	assert.Equal(t, ClassPursuit, classify(0.9, []int64{-1, -1}))
	assert.Equal(t, ClassAvoidance, classify(0.8, []int64{0}))
	assert.Equal(t, ClassAvoidance, classify(0.5, []int64{0}))
	assert.Equal(t, ClassOther, classify(0.49, []int64{0}))
}

func TestEventLogBounded(t *testing.T) {
	tr := NewTracker(cfg(), 4, 2)
	for tick := uint64(1); tick <= 8; tick++ {
		v := float64(tick % 2)
		tr.Observe("a", state(v), tick, 0.05)
		tr.Observe("b", state(v), tick, 0.05)
		tr.Coordinate(tick)
	}
	assert.Len(t, tr.Events(), 2)

	c := tr.Clone()
	c.Observe("z", state(0), 9, 0.05)
	assert.NotEqual(t, tr.Agents(), c.Agents())
}
