package counterfactual

import (
	"errors"
	"testing"

	"cogkernel/internal/config"
	"cogkernel/internal/rng"
	"cogkernel/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cfg() config.CounterfactualConfig { return config.DefaultConfig().Counterfactual }

var baseline = Outcome{Canvas: 40, Sync: 0.8, Patterns: 6}

func TestNoOpScenarioHasZeroDivergence(t *testing.T) {
	r := NewReasoner(cfg(), 8)
	src := rng.New(1)

	sc, err := r.Evaluate(baseline, 5, []Intervention{{Kind: BlockEvent, Strength: 0}}, src)
	require.NoError(t, err)
	assert.InDelta(t, 0, sc.Divergence, 1e-12)
	assert.True(t, sc.Consistent)
	assert.Equal(t, uint64(0), src.Draws(), "inert scenarios draw no variance")
	assert.Empty(t, r.Links())
}

func TestDivergenceBounds(t *testing.T) {
	r := NewReasoner(cfg(), 64)
	src := rng.New(42)
	for i := 0; i < 50; i++ {
		sc, err := r.Explore(baseline, uint64(i+1), []string{"a", "b"}, src)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sc.Divergence, 0.0)
		assert.LessOrEqual(t, sc.Divergence, 1.0)
		assert.LessOrEqual(t, len(sc.Interventions), cfg().InterventionsPerScenario)
		for _, iv := range sc.Interventions {
			assert.GreaterOrEqual(t, iv.Strength, 0.1)
			assert.Less(t, iv.Strength, 1.0)
		}
	}
	assert.Equal(t, 50, r.Explored())
	assert.Len(t, r.Scenarios(), 50)
}

func TestDivergenceFormula(t *testing.T) {
	a := Outcome{Canvas: 10, Sync: 1, Patterns: 4}
	b := Outcome{Canvas: 5, Sync: 1, Patterns: 0}
	// 0.4*0.5 + 0.3*0 + 0.3*1
	assert.InDelta(t, 0.5, Divergence(a, b), 1e-12)
	assert.Equal(t, 0.0, Divergence(Outcome{}, Outcome{}))
}

func TestBranchProbabilityDecays(t *testing.T) {
	r := NewReasoner(cfg(), 8)
	ivs := []Intervention{
		{Kind: DisableAgent, Strength: 0.5},
		{Kind: ForceAction, Strength: 0.5},
		{Kind: InjectKnowledge, Strength: 0.5},
	}
	sc, err := r.Evaluate(baseline, 3, ivs, rng.New(3))
	require.NoError(t, err)
	require.Len(t, sc.Branches, 3)
	assert.Equal(t, uint64(0), sc.Branches[0].Parent)
	for i, b := range sc.Branches {
		assert.Equal(t, i+1, b.Depth)
		assert.InDelta(t, 1/(1+0.3*float64(i+1)), b.Probability, 1e-12)
		if i > 0 {
			assert.Equal(t, sc.Branches[i-1].ID, b.Parent)
			assert.Less(t, b.Probability, sc.Branches[i-1].Probability)
		}
	}
}

func TestStrongInterventionInfersLink(t *testing.T) {
	r := NewReasoner(cfg(), 8)
	sc, err := r.Evaluate(baseline, 4, []Intervention{{Kind: DisableAgent, Strength: 0.95}}, rng.New(9))
	require.NoError(t, err)
	require.GreaterOrEqual(t, sc.Divergence, cfg().CausalThreshold)

	links := r.Links()
	require.Len(t, links, 1)
	assert.Equal(t, ComponentSync, links[0].Cause)
	assert.NotEqual(t, links[0].Cause, links[0].Effect)
}

func TestInterventionCap(t *testing.T) {
	r := NewReasoner(cfg(), 8)
	_, err := r.Evaluate(baseline, 1, make([]Intervention, MaxInterventions+1), rng.New(1))
	assert.True(t, errors.Is(err, types.ErrInconsistent))
	_, err = r.Evaluate(baseline, 1, nil, rng.New(1))
	assert.Error(t, err)
}

func TestSameSeedSameScenarios(t *testing.T) {
	a, b := NewReasoner(cfg(), 8), NewReasoner(cfg(), 8)
	ra, rb := rng.New(42), rng.New(42)
	for i := 0; i < 5; i++ {
		sa, _ := a.Explore(baseline, uint64(i), []string{"x"}, ra)
		sb, _ := b.Explore(baseline, uint64(i), []string{"x"}, rb)
		assert.Equal(t, sa, sb)
	}
	assert.Equal(t, a.AverageDivergence(), b.AverageDivergence())
}
