package planner

import (
	"errors"
	"testing"

	"cogkernel/internal/config"
	"cogkernel/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cfg() config.PlannerConfig { return config.DefaultConfig().Planner }

func TestRejectsBadRequests(t *testing.T) {
	p := New(cfg(), 64)
	_, err := p.Plan([]float64{0, 0, 0, 0}, []float64{1, 1, 1, 1}, 0)
	assert.True(t, errors.Is(err, types.ErrInconsistent))

	_, err = p.Plan([]float64{0, 0}, []float64{1, 1, 1, 1}, 5)
	assert.True(t, errors.Is(err, types.ErrInconsistent))

	_, err = New(cfg(), 1).Plan([]float64{0, 0, 0, 0}, []float64{1, 1, 1, 1}, 5)
	assert.True(t, errors.Is(err, types.ErrCapacityExceeded))
}

func TestEscalateClearsContradictions(t *testing.T) {
	c := cfg()
	c.ExplorationC = 0
	p := New(c, 512)

	start := []float64{0.5, 0.5, 0.5, 1}
	goal := []float64{0.5, 0.5, 0.5, 0}
	rec, err := p.Plan(start, goal, 6)
	require.NoError(t, err)

	assert.Equal(t, types.ActionEscalate, rec.Branch.Action)
	assert.Equal(t, 1, rec.Branch.Depth)
	assert.Equal(t, 0, rec.Branch.Parent)
	assert.Equal(t, 6, rec.Trajectory.Steps)
	assert.False(t, rec.Trajectory.Feasible, "0.5^6 is still above epsilon")
	assert.InDelta(t, 1-1.0/64, rec.Outcome.Quality, 1e-12)
	assert.True(t, rec.Outcome.Desirable)
	assert.Equal(t, []float64{0.5, 0.5, 0.5, 1}, start, "inputs are not modified")
}

func TestConvergesWithinBudget(t *testing.T) {
	p := New(cfg(), 512)
	rec, err := p.Plan([]float64{0.5, 0.5, 0.5, 1}, []float64{0.5, 0.5, 0.5, 0}, 20)
	require.NoError(t, err)
	if rec.Branch.Action == types.ActionEscalate {
		assert.True(t, rec.Trajectory.Feasible)
		assert.Equal(t, 7, rec.Trajectory.Steps)
		assert.Equal(t, 1.0, rec.Trajectory.SuccessProbability)
	}
	assert.LessOrEqual(t, rec.Nodes, cfg().Iterations+1)
	assert.GreaterOrEqual(t, rec.Outcome.Quality, 0.0)
	assert.LessOrEqual(t, rec.Outcome.Quality, 1.0)
}

func TestAtGoalIsTriviallyFeasible(t *testing.T) {
	s := []float64{0.2, 0.4, 0.6, 0.8}
	rec, err := New(cfg(), 64).Plan(s, s, 10)
	require.NoError(t, err)
	assert.True(t, rec.Trajectory.Feasible)
	assert.Equal(t, 0, rec.Trajectory.Steps)
	assert.Equal(t, 1.0, rec.Outcome.Quality)
	assert.Equal(t, 1.0, rec.Outcome.Probability)
}

func TestTreeIsBounded(t *testing.T) {
	rec, err := New(cfg(), 4).Plan([]float64{0, 0, 0, 1}, []float64{1, 1, 1, 0}, 10)
	require.NoError(t, err)
	assert.LessOrEqual(t, rec.Nodes, 4)
	assert.Less(t, int(rec.Branch.Action), 3, "only three root children fit")
}

func TestPlanIsDeterministic(t *testing.T) {
	p := New(cfg(), 512)
	start := []float64{0.9, 0.1, 0.3, 0.6}
	goal := []float64{0.5, 0.8, 0.7, 0}
	a, err := p.Plan(start, goal, 12)
	require.NoError(t, err)
	b, err := p.Plan(start, goal, 12)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestStepMovesTowardGoal(t *testing.T) {
	s := step([]float64{0, 0, 0, 1}, []float64{1, 1, 1, 0}, types.ActionCoordinate)
	g := Gains(types.ActionCoordinate)
	assert.Equal(t, []float64{g[0], g[1], g[2], 1 - g[3]}, s)
	assert.Equal(t, 0.5, Gains(types.ActionEscalate)[MetricContradictions])
}
