package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameSeedSameStream(t *testing.T) {
	a, b := New(42), New(42)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Float64(), b.Float64())
	}
	assert.Equal(t, uint64(100), a.Draws())
}

func TestDifferentSeedsDiffer(t *testing.T) {
	a, b := New(1), New(2)
	same := 0
	for i := 0; i < 32; i++ {
		if a.IntN(1<<30) == b.IntN(1<<30) {
			same++
		}
	}
	assert.Less(t, same, 32)
}

func TestCloneIsIndependent(t *testing.T) {
	a := New(7)
	a.Float64()
	c := a.Clone()

	want := a.Float64()
	assert.Equal(t, want, c.Float64(), "clone continues from the same position")

	c.Float64()
	c.Float64()
	assert.Equal(t, c.Clone().Float64(), c.Float64())
	assert.NotEqual(t, a.Draws(), c.Draws())
}

func TestStateRestore(t *testing.T) {
	s := New(9)
	state, err := s.State()
	require.NoError(t, err)
	first := s.Float64()

	require.NoError(t, s.Restore(state))
	assert.Equal(t, first, s.Float64())
	assert.Error(t, s.Restore([]byte("junk")))
}

func TestBetween(t *testing.T) {
	s := New(3)
	for i := 0; i < 50; i++ {
		v := s.Between(0.1, 1)
		assert.GreaterOrEqual(t, v, 0.1)
		assert.Less(t, v, 1.0)
	}
}
