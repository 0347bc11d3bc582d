// Package rng provides the single seedable random source owned by a kernel.
// Every random draw in a tick goes through one Source so that a seed and an
// environment trace fully determine the run.
package rng

import (
	"fmt"
	"math/rand/v2"
)

// Source is a PCG generator that can be cloned and serialized.
type Source struct {
	pcg   *rand.PCG
	r     *rand.Rand
	draws uint64
}

// New seeds a Source. The second PCG word is derived from the seed so that
// nearby seeds do not share a stream.
func New(seed uint64) *Source {
	pcg := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Source{pcg: pcg, r: rand.New(pcg)}
}

// Float64 returns a value in [0, 1).
func (s *Source) Float64() float64 {
	s.draws++
	return s.r.Float64()
}

// IntN returns a value in [0, n). n must be positive.
func (s *Source) IntN(n int) int {
	s.draws++
	return s.r.IntN(n)
}

// Between returns a value in [lo, hi).
func (s *Source) Between(lo, hi float64) float64 {
	return lo + (hi-lo)*s.Float64()
}

// Draws counts values handed out since construction.
func (s *Source) Draws() uint64 { return s.draws }

// Clone returns an independent Source at the same position in the stream.
func (s *Source) Clone() *Source {
	state, err := s.pcg.MarshalBinary()
	if err != nil {
		// PCG.MarshalBinary never fails.
		panic(fmt.Sprintf("rng: marshal state: %v", err))
	}
	c := &Source{pcg: &rand.PCG{}, draws: s.draws}
	if err := c.pcg.UnmarshalBinary(state); err != nil {
		panic(fmt.Sprintf("rng: unmarshal state: %v", err))
	}
	c.r = rand.New(c.pcg)
	return c
}

// State serializes the generator position.
func (s *Source) State() ([]byte, error) {
	return s.pcg.MarshalBinary()
}

// Restore rewinds the generator to a position captured by State.
func (s *Source) Restore(state []byte) error {
	if err := s.pcg.UnmarshalBinary(state); err != nil {
		return fmt.Errorf("rng: restore: %w", err)
	}
	return nil
}
