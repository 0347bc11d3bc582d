// Package world provides deterministic synthetic environments that feed
// snapshots to the kernel, plus recorded traces that replay them.
package world

import (
	"fmt"
	"os"

	"cogkernel/internal/types"

	"gopkg.in/yaml.v3"
)

// Environment produces the observations for a tick.
type Environment interface {
	Snapshot(tick uint64) types.Snapshot
}

func entityName(i int) string {
	if i < 26 {
		return string(rune('a' + i))
	}
	return fmt.Sprintf("e%d", i)
}

func attrName(i int) string {
	attrs := []string{"x", "y", "z", "w", "u", "v"}
	if i < len(attrs) {
		return attrs[i]
	}
	return fmt.Sprintf("attr%d", i)
}

// Oscillator is N objects, each with its own attribute alternating 0/1.
// With PhaseShift set, object i is offset by i ticks.
type Oscillator struct {
	Objects    int
	PhaseShift bool
}

// Snapshot implements Environment.
func (o Oscillator) Snapshot(tick uint64) types.Snapshot {
	snap := types.Snapshot{Observations: make([]types.Observation, 0, o.Objects)}
	for i := 0; i < o.Objects; i++ {
		t := tick
		if o.PhaseShift {
			t += uint64(i)
		}
		snap.Observations = append(snap.Observations, types.Observation{
			Entity: entityName(i),
			Attrs:  map[string]float64{attrName(i): float64(t % 2)},
		})
	}
	return snap
}

// Flock is a leader that steps every Period ticks and Followers that copy it
// Lag ticks later each (follower i trails by i*Lag).
type Flock struct {
	Followers int
	Period    int
	Lag       int
}

// Snapshot implements Environment.
func (f Flock) Snapshot(tick uint64) types.Snapshot {
	period := uint64(max(1, f.Period))
	pos := func(trail uint64) float64 {
		if tick < trail {
			return 0
		}
		return float64((tick - trail) / period)
	}
	snap := types.Snapshot{Observations: []types.Observation{
		{Entity: "leader", Attrs: map[string]float64{"pos": pos(0)}},
	}}
	for i := 1; i <= f.Followers; i++ {
		snap.Observations = append(snap.Observations, types.Observation{
			Entity: fmt.Sprintf("follower%d", i),
			Attrs:  map[string]float64{"pos": pos(uint64(i * f.Lag))},
		})
	}
	return snap
}

// Trace replays recorded snapshots; tick 1 is the first entry. Ticks past
// the end observe nothing.
type Trace struct {
	Snapshots []types.Snapshot `yaml:"snapshots"`
}

// Snapshot implements Environment.
func (t *Trace) Snapshot(tick uint64) types.Snapshot {
	if tick == 0 || tick > uint64(len(t.Snapshots)) {
		return types.Snapshot{}
	}
	return t.Snapshots[tick-1]
}

// Record captures ticks 1..n of env.
func Record(env Environment, n int) *Trace {
	tr := &Trace{Snapshots: make([]types.Snapshot, 0, n)}
	for tick := uint64(1); tick <= uint64(n); tick++ {
		tr.Snapshots = append(tr.Snapshots, env.Snapshot(tick))
	}
	return tr
}

// LoadTrace reads a YAML trace file.
func LoadTrace(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	var tr Trace
	if err := yaml.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse trace: %w", err)
	}
	return &tr, nil
}

// Save writes the trace as YAML.
func (t *Trace) Save(path string) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}
	return nil
}

// Named builds a built-in environment by name.
func Named(name string, objects int) (Environment, error) {
	switch name {
	case "oscillator":
		return Oscillator{Objects: objects}, nil
	case "phased":
		return Oscillator{Objects: objects, PhaseShift: true}, nil
	case "flock":
		return Flock{Followers: max(1, objects-1), Period: 4, Lag: 1}, nil
	default:
		return nil, fmt.Errorf("unknown environment %q", name)
	}
}
