package types

import (
	"fmt"
	"math"
	"sort"
)

// Observation is one entity's state as reported by the environment.
type Observation struct {
	Entity string             `json:"entity" yaml:"entity"`
	Attrs  map[string]float64 `json:"attrs" yaml:"attrs"`
}

// Validate rejects NaN and infinite attribute values.
func (o Observation) Validate() error {
	for _, p := range PredicatesFrom(o.Attrs) {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return fmt.Errorf("%s.%s is not finite: %v", o.Entity, p.Attr, p.Value)
		}
	}
	return nil
}

// Snapshot is everything the environment reports for one tick.
type Snapshot struct {
	Observations []Observation `json:"observations" yaml:"observations"`
}

// Normalized returns the observations sorted by entity with duplicates
// collapsed (the last report of an entity wins) and empty entities dropped.
// The kernel only ever consumes normalized snapshots, so map iteration order
// in callers cannot leak into kernel state.
func (s Snapshot) Normalized() []Observation {
	byEntity := make(map[string]Observation, len(s.Observations))
	for _, o := range s.Observations {
		if o.Entity == "" {
			continue
		}
		byEntity[o.Entity] = o
	}
	out := make([]Observation, 0, len(byEntity))
	for _, o := range byEntity {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}
