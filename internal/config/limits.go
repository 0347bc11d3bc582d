package config

import (
	"fmt"

	"cogkernel/internal/types"
)

// Capacities bounds every fixed-size container in the kernel.
type Capacities struct {
	Formulas           int `yaml:"formulas" json:"formulas"`                       // knowledge store slots
	Canvas             int `yaml:"canvas" json:"canvas"`                           // working memory items
	Tasks              int `yaml:"tasks" json:"tasks"`                             // pending repair tasks
	Patterns           int `yaml:"patterns" json:"patterns"`                       // mined sequences
	MetaEvents         int `yaml:"meta_events" json:"meta_events"`                 // abstraction ladder
	Agents             int `yaml:"agents" json:"agents"`                           // tracked agents
	CoordinationEvents int `yaml:"coordination_events" json:"coordination_events"` // sync event log
	Scenarios          int `yaml:"scenarios" json:"scenarios"`                     // counterfactual log
	PolicyStates       int `yaml:"policy_states" json:"policy_states"`             // Q-table rows
	Episodes           int `yaml:"episodes" json:"episodes"`                       // replay ring
	CausalNodes        int `yaml:"causal_nodes" json:"causal_nodes"`               // Bayesian network size
	PlanBranches       int `yaml:"plan_branches" json:"plan_branches"`             // planner tree nodes
}

// DefaultCapacities returns production defaults.
func DefaultCapacities() Capacities {
	return Capacities{
		Formulas:           4096,
		Canvas:             1024,
		Tasks:              64,
		Patterns:           256,
		MetaEvents:         128,
		Agents:             32,
		CoordinationEvents: 256,
		Scenarios:          64,
		PolicyStates:       256,
		Episodes:           256,
		CausalNodes:        16,
		PlanBranches:       512,
	}
}

// ValidateCapacities checks that every container has a positive size.
func (c *Config) ValidateCapacities() error {
	caps := []struct {
		name string
		v    int
	}{
		{"capacities.formulas", c.Capacities.Formulas},
		{"capacities.canvas", c.Capacities.Canvas},
		{"capacities.tasks", c.Capacities.Tasks},
		{"capacities.patterns", c.Capacities.Patterns},
		{"capacities.meta_events", c.Capacities.MetaEvents},
		{"capacities.agents", c.Capacities.Agents},
		{"capacities.coordination_events", c.Capacities.CoordinationEvents},
		{"capacities.scenarios", c.Capacities.Scenarios},
		{"capacities.policy_states", c.Capacities.PolicyStates},
		{"capacities.episodes", c.Capacities.Episodes},
		{"capacities.causal_nodes", c.Capacities.CausalNodes},
		{"capacities.plan_branches", c.Capacities.PlanBranches},
	}
	for _, cp := range caps {
		if cp.v <= 0 {
			return types.ConfigFault(cp.name, fmt.Errorf("must be positive, got %d", cp.v))
		}
	}
	// The abstraction ladder and the planner root need a minimum footprint.
	if c.Capacities.PlanBranches < len(types.AllActions())+1 {
		return types.ConfigFault("capacities.plan_branches", fmt.Errorf("must be at least %d", len(types.AllActions())+1))
	}
	if c.Capacities.CausalNodes < 5 {
		return types.ConfigFault("capacities.causal_nodes", fmt.Errorf("must be at least 5, got %d", c.Capacities.CausalNodes))
	}
	return nil
}
