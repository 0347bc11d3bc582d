package config

import (
	"fmt"

	"cogkernel/internal/types"
)

// PatternsConfig configures sequence mining and abstraction.
type PatternsConfig struct {
	Window         int `yaml:"window"`          // ticks of canvas history scanned
	PromotionCount int `yaml:"promotion_count"` // occurrences before a 3-step pattern becomes a MetaEvent
	MergeWindow    int `yaml:"merge_window"`    // max start-tick distance for merging MetaEvents
}

// AgentsConfig configures multi-agent coordination.
type AgentsConfig struct {
	SyncWindow int `yaml:"sync_window"` // transitions closer than this are synchronized
	History    int `yaml:"history"`     // transitions kept per agent
}

// CounterfactualConfig configures what-if scenarios.
type CounterfactualConfig struct {
	InterventionsPerScenario int     `yaml:"interventions_per_scenario"`
	ConsistencyThreshold     float64 `yaml:"consistency_threshold"`
	CausalThreshold          float64 `yaml:"causal_threshold"`
	Variance                 float64 `yaml:"variance"`
}

// AdaptiveConfig configures granularity switching.
type AdaptiveConfig struct {
	InitialLevel   int     `yaml:"initial_level"`
	HighDivergence float64 `yaml:"high_divergence"`
	LowDivergence  float64 `yaml:"low_divergence"`
	HighComplexity float64 `yaml:"high_complexity"`
	LowComplexity  float64 `yaml:"low_complexity"`
	HighSync       float64 `yaml:"high_sync"`
	Cooldown       int     `yaml:"cooldown"` // evaluations between switches
}

func (c *Config) validateAnalytics() error {
	if err := c.validateSchedule(); err != nil {
		return err
	}
	checks := []error{
		positive("patterns.window", c.Patterns.Window),
		positive("patterns.promotion_count", c.Patterns.PromotionCount),
		positive("patterns.merge_window", c.Patterns.MergeWindow),
		positive("agents.sync_window", c.Agents.SyncWindow),
		positive("agents.history", c.Agents.History),
		positive("counterfactual.interventions_per_scenario", c.Counterfactual.InterventionsPerScenario),
		unitInterval("counterfactual.consistency_threshold", c.Counterfactual.ConsistencyThreshold),
		unitInterval("counterfactual.causal_threshold", c.Counterfactual.CausalThreshold),
		unitInterval("counterfactual.variance", c.Counterfactual.Variance),
		unitInterval("adaptive.high_divergence", c.Adaptive.HighDivergence),
		unitInterval("adaptive.low_divergence", c.Adaptive.LowDivergence),
		unitInterval("adaptive.high_complexity", c.Adaptive.HighComplexity),
		unitInterval("adaptive.low_complexity", c.Adaptive.LowComplexity),
		unitInterval("adaptive.high_sync", c.Adaptive.HighSync),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if c.Counterfactual.InterventionsPerScenario > 50 {
		return types.ConfigFault("counterfactual.interventions_per_scenario", fmt.Errorf("at most 50, got %d", c.Counterfactual.InterventionsPerScenario))
	}
	if c.Adaptive.InitialLevel < 0 || c.Adaptive.InitialLevel > 7 {
		return types.ConfigFault("adaptive.initial_level", fmt.Errorf("must be in 0..7, got %d", c.Adaptive.InitialLevel))
	}
	if c.Adaptive.Cooldown < 0 {
		return types.ConfigFault("adaptive.cooldown", fmt.Errorf("must not be negative"))
	}
	return nil
}
