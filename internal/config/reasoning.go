package config

import (
	"fmt"

	"cogkernel/internal/types"
)

// TieBreak chooses between equal-confidence matches in Store.Best.
type TieBreak string

const (
	TieBreakOldest TieBreak = "oldest" // lowest id wins
	TieBreakNewest TieBreak = "newest" // highest id wins
)

// PerceptionConfig configures fact intake and contradiction detection.
type PerceptionConfig struct {
	MismatchTolerance     float64  `yaml:"mismatch_tolerance"`     // max |predicted-observed| per attribute
	ObservationConfidence float64  `yaml:"observation_confidence"` // confidence of perceived facts
	FailureStep           float64  `yaml:"failure_step"`           // rule confidence lost per contradiction
	FrameRuleConfidence   float64  `yaml:"frame_rule_confidence"`  // "state persists" rules
	TieBreak              TieBreak `yaml:"tie_break"`
}

// PredictionConfig configures rule application.
type PredictionConfig struct {
	MaxChainDepth     int     `yaml:"max_chain_depth"`
	ShortcutThreshold float64 `yaml:"shortcut_threshold"` // compounded confidence needed to materialize a chain
}

// RepairConfig configures task consumption.
type RepairConfig struct {
	TasksPerTick          int     `yaml:"tasks_per_tick"`
	BacklogStep           int     `yaml:"backlog_step"` // one extra task per this many pending
	ExplanatoryConfidence float64 `yaml:"explanatory_confidence"`
}

// DreamerConfig configures hypothesis generation.
type DreamerConfig struct {
	CooccurrenceConfidence float64 `yaml:"cooccurrence_confidence"`
	AbstractConfidence     float64 `yaml:"abstract_confidence"`
	MaxProposalsPerTick    int     `yaml:"max_proposals_per_tick"`
	DerivedFactLimit       int     `yaml:"derived_fact_limit"` // Mangle gas limit for category derivation
}

func (c *Config) validateReasoning() error {
	checks := []error{
		unitInterval("perception.mismatch_tolerance", c.Perception.MismatchTolerance),
		unitInterval("perception.observation_confidence", c.Perception.ObservationConfidence),
		unitInterval("perception.failure_step", c.Perception.FailureStep),
		unitInterval("perception.frame_rule_confidence", c.Perception.FrameRuleConfidence),
		unitInterval("prediction.shortcut_threshold", c.Prediction.ShortcutThreshold),
		unitInterval("repair.explanatory_confidence", c.Repair.ExplanatoryConfidence),
		unitInterval("dreamer.cooccurrence_confidence", c.Dreamer.CooccurrenceConfidence),
		unitInterval("dreamer.abstract_confidence", c.Dreamer.AbstractConfidence),
		positive("prediction.max_chain_depth", c.Prediction.MaxChainDepth),
		positive("repair.tasks_per_tick", c.Repair.TasksPerTick),
		positive("repair.backlog_step", c.Repair.BacklogStep),
		positive("dreamer.derived_fact_limit", c.Dreamer.DerivedFactLimit),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if c.Dreamer.MaxProposalsPerTick < 0 {
		return types.ConfigFault("dreamer.max_proposals_per_tick", fmt.Errorf("must not be negative"))
	}
	switch c.Perception.TieBreak {
	case TieBreakOldest, TieBreakNewest:
	default:
		return types.ConfigFault("perception.tie_break", fmt.Errorf("unknown tie break %q", c.Perception.TieBreak))
	}
	if c.Dreamer.AbstractConfidence <= c.Dreamer.CooccurrenceConfidence {
		return types.ConfigFault("dreamer.abstract_confidence", fmt.Errorf("must exceed cooccurrence_confidence"))
	}
	return nil
}
