package config

import (
	"fmt"

	"cogkernel/internal/types"
)

// PolicyConfig configures tabular Q-learning.
type PolicyConfig struct {
	Alpha   float64 `yaml:"alpha"`
	Gamma   float64 `yaml:"gamma"`
	Epsilon float64 `yaml:"epsilon"`
}

// BayesConfig configures the causal network.
type BayesConfig struct {
	ConfirmSupport int `yaml:"confirm_support"` // observations before an edge counts as confirmed
}

// PlannerConfig configures the scenario tree search.
type PlannerConfig struct {
	ExplorationC       float64 `yaml:"exploration_c"`
	Iterations         int     `yaml:"iterations"`
	MaxDepth           int     `yaml:"max_depth"`
	StepBudget         int     `yaml:"step_budget"`
	ConvergenceEpsilon float64 `yaml:"convergence_epsilon"`
}

func (c *Config) validateLearning() error {
	checks := []error{
		unitInterval("policy.alpha", c.Policy.Alpha),
		unitInterval("policy.gamma", c.Policy.Gamma),
		unitInterval("policy.epsilon", c.Policy.Epsilon),
		positive("bayes.confirm_support", c.Bayes.ConfirmSupport),
		positive("planner.iterations", c.Planner.Iterations),
		positive("planner.max_depth", c.Planner.MaxDepth),
		positive("planner.step_budget", c.Planner.StepBudget),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if c.Planner.ExplorationC < 0 {
		return types.ConfigFault("planner.exploration_c", fmt.Errorf("must not be negative"))
	}
	if c.Planner.ConvergenceEpsilon <= 0 {
		return types.ConfigFault("planner.convergence_epsilon", fmt.Errorf("must be positive"))
	}
	return nil
}
