package config

import (
	"fmt"
	"os"
	"path/filepath"

	"cogkernel/internal/types"

	"gopkg.in/yaml.v3"
)

// Config holds all cogkernel configuration.
type Config struct {
	// Core settings
	Name string `yaml:"name"`
	Seed uint64 `yaml:"seed"`

	// Fixed container sizes
	Capacities Capacities `yaml:"capacities"`

	// Per-tick reasoning
	Perception PerceptionConfig `yaml:"perception"`
	Prediction PredictionConfig `yaml:"prediction"`
	Repair     RepairConfig     `yaml:"repair"`
	Dreamer    DreamerConfig    `yaml:"dreamer"`

	// Periodic analytics
	Schedule       ScheduleConfig       `yaml:"schedule"`
	Patterns       PatternsConfig       `yaml:"patterns"`
	Agents         AgentsConfig         `yaml:"agents"`
	Counterfactual CounterfactualConfig `yaml:"counterfactual"`
	Adaptive       AdaptiveConfig       `yaml:"adaptive"`
	Policy         PolicyConfig         `yaml:"policy"`
	Bayes          BayesConfig          `yaml:"bayes"`
	Planner        PlannerConfig        `yaml:"planner"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ScheduleConfig sets how often the periodic modules run, in ticks.
type ScheduleConfig struct {
	CounterfactualInterval int     `yaml:"counterfactual_interval"`
	AdaptiveInterval       int     `yaml:"adaptive_interval"`
	PolicyInterval         int     `yaml:"policy_interval"`
	BayesInterval          int     `yaml:"bayes_interval"`
	PlanInterval           int     `yaml:"plan_interval"`
	ConsolidateWatermark   float64 `yaml:"consolidate_watermark"` // store occupancy that triggers pruning
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "cogkernel",
		Seed: 42,

		Capacities: DefaultCapacities(),

		Perception: PerceptionConfig{
			MismatchTolerance:     0.05,
			ObservationConfidence: 0.9,
			FailureStep:           0.1,
			FrameRuleConfidence:   0.5,
			TieBreak:              TieBreakOldest,
		},
		Prediction: PredictionConfig{
			MaxChainDepth:     3,
			ShortcutThreshold: 0.3,
		},
		Repair: RepairConfig{
			TasksPerTick:          1,
			BacklogStep:           8,
			ExplanatoryConfidence: 0.5,
		},
		Dreamer: DreamerConfig{
			CooccurrenceConfidence: 0.3,
			AbstractConfidence:     0.6,
			MaxProposalsPerTick:    2,
			DerivedFactLimit:       100000,
		},

		Schedule: ScheduleConfig{
			CounterfactualInterval: 5,
			AdaptiveInterval:       5,
			PolicyInterval:         2,
			BayesInterval:          5,
			PlanInterval:           10,
			ConsolidateWatermark:   0.9,
		},
		Patterns: PatternsConfig{
			Window:         6,
			PromotionCount: 2,
			MergeWindow:    3,
		},
		Agents: AgentsConfig{
			SyncWindow: 2,
			History:    16,
		},
		Counterfactual: CounterfactualConfig{
			InterventionsPerScenario: 3,
			ConsistencyThreshold:     0.1,
			CausalThreshold:          0.2,
			Variance:                 0.1,
		},
		Adaptive: AdaptiveConfig{
			InitialLevel:   0,
			HighDivergence: 0.5,
			LowDivergence:  0.1,
			HighComplexity: 0.8,
			LowComplexity:  0.3,
			HighSync:       0.8,
			Cooldown:       2,
		},
		Policy: PolicyConfig{
			Alpha:   0.1,
			Gamma:   0.9,
			Epsilon: 0.2,
		},
		Bayes: BayesConfig{
			ConfirmSupport: 2,
		},
		Planner: PlannerConfig{
			ExplorationC:       1.41,
			Iterations:         96,
			MaxDepth:           3,
			StepBudget:         20,
			ConvergenceEpsilon: 0.01,
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			DebugMode: false,
		},
	}
}

// Load loads configuration from a YAML file. Values missing from the file keep
// their defaults; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := c.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Unmarshal decodes YAML produced by Marshal on top of the defaults.
func Unmarshal(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration. Every failure unwraps to
// types.ErrConfig and names the offending field.
func (c *Config) Validate() error {
	if err := c.ValidateCapacities(); err != nil {
		return err
	}
	if err := c.validateReasoning(); err != nil {
		return err
	}
	if err := c.validateAnalytics(); err != nil {
		return err
	}
	return c.validateLearning()
}

func (c *Config) validateSchedule() error {
	intervals := []struct {
		name string
		v    int
	}{
		{"schedule.counterfactual_interval", c.Schedule.CounterfactualInterval},
		{"schedule.adaptive_interval", c.Schedule.AdaptiveInterval},
		{"schedule.policy_interval", c.Schedule.PolicyInterval},
		{"schedule.bayes_interval", c.Schedule.BayesInterval},
		{"schedule.plan_interval", c.Schedule.PlanInterval},
	}
	for _, iv := range intervals {
		if iv.v <= 0 {
			return types.ConfigFault(iv.name, fmt.Errorf("must be positive, got %d", iv.v))
		}
	}
	if c.Schedule.ConsolidateWatermark <= 0 || c.Schedule.ConsolidateWatermark > 1 {
		return types.ConfigFault("schedule.consolidate_watermark", fmt.Errorf("must be in (0,1], got %v", c.Schedule.ConsolidateWatermark))
	}
	return nil
}

func unitInterval(field string, v float64) error {
	if v < 0 || v > 1 || v != v {
		return types.ConfigFault(field, fmt.Errorf("must be in [0,1], got %v", v))
	}
	return nil
}

func positive(field string, v int) error {
	if v <= 0 {
		return types.ConfigFault(field, fmt.Errorf("must be positive, got %d", v))
	}
	return nil
}
