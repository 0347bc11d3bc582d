package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cogkernel/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "cogkernel" {
		t.Errorf("expected Name=cogkernel, got %s", cfg.Name)
	}
	if cfg.Seed != 42 {
		t.Errorf("expected Seed=42, got %d", cfg.Seed)
	}
	if cfg.Perception.TieBreak != TieBreakOldest {
		t.Errorf("expected TieBreak=oldest, got %s", cfg.Perception.TieBreak)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "kernel.yaml")

	cfg := DefaultConfig()
	cfg.Seed = 7
	cfg.Capacities.Canvas = 12
	cfg.Perception.TieBreak = TieBreakNewest

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), loaded.Seed)
	assert.Equal(t, 12, loaded.Capacities.Canvas)
	assert.Equal(t, TieBreakNewest, loaded.Perception.TieBreak)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: 9\npolicy:\n  epsilon: 0.05\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), cfg.Seed)
	assert.Equal(t, 0.05, cfg.Policy.Epsilon)
	assert.Equal(t, 0.1, cfg.Policy.Alpha, "unset fields keep defaults")
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: [unterminated"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero formulas", func(c *Config) { c.Capacities.Formulas = 0 }, "capacities.formulas"},
		{"negative canvas", func(c *Config) { c.Capacities.Canvas = -1 }, "capacities.canvas"},
		{"tiny plan tree", func(c *Config) { c.Capacities.PlanBranches = 3 }, "capacities.plan_branches"},
		{"tiny causal net", func(c *Config) { c.Capacities.CausalNodes = 2 }, "capacities.causal_nodes"},
		{"tolerance above one", func(c *Config) { c.Perception.MismatchTolerance = 1.5 }, "perception.mismatch_tolerance"},
		{"unknown tie break", func(c *Config) { c.Perception.TieBreak = "random" }, "perception.tie_break"},
		{"zero backlog step", func(c *Config) { c.Repair.BacklogStep = 0 }, "repair.backlog_step"},
		{"abstract not above concrete", func(c *Config) { c.Dreamer.AbstractConfidence = 0.2 }, "dreamer.abstract_confidence"},
		{"zero interval", func(c *Config) { c.Schedule.BayesInterval = 0 }, "schedule.bayes_interval"},
		{"watermark zero", func(c *Config) { c.Schedule.ConsolidateWatermark = 0 }, "schedule.consolidate_watermark"},
		{"too many interventions", func(c *Config) { c.Counterfactual.InterventionsPerScenario = 51 }, "counterfactual.interventions_per_scenario"},
		{"level out of ladder", func(c *Config) { c.Adaptive.InitialLevel = 8 }, "adaptive.initial_level"},
		{"epsilon above one", func(c *Config) { c.Policy.Epsilon = 2 }, "policy.epsilon"},
		{"no confirm support", func(c *Config) { c.Bayes.ConfirmSupport = 0 }, "bayes.confirm_support"},
		{"negative exploration", func(c *Config) { c.Planner.ExplorationC = -1 }, "planner.exploration_c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrConfig), "want ErrConfig, got %v", err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

// =============================================================================
// LOGGING CONFIG TESTS
// =============================================================================

func TestLoggingConfig_Backend(t *testing.T) {
	lc := LoggingConfig{Level: "debug", Format: "json", File: "/tmp/k.log", DebugMode: true}
	b := lc.Backend()
	assert.True(t, b.DebugMode)
	assert.True(t, b.JSONFormat)
	assert.Equal(t, "debug", b.Level)
	assert.Equal(t, "/tmp/k.log", b.OutputPath)
}
