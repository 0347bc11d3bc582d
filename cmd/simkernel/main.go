// Command simkernel drives cognitive kernels against synthetic environments,
// records runs to a ledger and replays them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cogkernel/internal/config"
	"cogkernel/internal/logging"
	"cogkernel/internal/world"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	seed       uint64

	// Environment flags shared by run and verify
	envName   string
	objects   int
	tracePath string
	ticks     int

	// Loaded in PersistentPreRunE
	logger    *zap.Logger
	kernelCfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "simkernel",
	Short: "Deterministic bounded-memory cognitive simulation kernel",
	Long: `simkernel feeds environment snapshots to a cognitive kernel one tick at a
time. Every run is reproducible from its seed and its input trace; runs can
be recorded to a hash-chained SQLite ledger and rehydrated later.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if kernelCfg, err = loadConfig(cmd); err != nil {
			return err
		}
		backend := kernelCfg.Logging.Backend()
		if verbose {
			backend.Level = "debug"
			logging.UseLogger(logger, backend)
			return nil
		}
		return logging.Configure(backend)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Route kernel debug logs to stderr, overriding the config's logging section")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults when empty)")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Override the configured seed")

	for _, c := range []*cobra.Command{runCmd, verifyCmd} {
		c.Flags().StringVarP(&envName, "env", "e", "oscillator", "Environment: oscillator, phased or flock")
		c.Flags().IntVarP(&objects, "objects", "n", 2, "Objects in the environment")
		c.Flags().StringVar(&tracePath, "trace", "", "Replay a recorded YAML trace instead of --env")
		c.Flags().IntVarP(&ticks, "ticks", "t", 50, "Ticks to run")
	}

	rootCmd.AddCommand(runCmd, verifyCmd, replayCmd, statsCmd)
}

// loadConfig reads --config and applies --seed when given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// environment resolves --trace or --env.
func environment() (world.Environment, error) {
	if tracePath != "" {
		return world.LoadTrace(tracePath)
	}
	if objects <= 0 {
		return nil, fmt.Errorf("--objects must be positive, got %d", objects)
	}
	return world.Named(envName, objects)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
