package main

import (
	"context"
	"fmt"

	"cogkernel/internal/core"
	"cogkernel/internal/ledger"
	"cogkernel/internal/world"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	ledgerPath string
	recordPath string
	checkpoint bool
)

// runCmd drives one kernel and optionally records it.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a kernel against an environment",
	Long: `Feeds --ticks snapshots from the environment to a fresh kernel and prints
its statistics. With --ledger every tick is appended to the ledger; with
--checkpoint the final store is saved alongside.

Example:
  simkernel run --env flock --objects 5 --ticks 200 --ledger runs.db`,
	Args: cobra.NoArgs,
	RunE: runKernel,
}

func init() {
	runCmd.Flags().StringVar(&ledgerPath, "ledger", "", "Record the run to this SQLite ledger")
	runCmd.Flags().StringVar(&recordPath, "record", "", "Save the consumed snapshots as a YAML trace")
	runCmd.Flags().BoolVar(&checkpoint, "checkpoint", false, "Save the final store to the ledger")
}

func runKernel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := kernelCfg
	env, err := environment()
	if err != nil {
		return err
	}
	k, err := core.New(*cfg)
	if err != nil {
		return err
	}

	var (
		lg    *ledger.Ledger
		runID uuid.UUID
	)
	if ledgerPath != "" {
		if lg, err = ledger.Open(ctx, ledgerPath); err != nil {
			return err
		}
		defer lg.Close()
		if runID, err = lg.BeginRun(ctx, *cfg); err != nil {
			return err
		}
	}

	trace := &world.Trace{}
	for i := 0; i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tick := k.CurrentTick() + 1
		snap := env.Snapshot(tick)
		rep, err := k.Tick(snap)
		if err != nil {
			logger.Error("tick failed", zap.Uint64("tick", tick), zap.Error(err))
			return err
		}
		trace.Snapshots = append(trace.Snapshots, snap)
		if lg != nil {
			if _, err := lg.Append(ctx, runID, tick, snap, k.Digest()); err != nil {
				return err
			}
		}
		logger.Debug("tick",
			zap.Uint64("tick", rep.Tick),
			zap.Stringer("action", rep.Action),
			zap.Int("facts", rep.FactsAdded),
			zap.Int("contradictions", rep.Contradictions),
			zap.Int("proposed", rep.RulesProposed))
	}

	if lg != nil && checkpoint {
		if err := lg.SaveFormulas(ctx, runID, k.CurrentTick(), k.Formulas()); err != nil {
			return err
		}
	}
	if recordPath != "" {
		if err := trace.Save(recordPath); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if lg != nil {
		fmt.Fprintf(out, "run %s recorded to %s\n", runID, lg.Path())
	}
	fmt.Fprintln(out, renderStatistics(k.Statistics(), k.Digest()))
	return nil
}
