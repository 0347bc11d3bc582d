package main

import (
	"context"
	"fmt"

	"cogkernel/internal/ledger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var runFlag string

// replayCmd rehydrates a recorded run.
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Verify a recorded run and replay it into a fresh kernel",
	Long: `Checks the ledger's hash chain for the run, then replays every logged
snapshot into a fresh kernel built from the logged configuration. Each tick's
digest must match the recorded one. Without --run the latest run is used.`,
	Args: cobra.NoArgs,
	RunE: replayRun,
}

// statsCmd lists the runs stored in a ledger.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "List the runs recorded in a ledger",
	Args:  cobra.NoArgs,
	RunE:  listRuns,
}

func init() {
	for _, c := range []*cobra.Command{replayCmd, statsCmd} {
		c.Flags().StringVar(&ledgerPath, "ledger", "", "SQLite ledger path (required)")
		_ = c.MarkFlagRequired("ledger")
	}
	replayCmd.Flags().StringVar(&runFlag, "run", "", "Run id to replay (latest when empty)")
}

func replayRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	lg, err := ledger.Open(ctx, ledgerPath)
	if err != nil {
		return err
	}
	defer lg.Close()

	id, err := resolveRun(ctx, lg, runFlag)
	if err != nil {
		return err
	}
	k, err := lg.Rehydrate(ctx, id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s replayed: %d ticks, digests match\n", id, k.CurrentTick())
	fmt.Fprintln(out, renderStatistics(k.Statistics(), k.Digest()))
	return nil
}

func resolveRun(ctx context.Context, lg *ledger.Ledger, s string) (uuid.UUID, error) {
	if s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid run id %q: %w", s, err)
		}
		return id, nil
	}
	runs, err := lg.Runs(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if len(runs) == 0 {
		return uuid.Nil, fmt.Errorf("ledger %s has no runs", lg.Path())
	}
	return runs[len(runs)-1].ID, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	lg, err := ledger.Open(ctx, ledgerPath)
	if err != nil {
		return err
	}
	defer lg.Close()

	runs, err := lg.Runs(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderRuns(runs))
	return nil
}
