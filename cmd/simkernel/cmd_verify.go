package main

import (
	"context"
	"fmt"

	"cogkernel/internal/config"
	"cogkernel/internal/core"
	"cogkernel/internal/world"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// verifyCmd checks determinism by running two kernels side by side.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run two identical kernels concurrently and compare digests",
	Long: `Builds two kernels from the same configuration, drives them concurrently
over the same environment and compares their store digests after every tick.
Any difference is a determinism bug.`,
	Args: cobra.NoArgs,
	RunE: verifyDeterminism,
}

// digests runs a kernel for n ticks and returns the digest after each.
func digests(ctx context.Context, cfg config.Config, env world.Environment, n int) ([]string, error) {
	k, err := core.New(cfg)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := k.Tick(env.Snapshot(k.CurrentTick() + 1)); err != nil {
			return nil, err
		}
		out = append(out, k.Digest())
	}
	return out, nil
}

// firstDivergence returns the 1-based tick where a and b differ, or 0.
func firstDivergence(a, b []string) int {
	for i := range min(len(a), len(b)) {
		if a[i] != b[i] {
			return i + 1
		}
	}
	if len(a) != len(b) {
		return min(len(a), len(b)) + 1
	}
	return 0
}

func verifyDeterminism(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := kernelCfg
	env, err := environment()
	if err != nil {
		return err
	}

	var runs [2][]string
	g, gctx := errgroup.WithContext(ctx)
	for i := range runs {
		g.Go(func() error {
			d, err := digests(gctx, *cfg, env, ticks)
			runs[i] = d
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if tick := firstDivergence(runs[0], runs[1]); tick != 0 {
		logger.Error("kernels diverged", zap.Int("tick", tick))
		return fmt.Errorf("kernels diverged at tick %d", tick)
	}
	final := ""
	if len(runs[0]) > 0 {
		final = runs[0][len(runs[0])-1]
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deterministic over %d ticks (seed %d): %s\n", ticks, cfg.Seed, final)
	return nil
}
