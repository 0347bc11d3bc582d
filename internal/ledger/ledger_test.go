package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"cogkernel/internal/config"
	"cogkernel/internal/core"
	"cogkernel/internal/world"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openTemp(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "runs", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

// record drives a fresh kernel for n ticks and logs every tick.
func record(t *testing.T, l *Ledger, cfg config.Config, env world.Environment, n int) (*core.Kernel, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	k, err := core.New(cfg)
	require.NoError(t, err)
	id, err := l.BeginRun(ctx, cfg)
	require.NoError(t, err)
	for tick := uint64(1); tick <= uint64(n); tick++ {
		snap := env.Snapshot(tick)
		_, err := k.Tick(snap)
		require.NoError(t, err)
		_, err = l.Append(ctx, id, tick, snap, k.Digest())
		require.NoError(t, err)
	}
	return k, id
}

func TestRehydrateReproducesRun(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	cfg := *config.DefaultConfig()
	env := world.Oscillator{Objects: 3, PhaseShift: true}

	orig, id := record(t, l, cfg, env, 15)
	require.NoError(t, l.Verify(ctx, id))

	replayed, err := l.Rehydrate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, orig.Digest(), replayed.Digest())
	assert.Equal(t, uint64(15), replayed.CurrentTick())
	if diff := cmp.Diff(orig.Statistics(), replayed.Statistics()); diff != "" {
		t.Errorf("statistics differ after rehydration (-orig +replayed):\n%s", diff)
	}

	// Both continue identically.
	for tick := uint64(16); tick <= 20; tick++ {
		a, err := orig.Tick(env.Snapshot(tick))
		require.NoError(t, err)
		b, err := replayed.Tick(env.Snapshot(tick))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
	assert.Equal(t, orig.Digest(), replayed.Digest())
}

func TestRunMetadata(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	cfg := *config.DefaultConfig()
	cfg.Seed = 7
	cfg.Planner.ExplorationC = 0.5

	_, id := record(t, l, cfg, world.Flock{Followers: 2, Period: 3, Lag: 1}, 4)
	run, err := l.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), run.Seed)
	assert.Equal(t, uint64(4), run.Ticks)
	assert.Equal(t, cfg, *run.Config)

	runs, err := l.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)

	_, err = l.Run(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrUnknownRun))
}

func TestAppendOrdering(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	env := world.Oscillator{Objects: 1}
	id, err := l.BeginRun(ctx, *config.DefaultConfig())
	require.NoError(t, err)

	_, err = l.Append(ctx, id, 2, env.Snapshot(2), "d")
	assert.True(t, errors.Is(err, ErrOutOfOrder))

	first, err := l.Append(ctx, id, 1, env.Snapshot(1), "d1")
	require.NoError(t, err)
	second, err := l.Append(ctx, id, 2, env.Snapshot(2), "d2")
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash, second.Hash)

	_, err = l.Append(ctx, id, 2, env.Snapshot(2), "d2")
	assert.True(t, errors.Is(err, ErrOutOfOrder))

	_, err = l.Append(ctx, uuid.New(), 1, env.Snapshot(1), "d")
	assert.True(t, errors.Is(err, ErrUnknownRun))
}

func TestVerifyDetectsTampering(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	_, id := record(t, l, *config.DefaultConfig(), world.Oscillator{Objects: 2}, 6)
	require.NoError(t, l.Verify(ctx, id))

	_, err := l.db.ExecContext(ctx, `UPDATE ticks SET digest = 'forged' WHERE run_id = ? AND tick = 3`, id.String())
	require.NoError(t, err)

	err = l.Verify(ctx, id)
	assert.True(t, errors.Is(err, ErrTampered), "got %v", err)
	_, err = l.Rehydrate(ctx, id)
	assert.True(t, errors.Is(err, ErrTampered))
}

func TestRehydrateDetectsDivergence(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	env := world.Oscillator{Objects: 2}
	id, err := l.BeginRun(ctx, *config.DefaultConfig())
	require.NoError(t, err)
	// A consistent chain over a digest no kernel produced.
	_, err = l.Append(ctx, id, 1, env.Snapshot(1), "not-a-digest")
	require.NoError(t, err)
	require.NoError(t, l.Verify(ctx, id))

	_, err = l.Rehydrate(ctx, id)
	assert.True(t, errors.Is(err, ErrDivergence), "got %v", err)
}

func TestFormulaCheckpoint(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	k, id := record(t, l, *config.DefaultConfig(), world.Oscillator{Objects: 2}, 5)

	want := k.Formulas()
	require.NoError(t, l.SaveFormulas(ctx, id, 5, want))
	// Saving twice replaces the checkpoint.
	require.NoError(t, l.SaveFormulas(ctx, id, 5, want))

	got, err := l.LoadFormulas(ctx, id, 5)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("checkpoint mismatch (-want +got):\n%s", diff)
	}

	none, err := l.LoadFormulas(ctx, id, 4)
	require.NoError(t, err)
	assert.Empty(t, none)
}
