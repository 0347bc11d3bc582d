package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cogkernel/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// execute runs the CLI with args and fresh flag state.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	reset := func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	reset(rootCmd)
	for _, c := range rootCmd.Commands() {
		reset(c)
	}
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunRecordReplay(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "ledger.db")
	trace := filepath.Join(dir, "trace.yaml")

	out, err := execute(t, "run", "--objects", "2", "--ticks", "12", "--ledger", db, "--checkpoint", "--record", trace)
	require.NoError(t, err, out)
	assert.Contains(t, out, "recorded to")
	assert.Contains(t, out, "digest ")

	out, err = execute(t, "stats", "--ledger", db)
	require.NoError(t, err, out)
	assert.Contains(t, out, "RUN")

	out, err = execute(t, "replay", "--ledger", db)
	require.NoError(t, err, out)
	assert.Contains(t, out, "12 ticks, digests match")

	out, err = execute(t, "verify", "--trace", trace, "--ticks", "12")
	require.NoError(t, err, out)
	assert.Contains(t, out, "deterministic over 12 ticks")
}

func TestVerifyFlock(t *testing.T) {
	out, err := execute(t, "verify", "--env", "flock", "--objects", "4", "--ticks", "30", "--seed", "9")
	require.NoError(t, err, out)
	assert.True(t, strings.Contains(out, "(seed 9)"), out)
}

func TestRunRejectsBadInput(t *testing.T) {
	_, err := execute(t, "run", "--env", "tornado")
	assert.Error(t, err)

	_, err = execute(t, "run", "--objects", "0")
	assert.Error(t, err)

	_, err = execute(t, "replay", "--ledger", filepath.Join(t.TempDir(), "empty.db"))
	assert.Error(t, err)
}

func TestConfigLoggingSectionReachesLogger(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "kernel.log")
	cfgPath := filepath.Join(dir, "kernel.yaml")
	cfg := "logging:\n  debug_mode: true\n  level: debug\n  file: " + logPath + "\n  categories:\n    dream: false\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))
	t.Cleanup(func() { _ = logging.Configure(logging.Config{}) })

	out, err := execute(t, "run", "--config", cfgPath, "--ticks", "3")
	require.NoError(t, err, out)
	logging.Sync()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "logging initialized")
	assert.Contains(t, text, "kernel created")
	assert.Contains(t, text, "perception")
	assert.NotContains(t, text, `"category": "dream"`)
}

func TestFirstDivergence(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want int
	}{
		{"equal", []string{"x", "y"}, []string{"x", "y"}, 0},
		{"second tick", []string{"x", "y"}, []string{"x", "z"}, 2},
		{"shorter", []string{"x"}, []string{"x", "y"}, 2},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, firstDivergence(tt.a, tt.b))
		})
	}
}
