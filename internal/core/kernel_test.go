package core

import (
	"errors"
	"math"
	"testing"

	"cogkernel/internal/config"
	"cogkernel/internal/store"
	"cogkernel/internal/types"
	"cogkernel/internal/world"

	"github.com/google/go-cmp/cmp"
)

func newKernel(t *testing.T, mutate func(*config.Config)) *Kernel {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	k, err := New(*cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return k
}

func run(t *testing.T, k *Kernel, env world.Environment, ticks int) []TickReport {
	t.Helper()
	var reports []TickReport
	for i := 0; i < ticks; i++ {
		rep, err := k.Tick(env.Snapshot(k.CurrentTick() + 1))
		if err != nil {
			t.Fatalf("Tick(%d) error = %v", k.CurrentTick()+1, err)
		}
		reports = append(reports, rep)
	}
	return reports
}

// frameRule finds the persistence rule for subject's fact with attr=v.
func frameRule(k *Kernel, subject, attr string, v float64) (types.Formula, bool) {
	var fact types.FormulaID
	for _, f := range k.Formulas() {
		if got, ok := f.Predicates.Get(attr); ok && f.Kind == types.KindFact && f.Subject == subject && got == v {
			fact = f.ID
		}
	}
	for _, f := range k.Formulas() {
		if f.IsRule() && f.Condition == fact && f.Consequence == fact {
			return f, true
		}
	}
	return types.Formula{}, false
}

func TestOscillatorEndToEnd(t *testing.T) {
	k := newKernel(t, nil)
	env := world.Oscillator{Objects: 2}

	var confidences []float64
	var reports []TickReport
	for tick := uint64(1); tick <= 10; tick++ {
		rep, err := k.Tick(env.Snapshot(tick))
		if err != nil {
			t.Fatalf("Tick(%d) error = %v", tick, err)
		}
		reports = append(reports, rep)
		rule, ok := frameRule(k, "a", "x", 1)
		if !ok {
			t.Fatalf("tick %d: frame rule for a{x=1} missing", tick)
		}
		confidences = append(confidences, rule.Confidence)
	}

	if reports[0].Contradictions != 0 || reports[1].Contradictions == 0 {
		t.Errorf("contradictions per tick = %d, %d; want 0 then >0", reports[0].Contradictions, reports[1].Contradictions)
	}
	if confidences[0] != 0.5 {
		t.Errorf("initial frame rule confidence = %v, want 0.5", confidences[0])
	}
	for i := 1; i < len(confidences); i++ {
		if confidences[i] > confidences[i-1] {
			t.Errorf("confidence rose at tick %d: %v -> %v", i+1, confidences[i-1], confidences[i])
		}
	}
	if rule, _ := frameRule(k, "a", "x", 1); rule.Active || rule.Confidence != 0 {
		t.Errorf("offending rule = %v, want inactive with confidence 0", rule)
	}

	var threeStep bool
	for _, p := range k.Patterns() {
		if len(p.Steps) == 3 && p.Confidence > 0.729-1e-9 && p.Confidence < 0.729+1e-9 {
			threeStep = true
		}
	}
	if !threeStep {
		t.Errorf("no three-step pattern with confidence 0.729 in %v", k.Patterns())
	}

	abstract := 0
	for _, f := range k.Formulas() {
		if f.IsRule() && f.Abstract {
			abstract++
		}
	}
	if abstract != 1 {
		t.Errorf("abstract rules = %d, want 1", abstract)
	}
	if got := k.Statistics().AbstractRules; got != 1 {
		t.Errorf("Statistics().AbstractRules = %d, want 1", got)
	}
}

func TestDeterminism(t *testing.T) {
	envs := map[string]world.Environment{
		"oscillator": world.Oscillator{Objects: 3, PhaseShift: true},
		"flock":      world.Flock{Followers: 3, Period: 4, Lag: 1},
	}
	for name, env := range envs {
		t.Run(name, func(t *testing.T) {
			a, b := newKernel(t, nil), newKernel(t, nil)
			ra := run(t, a, env, 40)
			rb := run(t, b, env, 40)

			if diff := cmp.Diff(ra, rb); diff != "" {
				t.Errorf("tick reports differ (-a +b):\n%s", diff)
			}
			if diff := cmp.Diff(a.Statistics(), b.Statistics()); diff != "" {
				t.Errorf("statistics differ (-a +b):\n%s", diff)
			}
			if diff := cmp.Diff(a.Formulas(), b.Formulas()); diff != "" {
				t.Errorf("formulas differ (-a +b):\n%s", diff)
			}
			if a.Digest() != b.Digest() {
				t.Errorf("digests differ: %s vs %s", a.Digest(), b.Digest())
			}
			if a.Statistics().StrongestRule == 0 {
				t.Error("expected an active rule to be reported as strongest")
			}
			if a.Statistics().RandomDraws == 0 {
				t.Error("expected the counterfactual and policy modules to draw randomness")
			}
		})
	}
}

func TestFailedTickRollsBack(t *testing.T) {
	k := newKernel(t, func(c *config.Config) { c.Capacities.Formulas = 3 })
	before := k.Digest()
	beforeStats := k.Statistics()

	_, err := k.Tick(world.Oscillator{Objects: 2}.Snapshot(1))
	if !errors.Is(err, types.ErrCapacityExceeded) {
		t.Fatalf("Tick() error = %v, want capacity exceeded", err)
	}
	var f *types.Fault
	if !errors.As(err, &f) || f.Tick != 1 || f.Module != "store" {
		t.Errorf("fault = %#v, want store fault at tick 1", f)
	}
	if k.Digest() != before {
		t.Error("digest changed after a failed tick")
	}
	if diff := cmp.Diff(beforeStats, k.Statistics()); diff != "" {
		t.Errorf("statistics changed after a failed tick (-before +after):\n%s", diff)
	}
	if len(k.InspectCanvas()) != 0 {
		t.Errorf("canvas = %v, want empty", k.InspectCanvas())
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Capacities.Canvas = 0
	if _, err := New(*cfg); !errors.Is(err, types.ErrConfig) {
		t.Fatalf("New() error = %v, want config error", err)
	}
}

func TestRequestPlanIsReadOnly(t *testing.T) {
	k := newKernel(t, nil)
	run(t, k, world.Oscillator{Objects: 2}, 6)

	digest, stats := k.Digest(), k.Statistics()
	rec, err := k.RequestPlan(DefaultGoal, 10)
	if err != nil {
		t.Fatalf("RequestPlan() error = %v", err)
	}
	if rec.Branch.Depth != 1 || !rec.Branch.Action.Valid() {
		t.Errorf("recommended branch = %+v", rec.Branch)
	}
	if k.Digest() != digest {
		t.Error("RequestPlan changed the store")
	}
	if diff := cmp.Diff(stats, k.Statistics()); diff != "" {
		t.Errorf("RequestPlan changed statistics (-before +after):\n%s", diff)
	}
	if _, err := k.RequestPlan([]float64{1}, 10); err == nil {
		t.Error("RequestPlan with a short goal should fail")
	}
}

func TestShortcutMaterialized(t *testing.T) {
	k := newKernel(t, func(c *config.Config) {
		c.Dreamer.CooccurrenceConfidence = 0.9
		c.Dreamer.AbstractConfidence = 0.95
	})
	obs := func(entities ...string) types.Snapshot {
		var s types.Snapshot
		for _, e := range entities {
			s.Observations = append(s.Observations, types.Observation{Entity: e, Attrs: map[string]float64{"v": 1}})
		}
		return s
	}
	trace := &world.Trace{Snapshots: []types.Snapshot{obs("a", "b"), obs("b", "c"), obs("a", "b", "c")}}
	run(t, k, trace, 3)

	if got := k.Statistics().ShortcutsMaterialized; got != 1 {
		t.Fatalf("shortcuts = %d, want 1", got)
	}
	ids := map[string]types.FormulaID{}
	for _, f := range k.Formulas() {
		if f.Kind == types.KindFact {
			ids[f.Subject] = f.ID
		}
	}
	var found bool
	for _, f := range k.Formulas() {
		if f.IsRule() && f.Condition == ids["a"] && f.Consequence == ids["c"] {
			found = true
			if f.Confidence < 0.81-1e-9 || f.Confidence > 0.81+1e-9 {
				t.Errorf("shortcut confidence = %v, want 0.81", f.Confidence)
			}
		}
	}
	if !found {
		t.Error("no a -> c shortcut rule")
	}
}

func TestExhaustedRuleQueuesInvalidation(t *testing.T) {
	k := newKernel(t, func(c *config.Config) { c.Perception.FailureStep = 0.5 })
	run(t, k, world.Oscillator{Objects: 2}, 2)

	var invalid int
	for _, task := range k.PendingTasks() {
		if task.Kind == store.TaskInvalidRule {
			invalid++
		}
	}
	if invalid == 0 {
		t.Fatalf("pending tasks = %v, want an invalid-rule task", k.PendingTasks())
	}
	run(t, k, world.Oscillator{Objects: 2}, 4)
	if got := k.Statistics().RulesInvalidated; got < 2 {
		t.Errorf("rules invalidated = %d, want at least 2", got)
	}
}

func TestConsolidationKeepsStoreBounded(t *testing.T) {
	for _, mark := range []float64{0.9, 0.1} {
		k := newKernel(t, func(c *config.Config) {
			c.Capacities.Formulas = 6
			c.Capacities.Canvas = 4
			c.Schedule.ConsolidateWatermark = mark
		})
		env := world.Oscillator{Objects: 1}
		pruned := 0
		for tick := uint64(1); tick <= 12; tick++ {
			rep, err := k.Tick(env.Snapshot(tick))
			if err != nil {
				t.Fatalf("watermark %v: Tick(%d) error = %v", mark, tick, err)
			}
			pruned += rep.Pruned
			if n := k.Statistics().Formulas; n > 6 {
				t.Fatalf("watermark %v: tick %d: %d formulas exceed capacity", mark, tick, n)
			}
			if n := len(k.InspectCanvas()); n > 4 {
				t.Fatalf("watermark %v: tick %d: %d canvas items exceed capacity", mark, tick, n)
			}
		}
		if pruned == 0 {
			t.Errorf("watermark %v: expected consolidation to prune at least once", mark)
		}
	}
}

func TestLongFlockNeverWedges(t *testing.T) {
	tests := []struct {
		name     string
		formulas int
	}{
		{"default capacity", 0},
		{"small capacity", 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := newKernel(t, func(c *config.Config) {
				if tt.formulas > 0 {
					c.Capacities.Formulas = tt.formulas
				}
			})
			env := world.Flock{Followers: 3, Period: 2, Lag: 1}
			pruned := 0
			for tick := uint64(1); tick <= 300; tick++ {
				rep, err := k.Tick(env.Snapshot(tick))
				if err != nil {
					t.Fatalf("Tick(%d) error = %v (formulas=%d pending=%d)",
						tick, err, k.Statistics().Formulas, len(k.PendingTasks()))
				}
				pruned += rep.Pruned
				for _, it := range k.InspectCanvas() {
					if _, ok := k.InspectFormula(it.Formula); !ok {
						t.Fatalf("tick %d: canvas item %+v refers to a pruned formula", tick, it)
					}
				}
			}
			stats := k.Statistics()
			if tt.formulas > 0 {
				if stats.Formulas > tt.formulas {
					t.Errorf("formulas = %d, want at most %d", stats.Formulas, tt.formulas)
				}
				if pruned == 0 {
					t.Error("expected consolidation under capacity pressure")
				}
			}
			if stats.PendingTasks > k.cfg.Repair.BacklogStep*2 {
				t.Errorf("pending tasks = %d, want the backlog drained", stats.PendingTasks)
			}
		})
	}
}

func TestDerivationLimitIsCapacityFault(t *testing.T) {
	k := newKernel(t, func(c *config.Config) { c.Dreamer.DerivedFactLimit = 2 })
	before := k.Digest()

	_, err := k.Tick(world.Oscillator{Objects: 2}.Snapshot(1))
	if !errors.Is(err, types.ErrCapacityExceeded) {
		t.Fatalf("Tick() error = %v, want capacity exceeded", err)
	}
	var f *types.Fault
	if !errors.As(err, &f) || f.Module != "dreamer" {
		t.Errorf("fault = %#v, want dreamer fault", f)
	}
	if k.Digest() != before {
		t.Error("digest changed after a failed tick")
	}
}

func TestNonFiniteObservationRejected(t *testing.T) {
	k := newKernel(t, nil)
	run(t, k, world.Oscillator{Objects: 1}, 2)
	before := k.Digest()

	snap := types.Snapshot{Observations: []types.Observation{{Entity: "a", Attrs: map[string]float64{"x": math.NaN()}}}}
	_, err := k.Tick(snap)
	if !errors.Is(err, types.ErrInconsistent) {
		t.Fatalf("Tick() error = %v, want inconsistent state", err)
	}
	var f *types.Fault
	if !errors.As(err, &f) || f.Module != "perception" || f.Tick != 3 {
		t.Errorf("fault = %#v, want perception fault at tick 3", f)
	}
	if k.Digest() != before || k.CurrentTick() != 2 {
		t.Error("kernel changed after a rejected snapshot")
	}
}

func TestConfidenceInvariant(t *testing.T) {
	k := newKernel(t, nil)
	env := world.Flock{Followers: 4, Period: 3, Lag: 1}
	for tick := uint64(1); tick <= 30; tick++ {
		if _, err := k.Tick(env.Snapshot(tick)); err != nil {
			t.Fatalf("Tick(%d) error = %v", tick, err)
		}
		for _, f := range k.Formulas() {
			if f.Confidence < 0 || f.Confidence > 1 {
				t.Fatalf("tick %d: %s has confidence outside [0,1]", tick, f)
			}
		}
	}
	if k.Statistics().CoordinationEvents == 0 {
		t.Error("expected the flock to produce coordination events")
	}
}
