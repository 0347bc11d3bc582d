package core

import (
	"fmt"
	"math"
	"sort"

	"cogkernel/internal/adaptive"
	"cogkernel/internal/counterfactual"
	"cogkernel/internal/logging"
	"cogkernel/internal/patterns"
	"cogkernel/internal/planner"
	"cogkernel/internal/policy"
	"cogkernel/internal/store"
	"cogkernel/internal/types"
)

// DefaultGoal is the metric vector the scheduled planner aims for: half-full
// working memory, full synchronization and pattern coverage, and no
// pending contradictions.
var DefaultGoal = []float64{0.5, 1, 1, 0}

// kernelMetrics are the normalized observables shared by the policy
// learner, the causal network and the planner.
type kernelMetrics struct {
	canvas         float64
	sync           float64
	patterns       float64
	contradictions float64
}

func (k *Kernel) metricsOf(st *state) kernelMetrics {
	return kernelMetrics{
		canvas:         float64(st.canvas.Len()) / float64(st.canvas.Cap()),
		sync:           st.agents.SyncRate(),
		patterns:       float64(st.miner.Len()) / float64(k.cfg.Capacities.Patterns),
		contradictions: float64(st.tasks.Pending()) / float64(st.tasks.Cap()),
	}
}

func (m kernelMetrics) vector() []float64 {
	out := make([]float64, planner.Dim)
	out[planner.MetricCanvas] = m.canvas
	out[planner.MetricSync] = m.sync
	out[planner.MetricPatterns] = m.patterns
	out[planner.MetricContradictions] = m.contradictions
	return out
}

// bucket maps v in [0,1] onto 0..n-1.
func bucket(v float64, n int) int {
	return min(n-1, max(0, int(v*float64(n))))
}

func (m kernelMetrics) contradictionBucket() int {
	if m.contradictions > 0 {
		return 1
	}
	return 0
}

// state discretizes the metrics for the Q-table.
func (m kernelMetrics) state() policy.State {
	return policy.State(fmt.Sprintf("c%d-s%d-p%d-x%d",
		bucket(m.canvas, 3), bucket(m.sync, 3), bucket(m.patterns, 3), m.contradictionBucket()))
}

// =============================================================================
// PERIODIC ANALYTICS (before repair)
// =============================================================================

// analyze mines patterns and detects coordination on the adaptive stride.
func (k *Kernel) analyze(run *tickRun) error {
	st := run.st
	onStride := run.tick%uint64(st.adaptive.Stride()) == 0

	if onStride {
		window := st.adaptive.Window(k.cfg.Patterns.Window)
		var from uint64
		if run.tick > uint64(window) {
			from = run.tick - uint64(window) + 1
		}
		var obs []patterns.Observation
		for it := range st.canvas.Since(store.ItemObservation, from) {
			f, err := st.store.MustGet("patterns", it.Formula)
			if err != nil {
				return err
			}
			obs = append(obs, patterns.Observation{Subject: f.Subject, Fact: f.ID, Tick: it.ValidFrom, Confidence: f.Confidence})
		}
		found, err := st.miner.Mine(obs, run.tick, window)
		if err != nil {
			return err
		}
		metas := st.miner.Abstract(run.tick)
		run.report.PatternsFound = found
		run.report.MetaEvents = len(metas)
		st.window.patterns += found
	}

	if onStride || run.action == types.ActionCoordinate {
		st.agents.Coordinate(run.tick)
	}
	return nil
}

// =============================================================================
// PERIODIC LEARNING (after the dreamer)
// =============================================================================

func due(tick uint64, interval int) bool {
	return interval > 0 && tick%uint64(interval) == 0
}

// learn runs the counterfactual, adaptive, policy, causal and planning
// modules on their schedules.
func (k *Kernel) learn(run *tickRun) error {
	st := run.st
	sc := k.cfg.Schedule

	if due(run.tick, sc.CounterfactualInterval) {
		if err := k.explore(run); err != nil {
			return err
		}
	}
	if due(run.tick, sc.AdaptiveInterval) || run.action == types.ActionAdapt {
		m := k.metricsOf(st)
		st.adaptive.Evaluate(adaptive.Metrics{
			Divergence:      st.reasoner.LastDivergence(),
			Complexity:      st.store.Occupancy(),
			Synchronization: m.sync,
		}, run.tick)
	}

	// The chosen action applies to one tick only.
	st.action = types.ActionWait
	if due(run.tick, sc.PolicyInterval) {
		if err := k.choose(run); err != nil {
			return err
		}
	}
	if due(run.tick, sc.BayesInterval) {
		if err := k.observeCauses(run); err != nil {
			return err
		}
	}
	if due(run.tick, sc.PlanInterval) {
		rec, err := k.planner.Plan(k.metricsOf(st).vector(), DefaultGoal, k.cfg.Planner.StepBudget)
		if err != nil {
			return err
		}
		st.lastPlan = &rec
		st.stats.plans++
	}
	return nil
}

// explore evaluates one counterfactual scenario against the current outcome
// and feeds any inferred causal link to the network.
func (k *Kernel) explore(run *tickRun) error {
	st := run.st
	baseline := counterfactual.Outcome{
		Canvas:   float64(st.canvas.Len()),
		Sync:     st.agents.SyncRate(),
		Patterns: float64(st.miner.Len()),
	}
	targets := make([]string, 0, len(run.current))
	for s := range run.current {
		targets = append(targets, s)
	}
	sort.Strings(targets)

	scenario, err := st.reasoner.Explore(baseline, run.tick, targets, st.rng)
	if err != nil {
		return err
	}
	for _, l := range st.reasoner.Links() {
		if l.Scenario != scenario.ID || st.network.HasEdge(l.Cause, l.Effect) {
			continue
		}
		if err := st.network.AddEdge(l.Cause, l.Effect, nil, l.Strength); err != nil {
			if isCycle(err) {
				logging.CounterfactualDebug("link %s->%s skipped: would close a cycle", l.Cause, l.Effect)
				continue
			}
			return err
		}
	}
	return nil
}

// choose closes the previous policy episode and picks the next action.
func (k *Kernel) choose(run *tickRun) error {
	st := run.st
	m := k.metricsOf(st)
	s := m.state()

	if st.lastState != "" {
		w := st.window
		reward := 0.5*m.sync + 0.1*float64(w.resolved) - 0.1*float64(w.contradictions) + 0.05*float64(w.patterns)
		reward = math.Max(-1, math.Min(1, reward))
		if err := st.learner.Update(policy.Episode{State: st.lastState, Action: st.chosen, Reward: reward, Next: s}); err != nil {
			return err
		}
	}

	a := st.learner.Choose(s, st.rng)
	st.action = a
	st.chosen = a
	st.lastState = s
	st.window = windowCounters{}
	logging.PolicyDebug("tick %d: state=%s next action=%s", run.tick, s, a)
	return nil
}

// observeCauses teaches the network the current joint state and queries the
// contradiction risk of the chosen action.
func (k *Kernel) observeCauses(run *tickRun) error {
	st := run.st
	m := k.metricsOf(st)
	if err := st.network.Learn(map[string]int{
		nodeAction:         int(st.chosen),
		nodeCanvas:         bucket(m.canvas, 3),
		nodeSync:           bucket(m.sync, 3),
		nodePatterns:       bucket(m.patterns, 3),
		nodeContradictions: m.contradictionBucket(),
	}); err != nil {
		return err
	}

	if err := st.network.SetEvidence(nodeAction, int(st.chosen)); err != nil {
		return err
	}
	defer st.network.ClearEvidence()
	inf, err := st.network.Infer(nodeContradictions)
	if err != nil {
		return err
	}
	logging.BayesDebug("tick %d: P(contradictions=%d | action=%s)=%.3f H=%.3f",
		run.tick, inf.State, st.chosen, inf.Probability, inf.Entropy)
	return nil
}

// =============================================================================
// CONSOLIDATION
// =============================================================================

// consolidate prunes the store once it crosses the high watermark, keeping
// everything the next tick needs: pending predictions, observations inside
// the pattern window, the task queue and subject tracking. When inactive
// rules and unreferenced facts do not free enough room, stale active rules
// are retired and the facts they pinned pruned after them.
func (k *Kernel) consolidate(run *tickRun) error {
	st := run.st
	mark := k.cfg.Schedule.ConsolidateWatermark
	if st.store.Occupancy() < mark {
		return nil
	}

	window := st.adaptive.Window(k.cfg.Patterns.Window)
	keep := st.canvas.Pinned(run.tick+1, window)
	for _, t := range st.tasks.PendingTasks() {
		for _, id := range t.Subjects {
			keep[id] = true
		}
	}
	for _, tr := range st.subjects {
		keep[tr.prev] = true
		keep[tr.cur] = true
	}
	kept := func(id types.FormulaID) bool { return keep[id] }

	target := max(0, int(math.Floor((mark-0.1)*float64(st.store.Cap()))))
	excess := max(1, st.store.Len()-target)
	pruned := st.store.Prune(kept, excess)
	retired := 0
	if pruned < excess {
		var before uint64
		if run.tick > uint64(window) {
			before = run.tick - uint64(window)
		}
		retired = st.store.Retire(kept, excess-pruned, before)
		pruned += retired
	}
	if pruned < excess {
		pruned += st.store.Prune(kept, excess-pruned)
	}

	purged := st.canvas.Purge(func(it store.Item) bool {
		if _, ok := st.store.Get(it.Formula); !ok {
			return true
		}
		_, ok := st.store.Get(it.Source)
		return it.Source != 0 && !ok
	})

	run.report.Pruned = pruned
	logging.Get(logging.CategoryKernel).StructuredLog("info", "consolidated", map[string]interface{}{
		"tick":      run.tick,
		"pruned":    pruned,
		"retired":   retired,
		"purged":    purged,
		"occupancy": st.store.Occupancy(),
	})
	return nil
}
