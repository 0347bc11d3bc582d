// Package core is the cognitive kernel: it owns every bounded container and
// advances them one tick at a time in a fixed phase order.
package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"cogkernel/internal/adaptive"
	"cogkernel/internal/agents"
	"cogkernel/internal/bayes"
	"cogkernel/internal/config"
	"cogkernel/internal/counterfactual"
	"cogkernel/internal/logging"
	"cogkernel/internal/mangle"
	"cogkernel/internal/patterns"
	"cogkernel/internal/planner"
	"cogkernel/internal/policy"
	"cogkernel/internal/rng"
	"cogkernel/internal/store"
	"cogkernel/internal/types"
)

// =============================================================================
// KERNEL STATE
// =============================================================================

// track is the last two distinct observations of a subject.
type track struct {
	prev, cur types.FormulaID
}

// state is everything a tick may mutate. Tick works on a clone and swaps it
// in only on success.
type state struct {
	tick     uint64
	ids      *types.IDAllocator
	store    *store.Store
	canvas   *store.Canvas
	tasks    *store.Queue
	rng      *rng.Source
	miner    *patterns.Miner
	agents   *agents.Tracker
	reasoner *counterfactual.Reasoner
	adaptive *adaptive.Manager
	learner  *policy.Learner
	network  *bayes.Network

	subjects  map[string]track
	proposed  map[string]bool // subject pairs with a co-occurrence rule
	linked    map[string]bool // category pairs with an abstract rule
	action    types.Action    // applied on the next tick
	chosen    types.Action    // last policy choice, for the episode it closes
	lastState policy.State
	lastPlan  *planner.Recommendation
	stats     counters
	window    windowCounters
}

// windowCounters accumulate between policy updates.
type windowCounters struct {
	contradictions int
	resolved       int
	patterns       int
}

func (s *state) clone() *state {
	ids := s.ids.Clone()
	c := &state{
		tick:      s.tick,
		ids:       ids,
		store:     s.store.Clone(ids),
		canvas:    s.canvas.Clone(),
		tasks:     s.tasks.Clone(),
		rng:       s.rng.Clone(),
		miner:     s.miner.Clone(),
		agents:    s.agents.Clone(),
		reasoner:  s.reasoner.Clone(),
		adaptive:  s.adaptive.Clone(),
		learner:   s.learner.Clone(),
		network:   s.network.Clone(),
		subjects:  make(map[string]track, len(s.subjects)),
		proposed:  make(map[string]bool, len(s.proposed)),
		linked:    make(map[string]bool, len(s.linked)),
		action:    s.action,
		chosen:    s.chosen,
		lastState: s.lastState,
		lastPlan:  clonePlan(s.lastPlan),
		stats:     s.stats,
		window:    s.window,
	}
	for k, v := range s.subjects {
		c.subjects[k] = v
	}
	for k, v := range s.proposed {
		c.proposed[k] = v
	}
	for k, v := range s.linked {
		c.linked[k] = v
	}
	return c
}

func clonePlan(p *planner.Recommendation) *planner.Recommendation {
	if p == nil {
		return nil
	}
	c := *p
	c.Trajectory.Final = append([]float64(nil), p.Trajectory.Final...)
	return &c
}

// Kernel is one simulation instance. It is not safe for concurrent use;
// every call advances or reads a single owner's state.
type Kernel struct {
	cfg     config.Config
	deriver *mangle.Deriver
	planner *planner.Planner
	st      *state
}

// New validates cfg and builds an empty kernel seeded from cfg.Seed.
func New(cfg config.Config) (*Kernel, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "kernel.New")
	defer timer.Stop()

	if err := cfg.Validate(); err != nil {
		logging.BootError("invalid configuration: %v", err)
		return nil, err
	}

	deriver, err := mangle.NewDeriver(mangle.Config{DerivedFactLimit: cfg.Dreamer.DerivedFactLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to compile dream program: %w", err)
	}

	caps := cfg.Capacities
	ids := types.NewIDAllocator()
	st := &state{
		ids:      ids,
		store:    store.New(caps.Formulas, ids, cfg.Perception.TieBreak),
		canvas:   store.NewCanvas(caps.Canvas),
		tasks:    store.NewQueue(caps.Tasks),
		rng:      rng.New(cfg.Seed),
		miner:    patterns.NewMiner(cfg.Patterns, caps.Patterns, caps.MetaEvents),
		agents:   agents.NewTracker(cfg.Agents, caps.Agents, caps.CoordinationEvents),
		reasoner: counterfactual.NewReasoner(cfg.Counterfactual, caps.Scenarios),
		adaptive: adaptive.NewManager(cfg.Adaptive),
		learner:  policy.NewLearner(cfg.Policy, types.AllActions(), caps.PolicyStates, caps.Episodes),
		network:  bayes.NewNetwork(cfg.Bayes, caps.CausalNodes),
		subjects: make(map[string]track),
		proposed: make(map[string]bool),
		linked:   make(map[string]bool),
		action:   types.ActionWait,
	}
	if err := buildNetwork(st.network); err != nil {
		return nil, fmt.Errorf("failed to build causal network: %w", err)
	}

	logging.Boot("kernel created: seed=%d formulas=%d canvas=%d tasks=%d",
		cfg.Seed, caps.Formulas, caps.Canvas, caps.Tasks)
	return &Kernel{
		cfg:     cfg,
		deriver: deriver,
		planner: planner.New(cfg.Planner, caps.PlanBranches),
		st:      st,
	}, nil
}

// Config returns the configuration the kernel was built with.
func (k *Kernel) Config() config.Config { return k.cfg }

// CurrentTick is the number of completed ticks.
func (k *Kernel) CurrentTick() uint64 { return k.st.tick }

// =============================================================================
// TICK
// =============================================================================

// tickRun carries per-tick scratch data between phases.
type tickRun struct {
	st      *state
	tick    uint64
	action  types.Action
	obs     []types.Observation
	current map[string]types.FormulaID // subject -> fact observed this tick
	report  TickReport
}

// Tick advances the kernel by one step. On any fault the kernel is left
// exactly as it was before the call and the fault is returned.
func (k *Kernel) Tick(snap types.Snapshot) (TickReport, error) {
	work := k.st.clone()
	work.tick++
	run := &tickRun{
		st:      work,
		tick:    work.tick,
		action:  work.action,
		obs:     snap.Normalized(),
		current: make(map[string]types.FormulaID),
	}
	run.report.Tick = run.tick
	run.report.Action = run.action

	phases := []struct {
		name string
		fn   func(*tickRun) error
	}{
		{"perception", k.perceive},
		{"prediction", k.predict},
		{"analytics", k.analyze},
		{"repair", k.repair},
		{"dreamer", k.dream},
		{"learning", k.learn},
		{"consolidation", k.consolidate},
	}
	for _, ph := range phases {
		if err := ph.fn(run); err != nil {
			return TickReport{}, k.abort(run.tick, ph.name, err)
		}
		if err := work.store.Validate(); err != nil {
			return TickReport{}, k.abort(run.tick, ph.name, err)
		}
	}

	k.st = work
	run.report.NextAction = work.action
	if logging.IsDebugMode() {
		logging.KernelDebug("tick %d committed: digest=%s", run.tick, k.Digest())
	}
	logging.KernelDebug("tick %d: facts=%d predictions=%d contradictions=%d resolved=%d patterns=%d proposed=%d",
		run.tick, run.report.FactsAdded, run.report.PredictionsMade, run.report.Contradictions,
		run.report.TasksResolved, run.report.PatternsFound, run.report.RulesProposed)
	return run.report, nil
}

func (k *Kernel) abort(tick uint64, phase string, err error) error {
	f := types.AsFault(err, tick)
	if errors.Is(f, types.ErrCapacityExceeded) {
		logging.KernelWarn("tick %d rolled back in %s: %v", tick, phase, f)
	} else {
		logging.KernelError("tick %d rolled back in %s: %v", tick, phase, f)
	}
	return f
}

// =============================================================================
// EXTERNAL INTERFACE
// =============================================================================

// InspectCanvas copies working memory, oldest first.
func (k *Kernel) InspectCanvas() []store.Item { return k.st.canvas.Snapshot() }

// InspectFormula looks up a formula by id.
func (k *Kernel) InspectFormula(id types.FormulaID) (types.Formula, bool) {
	return k.st.store.Get(id)
}

// Formulas copies the store in id order.
func (k *Kernel) Formulas() []types.Formula { return k.st.store.Formulas() }

// PendingTasks copies the repair queue.
func (k *Kernel) PendingTasks() []store.Task { return k.st.tasks.PendingTasks() }

// Patterns copies the mined pattern table.
func (k *Kernel) Patterns() []patterns.Pattern { return k.st.miner.Patterns() }

// MetaEvents copies the abstraction ladder.
func (k *Kernel) MetaEvents() []patterns.MetaEvent { return k.st.miner.Ladder().Events() }

// CoordinationEvents copies the coordination log.
func (k *Kernel) CoordinationEvents() []agents.Event { return k.st.agents.Events() }

// Scenarios copies the counterfactual log.
func (k *Kernel) Scenarios() []counterfactual.Scenario { return k.st.reasoner.Scenarios() }

// CausalEdges copies the causal network's edges.
func (k *Kernel) CausalEdges() []bayes.Edge { return k.st.network.Edges() }

// RequestPlan searches for the control action that moves the current
// metrics toward goal. It draws no randomness and changes nothing.
func (k *Kernel) RequestPlan(goal []float64, horizon int) (planner.Recommendation, error) {
	return k.planner.Plan(k.metricsOf(k.st).vector(), goal, horizon)
}

// Statistics reports per-module counters.
func (k *Kernel) Statistics() Statistics {
	st := k.st
	s := Statistics{
		Tick:                  st.tick,
		Formulas:              st.store.Len(),
		CanvasItems:           st.canvas.Len(),
		CanvasPushed:          st.canvas.Total(),
		PendingTasks:          st.tasks.Pending(),
		DroppedTasks:          st.tasks.Dropped(),
		Contradictions:        st.stats.contradictions,
		TasksResolved:         st.stats.tasksResolved,
		TasksCompleted:        st.tasks.Completed(),
		RulesInvalidated:      st.stats.invalidated,
		ShortcutsMaterialized: st.stats.shortcuts,
		RulesProposed:         st.stats.proposed,
		AbstractRules:         st.stats.abstract,
		Patterns:              st.miner.Len(),
		PatternsEvicted:       st.miner.Evicted(),
		MetaEventsEvicted:     st.miner.Ladder().Evicted(),
		MetaEventsPerLevel:    st.miner.Ladder().CountByLevel(),
		AgentsTracked:         st.agents.Agents(),
		AgentsRejected:        st.agents.Rejected(),
		CoordinationEvents:    len(st.agents.Events()),
		SyncRate:              st.agents.SyncRate(),
		ScenariosExplored:     st.reasoner.Explored(),
		CausalLinks:           len(st.reasoner.Links()),
		AverageDivergence:     st.reasoner.AverageDivergence(),
		GranularityLevel:      st.adaptive.Level(),
		GranularitySwitches:   len(st.adaptive.History()),
		AdaptiveEvaluations:   st.adaptive.Evaluations(),
		PoliciesLearned:       st.learner.Policies(),
		PolicyUpdates:         st.learner.Updates(),
		PolicyStatesRejected:  st.learner.Rejected(),
		ConfirmedCausalEdges:  st.network.ConfirmedEdges(),
		AverageEntropy:        st.network.AverageEntropy(),
		PlansMade:             st.stats.plans,
		LastPlan:              clonePlan(st.lastPlan),
		RandomDraws:           st.rng.Draws(),
	}
	for f := range st.store.Scan(types.KindRule) {
		if f.Active {
			s.ActiveRules++
		}
	}
	if best, ok := st.store.Best(func(f types.Formula) bool { return f.IsRule() && f.Active }); ok {
		s.StrongestRule = best.ID
	}
	return s
}

// Digest hashes the store's (id, kind, confidence, active) tuples in id
// order. Two kernels with equal digests hold the same knowledge.
func (k *Kernel) Digest() string {
	h := sha256.New()
	var buf [18]byte
	for f := range k.st.store.All() {
		binary.BigEndian.PutUint64(buf[0:8], uint64(f.ID))
		buf[8] = byte(f.Kind)
		binary.BigEndian.PutUint64(buf[9:17], math.Float64bits(f.Confidence))
		buf[17] = 0
		if f.Active {
			buf[17] = 1
		}
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IsFault reports whether err came from a rolled-back tick.
func IsFault(err error) bool {
	var f *types.Fault
	return errors.As(err, &f)
}
