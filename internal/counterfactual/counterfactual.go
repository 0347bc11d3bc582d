// Package counterfactual builds alternative-history scenarios from
// interventions and measures how far they diverge from what happened.
package counterfactual

import (
	"fmt"
	"math"

	"cogkernel/internal/config"
	"cogkernel/internal/logging"
	"cogkernel/internal/types"
)

// MaxInterventions caps a single scenario.
const MaxInterventions = 50

// Rand is the slice of the kernel's random source this package draws from.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// InterventionKind is what an intervention does to the world.
type InterventionKind uint8

const (
	DisableAgent InterventionKind = iota
	ForceAction
	ModifyParameter
	BlockEvent
	InjectKnowledge
	numKinds
)

func (k InterventionKind) String() string {
	switch k {
	case DisableAgent:
		return "disable_agent"
	case ForceAction:
		return "force_action"
	case ModifyParameter:
		return "modify_parameter"
	case BlockEvent:
		return "block_event"
	case InjectKnowledge:
		return "inject_knowledge"
	default:
		return "unknown"
	}
}

// Channel is the causal variable an intervention acts through.
func (k InterventionKind) Channel() string {
	switch k {
	case DisableAgent:
		return ComponentSync
	case ForceAction, ModifyParameter:
		return "action"
	case BlockEvent:
		return ComponentCanvas
	case InjectKnowledge:
		return ComponentPatterns
	default:
		return "unknown"
	}
}

// Outcome components.
const (
	ComponentCanvas   = "canvas"
	ComponentSync     = "sync"
	ComponentPatterns = "patterns"
)

// Outcome is the observable summary a scenario is judged on.
type Outcome struct {
	Canvas   float64 `json:"canvas"`   // working-memory items
	Sync     float64 `json:"sync"`     // synchronization rate
	Patterns float64 `json:"patterns"` // distinct patterns
}

// Intervention is one change applied to the world at ApplyTick.
type Intervention struct {
	Kind      InterventionKind `json:"kind"`
	Target    string           `json:"target"`
	Strength  float64          `json:"strength"`
	ApplyTick uint64           `json:"apply_tick"`
}

// Branch is one step down the alternative-history chain.
type Branch struct {
	ID          uint64  `json:"id"`
	Parent      uint64  `json:"parent"` // 0 for the first branch
	Depth       int     `json:"depth"`
	Probability float64 `json:"probability"`
}

// BranchProbability decays with depth.
func BranchProbability(depth int) float64 {
	return 1 / (1 + float64(depth)*0.3)
}

// Scenario is one evaluated alternative history.
type Scenario struct {
	ID             uint64         `json:"id"`
	DivergenceTick uint64         `json:"divergence_tick"`
	Interventions  []Intervention `json:"interventions"`
	Branches       []Branch       `json:"branches"`
	Baseline       Outcome        `json:"baseline"`
	Expected       Outcome        `json:"expected"`
	Actual         Outcome        `json:"actual"`
	Divergence     float64        `json:"divergence"`
	Consistent     bool           `json:"consistent"`
}

func (s Scenario) clone() Scenario {
	s.Interventions = append([]Intervention(nil), s.Interventions...)
	s.Branches = append([]Branch(nil), s.Branches...)
	return s
}

// CausalLink is an inferred cause->effect relation.
type CausalLink struct {
	Cause    string  `json:"cause"`
	Effect   string  `json:"effect"`
	Strength float64 `json:"strength"`
	Scenario uint64  `json:"scenario"`
}

// Reasoner keeps a bounded log of scenarios and the links inferred from them.
type Reasoner struct {
	cfg          config.CounterfactualConfig
	max          int
	scenarios    []Scenario // ring, oldest first
	links        []CausalLink
	scenarioIDs  *types.IDAllocator
	branchIDs    *types.IDAllocator
	explored     int
	divergentSum float64
}

// NewReasoner returns an empty reasoner keeping at most max scenarios.
func NewReasoner(cfg config.CounterfactualConfig, max int) *Reasoner {
	return &Reasoner{
		cfg:         cfg,
		max:         max,
		scenarioIDs: types.NewIDAllocator(),
		branchIDs:   types.NewIDAllocator(),
	}
}

// Explore draws a random set of interventions against targets and evaluates
// the resulting scenario.
func (r *Reasoner) Explore(baseline Outcome, tick uint64, targets []string, rnd Rand) (Scenario, error) {
	n := 1 + rnd.IntN(r.cfg.InterventionsPerScenario)
	ivs := make([]Intervention, n)
	for i := range ivs {
		kind := InterventionKind(rnd.IntN(int(numKinds)))
		target := ""
		if len(targets) > 0 {
			target = targets[rnd.IntN(len(targets))]
		}
		ivs[i] = Intervention{Kind: kind, Target: target, Strength: 0.1 + 0.9*rnd.Float64(), ApplyTick: tick}
	}
	return r.Evaluate(baseline, tick, ivs, rnd)
}

// Evaluate scores a scenario built from the given interventions.
func (r *Reasoner) Evaluate(baseline Outcome, tick uint64, ivs []Intervention, rnd Rand) (Scenario, error) {
	if len(ivs) == 0 || len(ivs) > MaxInterventions {
		return Scenario{}, types.InconsistentFault("counterfactual", 0, fmt.Errorf("%d interventions, want 1..%d", len(ivs), MaxInterventions))
	}

	sc := Scenario{
		ID:             r.scenarioIDs.Next(),
		DivergenceTick: tick,
		Interventions:  append([]Intervention(nil), ivs...),
		Baseline:       baseline,
	}

	var parent uint64
	expected := baseline
	total := 0.0
	for i, iv := range ivs {
		b := Branch{ID: r.branchIDs.Next(), Parent: parent, Depth: i + 1, Probability: BranchProbability(i + 1)}
		sc.Branches = append(sc.Branches, b)
		parent = b.ID
		next, err := apply(expected, iv)
		if err != nil {
			return Scenario{}, types.InconsistentFault("counterfactual", sc.ID, err)
		}
		expected = next
		total += iv.Strength
	}
	sc.Expected = expected

	// Variance scales with how hard the world was pushed; an inert scenario
	// draws nothing.
	sc.Actual = expected
	if total > 0 {
		spread := r.cfg.Variance * math.Min(1, total)
		sc.Actual = Outcome{
			Canvas:   jitter(expected.Canvas, spread, rnd),
			Sync:     jitter(expected.Sync, spread, rnd),
			Patterns: jitter(expected.Patterns, spread, rnd),
		}
	}

	sc.Divergence = Divergence(baseline, sc.Actual)
	if sc.Divergence < 0 || sc.Divergence > 1 || math.IsNaN(sc.Divergence) {
		return Scenario{}, types.InconsistentFault("counterfactual", sc.ID, fmt.Errorf("divergence %v", sc.Divergence))
	}
	sc.Consistent = sc.Divergence < r.cfg.ConsistencyThreshold

	r.record(sc)
	if sc.Divergence >= r.cfg.CausalThreshold {
		r.infer(sc)
	}
	logging.CounterfactualDebug("scenario %d: interventions=%d divergence=%.3f consistent=%v",
		sc.ID, len(ivs), sc.Divergence, sc.Consistent)
	return sc.clone(), nil
}

// apply perturbs o in proportion to the intervention strength.
func apply(o Outcome, iv Intervention) (Outcome, error) {
	s := iv.Strength
	switch iv.Kind {
	case DisableAgent:
		o.Sync *= 1 - s
	case ForceAction:
		o.Canvas *= 1 + 0.5*s
		o.Sync *= 1 - 0.25*s
	case ModifyParameter:
		o.Canvas *= 1 + 0.25*s
		o.Patterns *= 1 - 0.5*s
	case BlockEvent:
		o.Canvas *= 1 - s
		o.Patterns *= 1 - 0.5*s
	case InjectKnowledge:
		o.Patterns = o.Patterns*(1+s) + s
	default:
		return o, fmt.Errorf("unhandled intervention kind %d", iv.Kind)
	}
	return o, nil
}

func jitter(v, spread float64, rnd Rand) float64 {
	u := 2*rnd.Float64() - 1
	return v * (1 + spread*u)
}

func rel(a, b float64) float64 {
	den := math.Max(math.Abs(a), math.Abs(b))
	if den == 0 {
		return 0
	}
	return math.Abs(a-b) / den
}

// Divergence is the weighted relative change between two outcomes, in [0,1].
func Divergence(a, b Outcome) float64 {
	d := 0.4*rel(a.Canvas, b.Canvas) + 0.3*rel(a.Sync, b.Sync) + 0.3*rel(a.Patterns, b.Patterns)
	return math.Max(0, math.Min(1, d))
}

func (r *Reasoner) record(sc Scenario) {
	if len(r.scenarios) >= r.max {
		r.scenarios = r.scenarios[1:]
	}
	r.scenarios = append(r.scenarios, sc)
	r.explored++
	r.divergentSum += sc.Divergence
}

// infer links the strongest intervention's channel to the most diverged
// component other than the channel itself.
func (r *Reasoner) infer(sc Scenario) {
	strongest := sc.Interventions[0]
	for _, iv := range sc.Interventions[1:] {
		if iv.Strength > strongest.Strength {
			strongest = iv
		}
	}
	cause := strongest.Kind.Channel()

	effect, best := "", -1.0
	for _, c := range []struct {
		name string
		v    float64
	}{
		{ComponentCanvas, rel(sc.Baseline.Canvas, sc.Actual.Canvas)},
		{ComponentSync, rel(sc.Baseline.Sync, sc.Actual.Sync)},
		{ComponentPatterns, rel(sc.Baseline.Patterns, sc.Actual.Patterns)},
	} {
		if c.name != cause && c.v > best {
			effect, best = c.name, c.v
		}
	}

	if len(r.links) >= r.max {
		r.links = r.links[1:]
	}
	r.links = append(r.links, CausalLink{Cause: cause, Effect: effect, Strength: sc.Divergence, Scenario: sc.ID})
}

// Scenarios copies the scenario log, oldest first.
func (r *Reasoner) Scenarios() []Scenario {
	out := make([]Scenario, len(r.scenarios))
	for i, s := range r.scenarios {
		out[i] = s.clone()
	}
	return out
}

// Links copies the inferred causal links, oldest first.
func (r *Reasoner) Links() []CausalLink {
	return append([]CausalLink(nil), r.links...)
}

// Explored counts scenarios ever evaluated.
func (r *Reasoner) Explored() int { return r.explored }

// AverageDivergence is the mean divergence over every scenario evaluated.
func (r *Reasoner) AverageDivergence() float64 {
	if r.explored == 0 {
		return 0
	}
	return r.divergentSum / float64(r.explored)
}

// LastDivergence is the divergence of the newest scenario, 0 if none.
func (r *Reasoner) LastDivergence() float64 {
	if len(r.scenarios) == 0 {
		return 0
	}
	return r.scenarios[len(r.scenarios)-1].Divergence
}

// Clone deep-copies the reasoner.
func (r *Reasoner) Clone() *Reasoner {
	return &Reasoner{
		cfg:          r.cfg,
		max:          r.max,
		scenarios:    r.Scenarios(),
		links:        r.Links(),
		scenarioIDs:  r.scenarioIDs.Clone(),
		branchIDs:    r.branchIDs.Clone(),
		explored:     r.explored,
		divergentSum: r.divergentSum,
	}
}
