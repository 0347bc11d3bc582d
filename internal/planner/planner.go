// Package planner searches a bounded tree of control actions for the one
// that moves the kernel's metrics closest to a goal.
package planner

import (
	"fmt"
	"math"

	"cogkernel/internal/config"
	"cogkernel/internal/logging"
	"cogkernel/internal/types"
)

// Dim is the length of a plan state vector.
const Dim = 4

// State vector components.
const (
	MetricCanvas = iota
	MetricSync
	MetricPatterns
	MetricContradictions
)

// gains is how fast each action pulls each metric toward the goal.
var gains = [types.NumActions][Dim]float64{
	types.ActionWait:       {0.05, 0.05, 0.05, 0.05},
	types.ActionEscalate:   {0.10, 0.05, 0.05, 0.50},
	types.ActionStabilize:  {0.30, 0.10, 0.10, 0.20},
	types.ActionAdapt:      {0.20, 0.20, 0.30, 0.10},
	types.ActionExplore:    {0.10, 0.10, 0.50, 0.05},
	types.ActionCoordinate: {0.05, 0.50, 0.10, 0.05},
}

// Gains returns the per-metric step sizes of an action.
func Gains(a types.Action) [Dim]float64 { return gains[a] }

// Branch is one node of the search tree.
type Branch struct {
	ID     int          `json:"id"`
	Parent int          `json:"parent"` // -1 for the root
	Action types.Action `json:"action"`
	Depth  int          `json:"depth"`
	Visits int          `json:"visits"`
	Value  float64      `json:"value"` // mean reward
	UCB    float64      `json:"ucb"`
}

// Trajectory is the state path one action induces.
type Trajectory struct {
	Steps              int       `json:"steps"`
	Feasible           bool      `json:"feasible"` // converged within budget
	SuccessProbability float64   `json:"success_probability"`
	Final              []float64 `json:"final"`
}

// Outcome scores a recommendation.
type Outcome struct {
	Probability float64 `json:"probability"`
	Desirable   bool    `json:"desirable"`
	Quality     float64 `json:"quality"`
}

// Recommendation is the answer to one planning request.
type Recommendation struct {
	Branch     Branch     `json:"branch"`
	Trajectory Trajectory `json:"trajectory"`
	Outcome    Outcome    `json:"outcome"`
	Nodes      int        `json:"nodes"`
	Iterations int        `json:"iterations"`
}

type node struct {
	id       int
	parent   int
	action   types.Action
	depth    int
	state    []float64
	steps    int
	visits   int
	total    float64
	children []int
}

// Planner runs Monte Carlo tree search without randomness: unvisited
// children are tried in action order and rollouts are deterministic.
type Planner struct {
	cfg         config.PlannerConfig
	maxBranches int
}

// New returns a planner whose trees hold at most maxBranches nodes.
func New(cfg config.PlannerConfig, maxBranches int) *Planner {
	return &Planner{cfg: cfg, maxBranches: maxBranches}
}

func distance(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}

// step applies S' = S + α(T - S).
func step(s, goal []float64, a types.Action) []float64 {
	g := gains[a]
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i] + g[i]*(goal[i]-s[i])
	}
	return out
}

// advance applies a for up to n steps, stopping once within eps of goal.
func advance(s, goal []float64, a types.Action, n int, eps float64) ([]float64, int) {
	taken := 0
	for taken < n && distance(s, goal) >= eps {
		s = step(s, goal, a)
		taken++
	}
	return s, taken
}

// quality is 1 - d(final)/d(start), clamped to [0,1].
func quality(start, final, goal []float64) float64 {
	d0 := distance(start, goal)
	if d0 == 0 {
		return 1
	}
	q := 1 - distance(final, goal)/d0
	return math.Max(0, math.Min(1, q))
}

func validState(name string, v []float64) error {
	if len(v) != Dim {
		return fmt.Errorf("%s has %d components, want %d", name, len(v), Dim)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%s[%d] is %v", name, i, x)
		}
	}
	return nil
}

type search struct {
	*Planner
	start, goal []float64
	budget      int
	seg         int
	nodes       []node
}

// Plan searches for the action that best moves start toward goal within
// horizon steps. It does not mutate the planner.
func (p *Planner) Plan(start, goal []float64, horizon int) (Recommendation, error) {
	if horizon <= 0 {
		return Recommendation{}, types.InconsistentFault("planner", 0, fmt.Errorf("horizon %d must be positive", horizon))
	}
	if err := validState("start", start); err != nil {
		return Recommendation{}, types.InconsistentFault("planner", 0, err)
	}
	if err := validState("goal", goal); err != nil {
		return Recommendation{}, types.InconsistentFault("planner", 0, err)
	}

	budget := min(horizon, p.cfg.StepBudget)
	sr := &search{
		Planner: p,
		start:   append([]float64(nil), start...),
		goal:    append([]float64(nil), goal...),
		budget:  budget,
		seg:     max(1, budget/p.cfg.MaxDepth),
	}
	sr.nodes = append(sr.nodes, node{id: 0, parent: -1, state: sr.start})

	for i := 0; i < p.cfg.Iterations; i++ {
		leaf := sr.expand(sr.selectLeaf())
		reward := sr.rollout(leaf)
		sr.backprop(leaf, reward)
	}

	root := &sr.nodes[0]
	if len(root.children) == 0 {
		return Recommendation{}, types.CapacityFault("planner", p.maxBranches)
	}
	best := sr.bestChild(root)
	bn := &sr.nodes[best]

	traj := sr.trajectory(bn.action)
	rec := Recommendation{
		Branch:     sr.branch(best, root.visits),
		Trajectory: traj,
		Nodes:      len(sr.nodes),
		Iterations: p.cfg.Iterations,
	}
	q := quality(sr.start, traj.Final, sr.goal)
	rec.Outcome = Outcome{
		Probability: rec.Branch.Value,
		Desirable:   traj.Feasible || q >= 0.5,
		Quality:     q,
	}
	logging.PlannerDebug("plan: action=%s visits=%d value=%.3f quality=%.3f nodes=%d",
		bn.action, bn.visits, rec.Branch.Value, q, len(sr.nodes))
	return rec, nil
}

func (sr *search) ucb(n *node, parentVisits int) float64 {
	if n.visits == 0 {
		return math.Inf(1)
	}
	avg := n.total / float64(n.visits)
	return avg + sr.cfg.ExplorationC*math.Sqrt(math.Log(float64(parentVisits))/float64(n.visits))
}

// bestChild maximizes UCB; ties go to the earliest id.
func (sr *search) bestChild(n *node) int {
	best, bestV := -1, math.Inf(-1)
	for _, c := range n.children {
		v := sr.ucb(&sr.nodes[c], n.visits)
		if best < 0 || v > bestV {
			best, bestV = c, v
		}
	}
	return best
}

func (sr *search) expandable(n *node) bool {
	return n.depth < sr.cfg.MaxDepth && len(n.children) < types.NumActions && len(sr.nodes) < sr.maxBranches
}

func (sr *search) selectLeaf() int {
	cur := 0
	for {
		n := &sr.nodes[cur]
		if sr.expandable(n) || len(n.children) == 0 {
			return cur
		}
		cur = sr.bestChild(n)
	}
}

// expand adds the next untried action under id, if there is room.
func (sr *search) expand(id int) int {
	n := &sr.nodes[id]
	if !sr.expandable(n) {
		return id
	}
	a := types.AllActions()[len(n.children)]
	state, taken := advance(n.state, sr.goal, a, sr.seg, sr.cfg.ConvergenceEpsilon)
	child := node{
		id:     len(sr.nodes),
		parent: id,
		action: a,
		depth:  n.depth + 1,
		state:  state,
		steps:  n.steps + taken,
	}
	n.children = append(n.children, child.id)
	sr.nodes = append(sr.nodes, child)
	return child.id
}

// rollout keeps applying the leaf's action until convergence or the budget.
func (sr *search) rollout(id int) float64 {
	n := &sr.nodes[id]
	if id == 0 {
		return quality(sr.start, sr.start, sr.goal)
	}
	final, _ := advance(n.state, sr.goal, n.action, sr.budget-n.steps, sr.cfg.ConvergenceEpsilon)
	return quality(sr.start, final, sr.goal)
}

func (sr *search) backprop(id int, reward float64) {
	for id >= 0 {
		n := &sr.nodes[id]
		n.visits++
		n.total += reward
		id = n.parent
	}
}

func (sr *search) branch(id, parentVisits int) Branch {
	n := &sr.nodes[id]
	b := Branch{ID: n.id, Parent: n.parent, Action: n.action, Depth: n.depth, Visits: n.visits, UCB: sr.ucb(n, parentVisits)}
	if n.visits > 0 {
		b.Value = n.total / float64(n.visits)
	}
	return b
}

// trajectory follows a single action from the start for the whole budget.
func (sr *search) trajectory(a types.Action) Trajectory {
	final, steps := advance(sr.start, sr.goal, a, sr.budget, sr.cfg.ConvergenceEpsilon)
	t := Trajectory{
		Steps:    steps,
		Feasible: distance(final, sr.goal) < sr.cfg.ConvergenceEpsilon,
		Final:    final,
	}
	t.SuccessProbability = quality(sr.start, final, sr.goal)
	if t.Feasible {
		t.SuccessProbability = 1
	}
	return t
}
