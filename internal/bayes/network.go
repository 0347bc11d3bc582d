// Package bayes maintains a small discrete Bayesian network over kernel
// observables, learned from recorded episodes.
package bayes

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"cogkernel/internal/config"
	"cogkernel/internal/logging"
	"cogkernel/internal/types"
)

// Bounds on node arity.
const (
	MinStates = 2
	MaxStates = 10
)

// ErrCycle is returned when an edge would close a directed cycle.
var ErrCycle = errors.New("edge would create a cycle")

// Node is a discrete variable.
type Node struct {
	Name   string    `json:"name"`
	States int       `json:"states"`
	Prior  []float64 `json:"prior"`
	counts []float64
}

// Edge is a parent->child dependency with its own CPD.
type Edge struct {
	Parent    string      `json:"parent"`
	Child     string      `json:"child"`
	CPD       [][]float64 `json:"cpd"` // [parentState][childState]
	Strength  float64     `json:"strength"`
	Support   int         `json:"support"`
	Confirmed bool        `json:"confirmed"`
	counts    [][]float64
}

// Inference is the answer to one query.
type Inference struct {
	State        int       `json:"state"`
	Probability  float64   `json:"probability"`
	Entropy      float64   `json:"entropy"` // bits
	Distribution []float64 `json:"distribution"`
}

// Network is a bounded DAG of discrete nodes.
type Network struct {
	cfg      config.BayesConfig
	maxNodes int
	nodes    []Node
	index    map[string]int
	edges    []Edge
	evidence map[int]int

	queries    int
	entropySum float64
}

// NewNetwork returns an empty network holding at most maxNodes nodes.
func NewNetwork(cfg config.BayesConfig, maxNodes int) *Network {
	return &Network{
		cfg:      cfg,
		maxNodes: maxNodes,
		index:    make(map[string]int),
		evidence: make(map[int]int),
	}
}

func uniform(k int) []float64 {
	out := make([]float64, k)
	for i := range out {
		out[i] = 1 / float64(k)
	}
	return out
}

// AddNode registers a variable with a uniform prior.
func (n *Network) AddNode(name string, states int) error {
	if states < MinStates || states > MaxStates {
		return types.InconsistentFault("bayes", 0, fmt.Errorf("node %s: %d states outside %d..%d", name, states, MinStates, MaxStates))
	}
	if _, ok := n.index[name]; ok {
		return types.InconsistentFault("bayes", 0, fmt.Errorf("node %s already registered", name))
	}
	if len(n.nodes) >= n.maxNodes {
		return types.CapacityFault("bayes", n.maxNodes)
	}
	n.index[name] = len(n.nodes)
	n.nodes = append(n.nodes, Node{Name: name, States: states, Prior: uniform(states), counts: make([]float64, states)})
	return nil
}

// SetPrior replaces a node's prior.
func (n *Network) SetPrior(name string, prior []float64) error {
	i, err := n.node(name)
	if err != nil {
		return err
	}
	if err := checkDistribution(prior, n.nodes[i].States); err != nil {
		return types.InconsistentFault("bayes", 0, fmt.Errorf("node %s prior: %w", name, err))
	}
	n.nodes[i].Prior = append([]float64(nil), prior...)
	return nil
}

func checkDistribution(p []float64, k int) error {
	if len(p) != k {
		return fmt.Errorf("want %d entries, got %d", k, len(p))
	}
	sum := 0.0
	for _, v := range p {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("probability %v outside [0,1]", v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("sums to %v", sum)
	}
	return nil
}

func (n *Network) node(name string) (int, error) {
	i, ok := n.index[name]
	if !ok {
		return 0, types.InconsistentFault("bayes", 0, fmt.Errorf("unknown node %s", name))
	}
	return i, nil
}

// reaches reports whether to is reachable from from along edges.
func (n *Network) reaches(from, to string) bool {
	stack := []string{from}
	seen := map[string]bool{}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, e := range n.edges {
			if e.Parent == cur {
				stack = append(stack, e.Child)
			}
		}
	}
	return false
}

// AddEdge registers parent->child. A nil cpd starts uniform. Duplicate edges
// and edges that would close a cycle are rejected.
func (n *Network) AddEdge(parent, child string, cpd [][]float64, strength float64) error {
	pi, err := n.node(parent)
	if err != nil {
		return err
	}
	ci, err := n.node(child)
	if err != nil {
		return err
	}
	if n.HasEdge(parent, child) {
		return types.InconsistentFault("bayes", 0, fmt.Errorf("edge %s->%s already registered", parent, child))
	}
	if parent == child || n.reaches(child, parent) {
		return fmt.Errorf("bayes: %s->%s: %w", parent, child, ErrCycle)
	}

	ps, cs := n.nodes[pi].States, n.nodes[ci].States
	if cpd == nil {
		cpd = make([][]float64, ps)
		for i := range cpd {
			cpd[i] = uniform(cs)
		}
	}
	if len(cpd) != ps {
		return types.InconsistentFault("bayes", 0, fmt.Errorf("edge %s->%s: cpd has %d rows, want %d", parent, child, len(cpd), ps))
	}
	rows := make([][]float64, ps)
	counts := make([][]float64, ps)
	for i, row := range cpd {
		if err := checkDistribution(row, cs); err != nil {
			return types.InconsistentFault("bayes", 0, fmt.Errorf("edge %s->%s row %d: %w", parent, child, i, err))
		}
		rows[i] = append([]float64(nil), row...)
		counts[i] = make([]float64, cs)
	}
	if strength <= 0 {
		strength = 1
	}
	n.edges = append(n.edges, Edge{Parent: parent, Child: child, CPD: rows, Strength: strength, counts: counts})
	logging.BayesDebug("edge %s->%s registered (strength %.3f)", parent, child, strength)
	return nil
}

// HasEdge reports whether parent->child is registered.
func (n *Network) HasEdge(parent, child string) bool {
	for _, e := range n.edges {
		if e.Parent == parent && e.Child == child {
			return true
		}
	}
	return false
}

// SetEvidence clamps a node to an observed state.
func (n *Network) SetEvidence(name string, state int) error {
	i, err := n.node(name)
	if err != nil {
		return err
	}
	if state < 0 || state >= n.nodes[i].States {
		return types.InconsistentFault("bayes", 0, fmt.Errorf("node %s: state %d out of range", name, state))
	}
	n.evidence[i] = state
	return nil
}

// ClearEvidence removes every clamp.
func (n *Network) ClearEvidence() {
	n.evidence = make(map[int]int)
}

// topo returns node indices parents-first; ties by registration order.
func (n *Network) topo() []int {
	indeg := make([]int, len(n.nodes))
	for _, e := range n.edges {
		indeg[n.index[e.Child]]++
	}
	var ready, out []int
	for i, d := range indeg {
		if d == 0 {
			ready = append(ready, i)
		}
	}
	for len(ready) > 0 {
		sort.Ints(ready)
		cur := ready[0]
		ready = ready[1:]
		out = append(out, cur)
		for _, e := range n.edges {
			if e.Parent != n.nodes[cur].Name {
				continue
			}
			c := n.index[e.Child]
			indeg[c]--
			if indeg[c] == 0 {
				ready = append(ready, c)
			}
		}
	}
	return out
}

func delta(k, s int) []float64 {
	out := make([]float64, k)
	out[s] = 1
	return out
}

// forward computes every marginal with the given clamps applied.
func (n *Network) forward(clamp map[int]int) [][]float64 {
	marg := make([][]float64, len(n.nodes))
	for _, i := range n.topo() {
		nd := n.nodes[i]
		if s, ok := clamp[i]; ok {
			marg[i] = delta(nd.States, s)
			continue
		}
		var parents []Edge
		total := 0.0
		for _, e := range n.edges {
			if e.Child == nd.Name {
				parents = append(parents, e)
				total += e.Strength
			}
		}
		if len(parents) == 0 {
			marg[i] = append([]float64(nil), nd.Prior...)
			continue
		}
		// Parents combine as a strength-weighted mixture of their CPDs.
		dist := make([]float64, nd.States)
		for _, e := range parents {
			w := e.Strength / total
			pm := marg[n.index[e.Parent]]
			for ps, pp := range pm {
				for cs := range dist {
					dist[cs] += w * pp * e.CPD[ps][cs]
				}
			}
		}
		marg[i] = dist
	}
	return marg
}

func (n *Network) descendants(i int) map[int]bool {
	out := map[int]bool{}
	stack := []string{n.nodes[i].Name}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range n.edges {
			if e.Parent == cur {
				c := n.index[e.Child]
				if !out[c] {
					out[c] = true
					stack = append(stack, e.Child)
				}
			}
		}
	}
	return out
}

// maxJointStates bounds the joint table Infer enumerates exactly.
const maxJointStates = 1 << 16

// Infer returns the most probable state of target given the evidence. When
// the joint state space has at most maxJointStates assignments the posterior
// is exact: the joint Π P(x_i | parents) is summed over every assignment that
// agrees with the evidence. Larger networks fall back to
// P(X|E) ∝ P(X)·Π P(e|X) over evidence below X, which treats several
// descendant evidence nodes as independent given X and is approximate.
func (n *Network) Infer(target string) (Inference, error) {
	ti, err := n.node(target)
	if err != nil {
		return Inference{}, err
	}
	k := n.nodes[ti].States

	var post []float64
	if s, ok := n.evidence[ti]; ok {
		post = delta(k, s)
	} else {
		if n.jointSize() <= maxJointStates {
			post = n.exact(ti)
		} else {
			post = n.approximate(ti)
		}
		sum := 0.0
		for _, v := range post {
			sum += v
		}
		if sum == 0 {
			return Inference{}, types.InconsistentFault("bayes", 0, fmt.Errorf("evidence has zero probability for %s", target))
		}
		for i := range post {
			post[i] /= sum
		}
	}

	inf := Inference{Distribution: post}
	for s, p := range post {
		if p > inf.Probability {
			inf.State, inf.Probability = s, p
		}
		if p > 0 {
			inf.Entropy -= p * math.Log2(p)
		}
	}
	n.queries++
	n.entropySum += inf.Entropy
	logging.BayesDebug("infer %s: state=%d p=%.4f H=%.4f", target, inf.State, inf.Probability, inf.Entropy)
	return inf, nil
}

func (n *Network) jointSize() int {
	size := 1
	for _, nd := range n.nodes {
		size *= nd.States
		if size > maxJointStates {
			break
		}
	}
	return size
}

// exact returns the unnormalized P(target, evidence) per target state.
func (n *Network) exact(ti int) []float64 {
	order := n.topo()
	parents := make([][]Edge, len(n.nodes))
	totals := make([]float64, len(n.nodes))
	for _, e := range n.edges {
		c := n.index[e.Child]
		parents[c] = append(parents[c], e)
		totals[c] += e.Strength
	}

	post := make([]float64, n.nodes[ti].States)
	assign := make([]int, len(n.nodes))
	var walk func(depth int, p float64)
	walk = func(depth int, p float64) {
		if p == 0 {
			return
		}
		if depth == len(order) {
			post[assign[ti]] += p
			return
		}
		i := order[depth]
		for s := 0; s < n.nodes[i].States; s++ {
			if ev, ok := n.evidence[i]; ok && ev != s {
				continue
			}
			assign[i] = s
			walk(depth+1, p*n.conditional(i, s, parents[i], totals[i], assign))
		}
	}
	walk(0, 1)
	return post
}

// conditional is P(node i = s | parents as assigned). Parents combine as a
// strength-weighted mixture of their CPDs.
func (n *Network) conditional(i, s int, parents []Edge, total float64, assign []int) float64 {
	if len(parents) == 0 {
		return n.nodes[i].Prior[s]
	}
	p := 0.0
	for _, e := range parents {
		p += e.Strength / total * e.CPD[assign[n.index[e.Parent]]][s]
	}
	return p
}

// approximate combines the forward marginal of target with one likelihood
// per descendant evidence node, in node order.
func (n *Network) approximate(ti int) []float64 {
	k := n.nodes[ti].States
	below := n.descendants(ti)
	upper := make(map[int]int)
	var lower []int
	for node, s := range n.evidence {
		if below[node] {
			lower = append(lower, node)
		} else {
			upper[node] = s
		}
	}
	sort.Ints(lower)
	post := n.forward(upper)[ti]

	for _, node := range lower {
		s := n.evidence[node]
		for x := 0; x < k; x++ {
			clamp := make(map[int]int, len(upper)+1)
			for u, us := range upper {
				clamp[u] = us
			}
			clamp[ti] = x
			post[x] *= n.forward(clamp)[node][s]
		}
	}
	return post
}

// Learn counts one joint assignment and re-estimates priors and CPDs with
// Laplace smoothing. Nodes missing from the assignment are skipped.
func (n *Network) Learn(assignment map[string]int) error {
	names := make([]string, 0, len(assignment))
	for name := range assignment {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		i, err := n.node(name)
		if err != nil {
			return err
		}
		s := assignment[name]
		if s < 0 || s >= n.nodes[i].States {
			return types.InconsistentFault("bayes", 0, fmt.Errorf("node %s: state %d out of range", name, s))
		}
		nd := &n.nodes[i]
		nd.counts[s]++
		nd.Prior = smooth(nd.counts)
	}

	for ei := range n.edges {
		e := &n.edges[ei]
		ps, okP := assignment[e.Parent]
		cs, okC := assignment[e.Child]
		if !okP || !okC {
			continue
		}
		e.counts[ps][cs]++
		e.CPD[ps] = smooth(e.counts[ps])
		e.Support++
		if !e.Confirmed && e.Support >= n.cfg.ConfirmSupport {
			e.Confirmed = true
			logging.BayesDebug("edge %s->%s confirmed (support %d)", e.Parent, e.Child, e.Support)
		}
	}
	return nil
}

// smooth is (count+1)/(total+K).
func smooth(counts []float64) []float64 {
	total := 0.0
	for _, c := range counts {
		total += c
	}
	out := make([]float64, len(counts))
	for i, c := range counts {
		out[i] = (c + 1) / (total + float64(len(counts)))
	}
	return out
}

// Nodes copies the registered nodes.
func (n *Network) Nodes() []Node {
	out := make([]Node, len(n.nodes))
	for i, nd := range n.nodes {
		out[i] = nd.clone()
	}
	return out
}

// Edges copies the registered edges.
func (n *Network) Edges() []Edge {
	out := make([]Edge, len(n.edges))
	for i, e := range n.edges {
		out[i] = e.clone()
	}
	return out
}

// ConfirmedEdges counts edges with enough support.
func (n *Network) ConfirmedEdges() int {
	c := 0
	for _, e := range n.edges {
		if e.Confirmed {
			c++
		}
	}
	return c
}

// AverageEntropy is the mean entropy over every Infer call.
func (n *Network) AverageEntropy() float64 {
	if n.queries == 0 {
		return 0
	}
	return n.entropySum / float64(n.queries)
}

func (nd Node) clone() Node {
	nd.Prior = append([]float64(nil), nd.Prior...)
	nd.counts = append([]float64(nil), nd.counts...)
	return nd
}

func (e Edge) clone() Edge {
	cpd := make([][]float64, len(e.CPD))
	counts := make([][]float64, len(e.counts))
	for i := range e.CPD {
		cpd[i] = append([]float64(nil), e.CPD[i]...)
	}
	for i := range e.counts {
		counts[i] = append([]float64(nil), e.counts[i]...)
	}
	e.CPD, e.counts = cpd, counts
	return e
}

// Clone deep-copies the network.
func (n *Network) Clone() *Network {
	c := &Network{
		cfg:        n.cfg,
		maxNodes:   n.maxNodes,
		nodes:      n.Nodes(),
		index:      make(map[string]int, len(n.index)),
		edges:      n.Edges(),
		evidence:   make(map[int]int, len(n.evidence)),
		queries:    n.queries,
		entropySum: n.entropySum,
	}
	for k, v := range n.index {
		c.index[k] = v
	}
	for k, v := range n.evidence {
		c.evidence[k] = v
	}
	return c
}
