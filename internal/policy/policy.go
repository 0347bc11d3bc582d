// Package policy learns which control action to take in which kernel state
// using tabular Q-learning with epsilon-greedy exploration.
package policy

import (
	"fmt"
	"sort"

	"cogkernel/internal/config"
	"cogkernel/internal/logging"
	"cogkernel/internal/types"
)

// Rand is the slice of the kernel's random source the learner draws from.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// State is a discretized kernel situation.
type State string

// Episode is one (s, a, r, s') transition.
type Episode struct {
	State  State        `json:"state"`
	Action types.Action `json:"action"`
	Reward float64      `json:"reward"`
	Next   State        `json:"next"`
}

// Learner holds the Q-table and a bounded replay ring.
type Learner struct {
	cfg         config.PolicyConfig
	actions     []types.Action
	maxStates   int
	maxEpisodes int
	q           map[State][]float64 // indexed by position in actions
	rejected    int
	episodes    []Episode
	updates     int
}

// NewLearner returns a learner choosing among actions (declaration order is
// the greedy tie-break order).
func NewLearner(cfg config.PolicyConfig, actions []types.Action, maxStates, maxEpisodes int) *Learner {
	return &Learner{
		cfg:         cfg,
		actions:     append([]types.Action(nil), actions...),
		maxStates:   maxStates,
		maxEpisodes: maxEpisodes,
		q:           make(map[State][]float64),
	}
}

func (l *Learner) index(a types.Action) (int, error) {
	for i, x := range l.actions {
		if x == a {
			return i, nil
		}
	}
	return 0, fmt.Errorf("action %s not in vocabulary", a)
}

// row returns the Q-values of s, creating the row if there is room. A nil
// row means the state is unknown and the table is full.
func (l *Learner) row(s State, create bool) []float64 {
	if r, ok := l.q[s]; ok {
		return r
	}
	if !create {
		return nil
	}
	if len(l.q) >= l.maxStates {
		l.rejected++
		return nil
	}
	r := make([]float64, len(l.actions))
	l.q[s] = r
	return r
}

// Value is Q(s, a); unknown states are all zero.
func (l *Learner) Value(s State, a types.Action) float64 {
	i, err := l.index(a)
	if err != nil {
		return 0
	}
	if r := l.row(s, false); r != nil {
		return r[i]
	}
	return 0
}

func (l *Learner) maxQ(s State) float64 {
	r := l.row(s, false)
	if r == nil {
		return 0
	}
	best := r[0]
	for _, v := range r[1:] {
		if v > best {
			best = v
		}
	}
	return best
}

// Greedy is the best known action for s; ties go to the earlier action.
func (l *Learner) Greedy(s State) types.Action {
	r := l.row(s, false)
	if r == nil {
		return l.actions[0]
	}
	best := 0
	for i := 1; i < len(r); i++ {
		if r[i] > r[best] {
			best = i
		}
	}
	return l.actions[best]
}

// Choose picks an action epsilon-greedily. Exactly one Float64 is drawn,
// plus one IntN when exploring.
func (l *Learner) Choose(s State, rnd Rand) types.Action {
	if rnd.Float64() < l.cfg.Epsilon {
		return l.actions[rnd.IntN(len(l.actions))]
	}
	return l.Greedy(s)
}

// Update applies Q(s,a) += α(r + γ·max Q(s',·) − Q(s,a)) and records the
// episode. Updates for states that do not fit are dropped and counted.
func (l *Learner) Update(ep Episode) error {
	i, err := l.index(ep.Action)
	if err != nil {
		return types.InconsistentFault("policy", 0, err)
	}
	if len(l.episodes) >= l.maxEpisodes {
		l.episodes = l.episodes[1:]
	}
	l.episodes = append(l.episodes, ep)

	target := ep.Reward + l.cfg.Gamma*l.maxQ(ep.Next)
	r := l.row(ep.State, true)
	if r == nil {
		logging.PolicyDebug("update: state %q rejected, table full (%d)", ep.State, l.maxStates)
		return nil
	}
	r[i] += l.cfg.Alpha * (target - r[i])
	l.updates++
	logging.PolicyDebug("update: Q(%s,%s)=%.4f reward=%.3f", ep.State, ep.Action, r[i], ep.Reward)
	return nil
}

// Replay re-applies the recorded episodes oldest first.
func (l *Learner) Replay() error {
	eps := append([]Episode(nil), l.episodes...)
	l.episodes = l.episodes[:0]
	for _, ep := range eps {
		if err := l.Update(ep); err != nil {
			return err
		}
	}
	return nil
}

// States lists the known states in sorted order.
func (l *Learner) States() []State {
	out := make([]State, 0, len(l.q))
	for s := range l.q {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Policies is the number of states with a learned row.
func (l *Learner) Policies() int { return len(l.q) }

// Rejected counts states refused for lack of room.
func (l *Learner) Rejected() int { return l.rejected }

// Episodes copies the replay ring, oldest first.
func (l *Learner) Episodes() []Episode { return append([]Episode(nil), l.episodes...) }

// Updates counts applied Q updates.
func (l *Learner) Updates() int { return l.updates }

// Clone deep-copies the learner.
func (l *Learner) Clone() *Learner {
	c := *l
	c.actions = append([]types.Action(nil), l.actions...)
	c.episodes = l.Episodes()
	c.q = make(map[State][]float64, len(l.q))
	for s, r := range l.q {
		c.q[s] = append([]float64(nil), r...)
	}
	return &c
}
