// Package adaptive switches the kernel's time granularity in response to how
// surprising, complex and synchronized the world currently looks.
package adaptive

import (
	"fmt"

	"cogkernel/internal/config"
	"cogkernel/internal/logging"
)

// Levels is the size of the granularity ladder. Level 0 is the finest.
const Levels = 8

const historyLimit = 32

// Metrics are the inputs to one evaluation, each in [0,1].
type Metrics struct {
	Divergence      float64 `json:"divergence"`
	Complexity      float64 `json:"complexity"`
	Synchronization float64 `json:"synchronization"`
}

// Direction of a switch.
type Direction int8

const (
	Hold Direction = iota
	Finer
	Coarser
)

func (d Direction) String() string {
	switch d {
	case Hold:
		return "hold"
	case Finer:
		return "finer"
	case Coarser:
		return "coarser"
	default:
		return "unknown"
	}
}

// Switch records one level change.
type Switch struct {
	Tick   uint64  `json:"tick"`
	From   int     `json:"from"`
	To     int     `json:"to"`
	Reason string  `json:"reason"`
	Input  Metrics `json:"input"`
}

// Manager owns the active level.
type Manager struct {
	cfg         config.AdaptiveConfig
	level       int
	cooldown    int // evaluations left before another switch
	evaluations int
	history     []Switch
}

// NewManager starts at cfg.InitialLevel.
func NewManager(cfg config.AdaptiveConfig) *Manager {
	return &Manager{cfg: cfg, level: cfg.InitialLevel}
}

// Decide returns the direction the metrics argue for, ignoring cooldown.
func (m *Manager) Decide(in Metrics) (Direction, string) {
	switch {
	case in.Divergence > m.cfg.HighDivergence:
		return Finer, fmt.Sprintf("divergence %.3f > %.3f", in.Divergence, m.cfg.HighDivergence)
	case in.Synchronization > m.cfg.HighSync:
		return Finer, fmt.Sprintf("synchronization %.3f > %.3f", in.Synchronization, m.cfg.HighSync)
	case in.Complexity > m.cfg.HighComplexity:
		return Coarser, fmt.Sprintf("complexity %.3f > %.3f", in.Complexity, m.cfg.HighComplexity)
	case in.Divergence < m.cfg.LowDivergence && in.Complexity < m.cfg.LowComplexity:
		return Coarser, "quiet world"
	default:
		return Hold, ""
	}
}

// Evaluate applies one decision and reports whether the level changed.
func (m *Manager) Evaluate(in Metrics, tick uint64) bool {
	m.evaluations++
	if m.cooldown > 0 {
		m.cooldown--
		return false
	}

	dir, reason := m.Decide(in)
	to := m.level
	switch dir {
	case Finer:
		to--
	case Coarser:
		to++
	case Hold:
	}
	if to < 0 {
		to = 0
	}
	if to > Levels-1 {
		to = Levels - 1
	}
	if to == m.level {
		return false
	}

	sw := Switch{Tick: tick, From: m.level, To: to, Reason: reason, Input: in}
	if len(m.history) >= historyLimit {
		m.history = m.history[1:]
	}
	m.history = append(m.history, sw)
	logging.Adaptive("granularity %d -> %d at tick %d (%s)", m.level, to, tick, reason)
	m.level = to
	m.cooldown = m.cfg.Cooldown
	return true
}

// Level is the active granularity.
func (m *Manager) Level() int { return m.level }

// Stride is the number of ticks between periodic analytics at this level.
func (m *Manager) Stride() int { return m.level/2 + 1 }

// Window scales a base tick window to the active level.
func (m *Manager) Window(base int) int { return base + base*m.level/4 }

// History copies the recorded switches, oldest first.
func (m *Manager) History() []Switch { return append([]Switch(nil), m.history...) }

// Evaluations counts Evaluate calls.
func (m *Manager) Evaluations() int { return m.evaluations }

// Clone copies the manager.
func (m *Manager) Clone() *Manager {
	c := *m
	c.history = m.History()
	return &c
}
