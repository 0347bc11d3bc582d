package store

import (
	"fmt"
	"strings"

	"cogkernel/internal/logging"
	"cogkernel/internal/types"
)

// TaskKind tags a repair task.
type TaskKind uint8

const (
	TaskContradiction TaskKind = iota + 1
	TaskInvalidRule
)

func (k TaskKind) String() string {
	switch k {
	case TaskContradiction:
		return "contradiction"
	case TaskInvalidRule:
		return "invalid_rule"
	default:
		return "unknown"
	}
}

// TaskStatus tracks a task through the queue.
type TaskStatus uint8

const (
	TaskPending TaskStatus = iota
	TaskDone
)

// Task is a unit of repair work.
//
// Contradiction subjects are (rule, predicted fact, observed fact);
// InvalidRule subjects are (rule).
type Task struct {
	ID        uint64            `json:"id"`
	Kind      TaskKind          `json:"kind"`
	Subjects  []types.FormulaID `json:"subjects"`
	Status    TaskStatus        `json:"status"`
	CreatedAt uint64            `json:"created_at"`
}

func (t Task) key() string {
	parts := make([]string, len(t.Subjects))
	for i, s := range t.Subjects {
		parts[i] = fmt.Sprint(uint64(s))
	}
	return t.Kind.String() + ":" + strings.Join(parts, ",")
}

func (t Task) clone() Task {
	t.Subjects = append([]types.FormulaID(nil), t.Subjects...)
	return t
}

// Queue is the bounded FIFO task coordinator.
type Queue struct {
	pending   []Task
	active    map[uint64]Task // popped, not yet completed
	cap       int
	ids       *types.IDAllocator
	seenTick  uint64
	seen      map[string]bool
	dropped   int
	completed int
}

// NewQueue returns an empty queue holding at most capacity pending tasks.
func NewQueue(capacity int) *Queue {
	return &Queue{
		cap:    capacity,
		active: make(map[uint64]Task),
		ids:    types.NewIDAllocator(),
		seen:   make(map[string]bool),
	}
}

// Enqueue adds a pending task unless an identical one was already enqueued
// this tick. When the queue is full the oldest pending task is dropped.
func (q *Queue) Enqueue(kind TaskKind, subjects []types.FormulaID, tick uint64) (Task, bool) {
	if tick != q.seenTick {
		q.seenTick = tick
		q.seen = make(map[string]bool)
	}
	t := Task{Kind: kind, Subjects: append([]types.FormulaID(nil), subjects...), Status: TaskPending, CreatedAt: tick}
	if q.seen[t.key()] {
		return Task{}, false
	}
	q.seen[t.key()] = true

	if len(q.pending) >= q.cap {
		old := q.pending[0]
		q.pending = q.pending[1:]
		q.dropped++
		logging.StoreWarn("tasks: queue full, dropped task %d (%s)", old.ID, old.Kind)
	}
	t.ID = q.ids.Next()
	q.pending = append(q.pending, t)
	return t.clone(), true
}

// Pop removes and returns the oldest pending task.
func (q *Queue) Pop() (Task, bool) {
	if len(q.pending) == 0 {
		return Task{}, false
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	q.active[t.ID] = t
	return t.clone(), true
}

// Complete marks a popped task done.
func (q *Queue) Complete(id uint64) error {
	if _, ok := q.active[id]; !ok {
		return types.ReferenceFault("tasks", id)
	}
	delete(q.active, id)
	q.completed++
	return nil
}

// Pending is the number of tasks waiting.
func (q *Queue) Pending() int { return len(q.pending) }

// PendingTasks copies the waiting tasks, oldest first.
func (q *Queue) PendingTasks() []Task {
	out := make([]Task, len(q.pending))
	for i, t := range q.pending {
		out[i] = t.clone()
	}
	return out
}

// Dropped counts tasks evicted on overflow.
func (q *Queue) Dropped() int { return q.dropped }

// Completed counts tasks marked done.
func (q *Queue) Completed() int { return q.completed }

// Cap is the pending-task bound.
func (q *Queue) Cap() int { return q.cap }

// Clone deep-copies the queue.
func (q *Queue) Clone() *Queue {
	c := &Queue{
		pending:   make([]Task, len(q.pending)),
		active:    make(map[uint64]Task, len(q.active)),
		cap:       q.cap,
		ids:       q.ids.Clone(),
		seenTick:  q.seenTick,
		seen:      make(map[string]bool, len(q.seen)),
		dropped:   q.dropped,
		completed: q.completed,
	}
	for i, t := range q.pending {
		c.pending[i] = t.clone()
	}
	for k, v := range q.active {
		c.active[k] = v.clone()
	}
	for k := range q.seen {
		c.seen[k] = true
	}
	return c
}
