package core

import (
	"fmt"

	"cogkernel/internal/logging"
	"cogkernel/internal/store"
	"cogkernel/internal/types"
)

// repair resolves pending tasks in FIFO order. The budget grows with the
// backlog so the queue drains as fast as contradictions arrive.
func (k *Kernel) repair(run *tickRun) error {
	st := run.st
	budget := k.cfg.Repair.TasksPerTick + st.tasks.Pending()/k.cfg.Repair.BacklogStep
	if run.action == types.ActionEscalate {
		budget++
	}

	for i := 0; i < budget; i++ {
		task, ok := st.tasks.Pop()
		if !ok {
			break
		}
		var err error
		switch task.Kind {
		case store.TaskContradiction:
			err = k.resolveContradiction(run, task)
		case store.TaskInvalidRule:
			err = k.invalidate(run, task.Subjects[0])
		default:
			err = types.InconsistentFault("repair", task.ID, fmt.Errorf("unhandled task kind %d", task.Kind))
		}
		if err != nil {
			return err
		}
		if err := st.tasks.Complete(task.ID); err != nil {
			return err
		}
		run.report.TasksResolved++
		st.stats.tasksResolved++
		st.window.resolved++
	}
	return nil
}

// resolveContradiction retires the rule that mispredicted and records what
// actually happened to the subject as a new rule.
func (k *Kernel) resolveContradiction(run *tickRun, task store.Task) error {
	st := run.st
	if len(task.Subjects) != 3 {
		return types.InconsistentFault("repair", task.ID, fmt.Errorf("contradiction with %d subjects", len(task.Subjects)))
	}
	for _, id := range task.Subjects {
		if _, err := st.store.MustGet("repair", id); err != nil {
			return err
		}
	}
	if err := k.invalidate(run, task.Subjects[0]); err != nil {
		return err
	}

	observed, _ := st.store.Get(task.Subjects[2])
	tr := st.subjects[observed.Subject]
	if tr.prev == 0 || tr.prev == tr.cur {
		return nil
	}
	explanation := types.Formula{
		Kind:        types.KindRule,
		Condition:   tr.prev,
		Consequence: tr.cur,
		Confidence:  k.cfg.Repair.ExplanatoryConfidence,
		CreatedAt:   run.tick,
		Active:      true,
	}
	if _, exists := st.store.Find(explanation); exists {
		return nil
	}
	id, err := st.store.Intern(explanation)
	if err != nil {
		return err
	}
	logging.Repair("task %d: explanatory rule %d (%d -> %d) for %s", task.ID, id, tr.prev, tr.cur, observed.Subject)
	return nil
}

// invalidate removes a rule from future prediction.
func (k *Kernel) invalidate(run *tickRun, id types.FormulaID) error {
	st := run.st
	rule, err := st.store.MustGet("repair", id)
	if err != nil {
		return err
	}
	if !rule.IsRule() {
		return types.InconsistentFault("repair", uint64(id), fmt.Errorf("%s is not a rule", rule.Kind))
	}
	if !rule.Active {
		return nil
	}
	if err := st.store.Deactivate(id); err != nil {
		return err
	}
	st.stats.invalidated++
	logging.RepairDebug("rule %d deactivated at tick %d", id, run.tick)
	return nil
}
