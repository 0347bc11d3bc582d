package core

import (
	"cogkernel/internal/logging"
	"cogkernel/internal/store"
	"cogkernel/internal/types"
)

// exhausted is the confidence below which a rule counts as spent.
const exhausted = 1e-9

// perceive turns observations into facts and checks due predictions.
func (k *Kernel) perceive(run *tickRun) error {
	st := run.st
	pc := k.cfg.Perception

	for _, o := range run.obs {
		if err := o.Validate(); err != nil {
			return types.InconsistentFault("perception", 0, err)
		}
	}
	logging.PerceptionDebug("tick %d: %d observations", run.tick, len(run.obs))

	for _, o := range run.obs {
		fact := types.Formula{
			Kind:       types.KindFact,
			Subject:    o.Entity,
			Predicates: types.PredicatesFrom(o.Attrs),
			Confidence: pc.ObservationConfidence,
			CreatedAt:  run.tick,
			Active:     true,
		}
		_, existed := st.store.Find(fact)
		id, err := st.store.Intern(fact)
		if err != nil {
			return err
		}
		run.current[o.Entity] = id
		if _, evicted := st.canvas.Push(store.Item{Formula: id, Kind: store.ItemObservation, ValidFrom: run.tick, ValidUntil: run.tick}); evicted {
			run.report.Evicted++
		}

		if !existed {
			run.report.FactsAdded++
			// The observed state persists until shown otherwise.
			if _, err := st.store.Intern(types.Formula{
				Kind:        types.KindRule,
				Condition:   id,
				Consequence: id,
				Confidence:  pc.FrameRuleConfidence,
				CreatedAt:   run.tick,
				Active:      true,
			}); err != nil {
				return err
			}
		}

		tr := st.subjects[o.Entity]
		if tr.cur != id {
			tr.prev, tr.cur = tr.cur, id
			st.subjects[o.Entity] = tr
		}

		if _, err := st.agents.Observe(o.Entity, types.PredicatesFrom(o.Attrs), run.tick, pc.MismatchTolerance); err != nil {
			return err
		}
	}

	return k.checkPredictions(run)
}

// checkPredictions compares every prediction due this tick against the
// observation of its subject.
func (k *Kernel) checkPredictions(run *tickRun) error {
	st := run.st
	pc := k.cfg.Perception

	var due []store.Item
	for it := range st.canvas.Due(run.tick) {
		due = append(due, it)
	}

	for _, it := range due {
		predicted, err := st.store.MustGet("perception", it.Formula)
		if err != nil {
			return err
		}
		obsID, ok := run.current[predicted.Subject]
		if !ok {
			continue
		}
		rule, err := st.store.MustGet("perception", it.Source)
		if err != nil {
			return err
		}
		if !rule.Active {
			continue
		}
		observed, err := st.store.MustGet("perception", obsID)
		if err != nil {
			return err
		}
		if predicted.Predicates.Within(observed.Predicates, pc.MismatchTolerance) {
			continue
		}

		task, added := st.tasks.Enqueue(store.TaskContradiction, []types.FormulaID{rule.ID, predicted.ID, observed.ID}, run.tick)
		if !added {
			continue
		}
		run.report.Contradictions++
		st.stats.contradictions++
		st.window.contradictions++

		conf, err := st.store.UpdateConfidence(rule.ID, -pc.FailureStep)
		if err != nil {
			return err
		}
		logging.Perception("contradiction: task=%d rule=%d predicted=%s observed=%s confidence=%.2f",
			task.ID, rule.ID, predicted.Predicates, observed.Predicates, conf)
		if conf < exhausted {
			// Repeated decrements leave float residue; snap it to zero.
			if err := st.store.SetConfidence(rule.ID, 0); err != nil {
				return err
			}
			st.tasks.Enqueue(store.TaskInvalidRule, []types.FormulaID{rule.ID}, run.tick)
		}
	}
	return nil
}
