package core

import (
	"cogkernel/internal/logging"
	"cogkernel/internal/store"
	"cogkernel/internal/types"
)

// chain is a sequence of rules where each condition is the previous
// consequence.
type chain struct {
	rules      []types.Formula
	confidence float64
}

// predict fires every applicable rule against this tick's observations and
// materializes strong forward chains as shortcut rules.
func (k *Kernel) predict(run *tickRun) error {
	st := run.st
	tol := k.cfg.Perception.MismatchTolerance

	observed := make(map[string]types.Predicates, len(run.current))
	for subj, id := range run.current {
		f, err := st.store.MustGet("prediction", id)
		if err != nil {
			return err
		}
		observed[subj] = f.Predicates
	}

	// Rules usable in inference, indexed by condition.
	byCondition := make(map[types.FormulaID][]types.Formula)
	var usable []types.Formula
	for r := range st.store.Scan(types.KindRule) {
		if !r.Active || r.Abstract {
			continue
		}
		usable = append(usable, r)
		byCondition[r.Condition] = append(byCondition[r.Condition], r)
	}

	var fired []types.Formula
	for _, r := range usable {
		cond, err := st.store.MustGet("prediction", r.Condition)
		if err != nil {
			return err
		}
		preds, ok := observed[cond.Subject]
		if !ok || cond.Kind != types.KindFact || !cond.Predicates.Within(preds, tol) {
			continue
		}
		if _, err := st.store.MustGet("prediction", r.Consequence); err != nil {
			return err
		}
		if _, evicted := st.canvas.Push(store.Item{
			Formula:    r.Consequence,
			Kind:       store.ItemPrediction,
			Source:     r.ID,
			ValidFrom:  run.tick + 1,
			ValidUntil: run.tick + 1,
		}); evicted {
			run.report.Evicted++
		}
		run.report.PredictionsMade++
		fired = append(fired, r)
	}

	var chains []chain
	for _, r := range fired {
		k.extend(chain{rules: []types.Formula{r}, confidence: r.Confidence}, byCondition, &chains)
	}
	for _, c := range strongest(chains) {
		first, last := c.rules[0], c.rules[len(c.rules)-1]
		sc := types.Formula{
			Kind:        types.KindRule,
			Condition:   first.Condition,
			Consequence: last.Consequence,
			Confidence:  c.confidence,
			CreatedAt:   run.tick,
			Active:      true,
		}
		if _, exists := st.store.Find(sc); exists {
			continue
		}
		id, err := st.store.Intern(sc)
		if err != nil {
			return err
		}
		st.stats.shortcuts++
		logging.PredictionDebug("shortcut rule %d: %d -> %d over %d steps (c=%.3f)",
			id, sc.Condition, sc.Consequence, len(c.rules), c.confidence)
	}
	return nil
}

// extend walks forward from c, collecting chains worth a shortcut. A rule
// appears at most once per chain.
func (k *Kernel) extend(c chain, byCondition map[types.FormulaID][]types.Formula, out *[]chain) {
	pc := k.cfg.Prediction
	if len(c.rules) >= pc.MaxChainDepth {
		return
	}
	last := c.rules[len(c.rules)-1]
	for _, next := range byCondition[last.Consequence] {
		if inChain(c.rules, next.ID) {
			continue
		}
		ext := chain{
			rules:      append(append([]types.Formula(nil), c.rules...), next),
			confidence: c.confidence * next.Confidence,
		}
		// Confidence only shrinks along a chain.
		if ext.confidence <= pc.ShortcutThreshold {
			continue
		}
		*out = append(*out, ext)
		k.extend(ext, byCondition, out)
	}
}

// strongest keeps the most confident chain per endpoint pair, in order of
// first discovery.
func strongest(chains []chain) []chain {
	type ends struct{ from, to types.FormulaID }
	index := make(map[ends]int)
	var out []chain
	for _, c := range chains {
		e := ends{c.rules[0].Condition, c.rules[len(c.rules)-1].Consequence}
		i, ok := index[e]
		switch {
		case !ok:
			index[e] = len(out)
			out = append(out, c)
		case c.confidence > out[i].confidence:
			out[i] = c
		}
	}
	return out
}

func inChain(rules []types.Formula, id types.FormulaID) bool {
	for _, r := range rules {
		if r.ID == id {
			return true
		}
	}
	return false
}
