package core

import (
	"errors"
	"sort"

	"cogkernel/internal/logging"
	"cogkernel/internal/mangle"
	"cogkernel/internal/store"
	"cogkernel/internal/types"
)

// dream proposes new rules: concrete ones from facts observed together this
// tick, and abstract ones between whole categories of facts.
func (k *Kernel) dream(run *tickRun) error {
	st := run.st

	var facts []types.Formula
	for f := range st.store.Scan(types.KindFact) {
		facts = append(facts, f)
	}
	subjects := make([]string, 0, len(run.current))
	for s := range run.current {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)
	current := make([]types.Formula, 0, len(subjects))
	for _, s := range subjects {
		f, err := st.store.MustGet("dreamer", run.current[s])
		if err != nil {
			return err
		}
		current = append(current, f)
	}

	d, err := k.deriver.Derive(facts, current, run.tick)
	if errors.Is(err, mangle.ErrFactLimit) {
		logging.DreamWarn("tick %d: derivation over %d facts hit the derived fact limit", run.tick, len(facts))
		return types.CapacityFault("dreamer", k.cfg.Dreamer.DerivedFactLimit)
	}
	if err != nil {
		return types.InconsistentFault("dreamer", 0, err)
	}
	if err := k.proposeConcrete(run, d.Cooccurring); err != nil {
		return err
	}
	return k.proposeAbstract(run, d.Categories)
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func (k *Kernel) proposalLimit(a types.Action) int {
	switch a {
	case types.ActionStabilize:
		return 0
	case types.ActionExplore:
		return k.cfg.Dreamer.MaxProposalsPerTick + 1
	default:
		return k.cfg.Dreamer.MaxProposalsPerTick
	}
}

func (k *Kernel) proposeConcrete(run *tickRun, pairs []mangle.Pair) error {
	st := run.st
	limit := k.proposalLimit(run.action)
	made := 0
	for _, p := range pairs {
		if made >= limit {
			break
		}
		a, err := st.store.MustGet("dreamer", p.A)
		if err != nil {
			return err
		}
		b, err := st.store.MustGet("dreamer", p.B)
		if err != nil {
			return err
		}
		key := pairKey(a.Subject, b.Subject)
		if st.proposed[key] {
			continue
		}
		st.proposed[key] = true

		rule := types.Formula{
			Kind:        types.KindRule,
			Condition:   a.ID,
			Consequence: b.ID,
			Confidence:  k.cfg.Dreamer.CooccurrenceConfidence,
			CreatedAt:   run.tick,
			Active:      true,
		}
		if _, exists := st.store.Find(rule); exists {
			continue
		}
		id, err := k.internDream(run, rule)
		if err != nil {
			return err
		}
		made++
		logging.DreamDebug("co-occurrence rule %d: %s -> %s", id, a, b)
	}
	return nil
}

// prototype is the hypothesis standing for a whole category: the mean of
// its members.
func (k *Kernel) prototype(run *tickRun, c mangle.Category) (types.FormulaID, error) {
	st := run.st
	sums := make(map[string]float64)
	conf := 0.0
	for _, id := range c.Members {
		f, err := st.store.MustGet("dreamer", id)
		if err != nil {
			return 0, err
		}
		for _, p := range f.Predicates {
			sums[p.Attr] += p.Value
		}
		conf += f.Confidence
	}
	n := float64(len(c.Members))
	for attr := range sums {
		sums[attr] /= n
	}
	return st.store.Intern(types.Formula{
		Kind:       types.KindHypothesis,
		Subject:    "category:" + c.Signature,
		Predicates: types.PredicatesFrom(sums),
		Confidence: conf / n,
		CreatedAt:  run.tick,
		Active:     true,
	})
}

func (k *Kernel) proposeAbstract(run *tickRun, cats []mangle.Category) error {
	st := run.st
	if len(cats) < 2 {
		return nil
	}
	for i := 0; i < len(cats); i++ {
		for j := i + 1; j < len(cats); j++ {
			key := pairKey(cats[i].Signature, cats[j].Signature)
			if st.linked[key] {
				continue
			}
			pa, err := k.prototype(run, cats[i])
			if err != nil {
				return err
			}
			pb, err := k.prototype(run, cats[j])
			if err != nil {
				return err
			}
			id, err := k.internDream(run, types.Formula{
				Kind:        types.KindRule,
				Condition:   pa,
				Consequence: pb,
				Confidence:  k.cfg.Dreamer.AbstractConfidence,
				CreatedAt:   run.tick,
				Active:      true,
				Abstract:    true,
			})
			if err != nil {
				return err
			}
			st.linked[key] = true
			st.stats.abstract++
			logging.Dream("abstract rule %d: category %q -> %q", id, cats[i].Signature, cats[j].Signature)
		}
	}
	return nil
}

// internDream stores a proposed rule and puts it in working memory.
func (k *Kernel) internDream(run *tickRun, rule types.Formula) (types.FormulaID, error) {
	st := run.st
	id, err := st.store.Intern(rule)
	if err != nil {
		return 0, err
	}
	if _, evicted := st.canvas.Push(store.Item{Formula: id, Kind: store.ItemDream, ValidFrom: run.tick, ValidUntil: run.tick}); evicted {
		run.report.Evicted++
	}
	run.report.RulesProposed++
	st.stats.proposed++
	return id, nil
}
