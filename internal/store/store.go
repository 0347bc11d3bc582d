// Package store holds the kernel's bounded knowledge: the formula table, the
// working-memory canvas and the repair task queue. Other packages refer to
// formulas by id only and resolve them here.
package store

import (
	"fmt"
	"iter"
	"sort"

	"cogkernel/internal/config"
	"cogkernel/internal/logging"
	"cogkernel/internal/types"
)

type ruleKey struct {
	condition, consequence types.FormulaID
	abstract               bool
}

// Store is the bounded Formula table.
type Store struct {
	arena    *Arena[types.Formula]
	byID     map[types.FormulaID]Index
	order    []types.FormulaID // ascending live ids
	byKey    map[string]types.FormulaID
	byRule   map[ruleKey]types.FormulaID
	ids      *types.IDAllocator
	tieBreak config.TieBreak
}

// New returns an empty store with room for capacity formulas. Ids come from
// ids, which the kernel owns.
func New(capacity int, ids *types.IDAllocator, tieBreak config.TieBreak) *Store {
	return &Store{
		arena:    NewArena[types.Formula](capacity),
		byID:     make(map[types.FormulaID]Index),
		byKey:    make(map[string]types.FormulaID),
		byRule:   make(map[ruleKey]types.FormulaID),
		ids:      ids,
		tieBreak: tieBreak,
	}
}

func contentKey(f types.Formula) string {
	return fmt.Sprintf("%d|%s|%s", f.Kind, f.Subject, f.Predicates)
}

// Find returns the id of an existing formula equal in content to f.
func (s *Store) Find(f types.Formula) (types.FormulaID, bool) {
	if f.Kind == types.KindRule {
		id, ok := s.byRule[ruleKey{f.Condition, f.Consequence, f.Abstract}]
		return id, ok
	}
	id, ok := s.byKey[contentKey(f)]
	return id, ok
}

// Intern stores f and returns its id. A formula equal in content to a stored
// one returns the existing id unchanged (inactive rules stay inactive).
func (s *Store) Intern(f types.Formula) (types.FormulaID, error) {
	if id, ok := s.Find(f); ok {
		return id, nil
	}

	f.ID = 0
	if err := f.Validate(); err != nil {
		return 0, types.InconsistentFault("store", 0, err)
	}
	if f.IsRule() {
		if _, ok := s.byID[f.Condition]; !ok {
			return 0, types.ReferenceFault("store", uint64(f.Condition))
		}
		if _, ok := s.byID[f.Consequence]; !ok {
			return 0, types.ReferenceFault("store", uint64(f.Consequence))
		}
	}
	if s.arena.Len() >= s.arena.Cap() {
		logging.StoreWarn("intern: store full (%d formulas)", s.arena.Cap())
		return 0, types.CapacityFault("store", s.arena.Cap())
	}

	f.ID = types.FormulaID(s.ids.Next())
	f.Predicates = f.Predicates.Clone()
	idx, err := s.arena.Alloc(f)
	if err != nil {
		return 0, err
	}
	s.byID[f.ID] = idx
	s.order = append(s.order, f.ID)
	if f.IsRule() {
		s.byRule[ruleKey{f.Condition, f.Consequence, f.Abstract}] = f.ID
	} else {
		s.byKey[contentKey(f)] = f.ID
	}
	logging.StoreDebug("intern: %s", f)
	return f.ID, nil
}

// Get returns a copy of the formula with id.
func (s *Store) Get(id types.FormulaID) (types.Formula, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return types.Formula{}, false
	}
	f, ok := s.arena.Get(idx)
	return f.Clone(), ok
}

// MustGet is Get with a dangling id reported as an InvalidReference fault.
func (s *Store) MustGet(module string, id types.FormulaID) (types.Formula, error) {
	f, ok := s.Get(id)
	if !ok {
		return types.Formula{}, types.ReferenceFault(module, uint64(id))
	}
	return f, nil
}

func (s *Store) mutate(id types.FormulaID, fn func(*types.Formula)) (types.Formula, error) {
	idx, ok := s.byID[id]
	if !ok {
		return types.Formula{}, types.ReferenceFault("store", uint64(id))
	}
	f, _ := s.arena.Get(idx)
	fn(&f)
	s.arena.Set(idx, f)
	return f, nil
}

// UpdateConfidence adds delta to the confidence of id, clamped to [0,1], and
// returns the new value.
func (s *Store) UpdateConfidence(id types.FormulaID, delta float64) (float64, error) {
	f, err := s.mutate(id, func(f *types.Formula) { f.Confidence = clamp01(f.Confidence + delta) })
	return f.Confidence, err
}

// SetConfidence sets the confidence of id, clamped to [0,1].
func (s *Store) SetConfidence(id types.FormulaID, c float64) error {
	_, err := s.mutate(id, func(f *types.Formula) { f.Confidence = clamp01(c) })
	return err
}

// Deactivate zeroes the confidence of id and removes it from inference.
func (s *Store) Deactivate(id types.FormulaID) error {
	_, err := s.mutate(id, func(f *types.Formula) {
		f.Confidence = 0
		f.Active = false
	})
	return err
}

func clamp01(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Best returns the highest-confidence formula satisfying match. Ties go to
// the oldest or newest id according to the configured TieBreak.
func (s *Store) Best(match func(types.Formula) bool) (types.Formula, bool) {
	var best types.Formula
	found := false
	for f := range s.All() {
		if !match(f) {
			continue
		}
		switch {
		case !found, f.Confidence > best.Confidence:
			best, found = f, true
		case f.Confidence == best.Confidence && s.tieBreak == config.TieBreakNewest:
			// ascending scan: a later equal match is newer
			best = f
		}
	}
	return best, found
}

// All yields every formula in ascending id order.
func (s *Store) All() iter.Seq[types.Formula] {
	return func(yield func(types.Formula) bool) {
		for _, id := range s.order {
			f, _ := s.arena.Get(s.byID[id])
			if !yield(f.Clone()) {
				return
			}
		}
	}
}

// Scan yields formulas of kind in ascending id order. The sequence is finite
// and may be ranged over repeatedly.
func (s *Store) Scan(kind types.FormulaKind) iter.Seq[types.Formula] {
	return func(yield func(types.Formula) bool) {
		for f := range s.All() {
			if f.Kind == kind && !yield(f) {
				return
			}
		}
	}
}

// Formulas returns a copy of the table in id order.
func (s *Store) Formulas() []types.Formula {
	out := make([]types.Formula, 0, len(s.order))
	for f := range s.All() {
		out = append(out, f)
	}
	return out
}

// Len is the number of stored formulas.
func (s *Store) Len() int { return s.arena.Len() }

// Cap is the configured capacity.
func (s *Store) Cap() int { return s.arena.Cap() }

// Occupancy is Len/Cap.
func (s *Store) Occupancy() float64 { return float64(s.Len()) / float64(s.Cap()) }

// Prune evicts up to max formulas that are neither kept by the caller nor
// referenced by any stored rule. Inactive rules go first, then lowest
// confidence, then oldest. Returns the number evicted.
func (s *Store) Prune(keep func(types.FormulaID) bool, max int) int {
	referenced := make(map[types.FormulaID]bool)
	for f := range s.Scan(types.KindRule) {
		referenced[f.Condition] = true
		referenced[f.Consequence] = true
	}

	var candidates []types.Formula
	for f := range s.All() {
		switch {
		case f.IsRule() && !f.Active && !keep(f.ID):
			candidates = append(candidates, f)
		case !f.IsRule() && !referenced[f.ID] && !keep(f.ID):
			candidates = append(candidates, f)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ri := candidates[i].IsRule() && !candidates[i].Active
		rj := candidates[j].IsRule() && !candidates[j].Active
		if ri != rj {
			return ri
		}
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence < candidates[j].Confidence
		}
		return candidates[i].ID < candidates[j].ID
	})

	evicted := 0
	for _, f := range candidates {
		if evicted >= max {
			break
		}
		s.remove(f)
		evicted++
	}
	if evicted > 0 {
		logging.StoreDebug("prune: evicted %d of %d candidates", evicted, len(candidates))
	}
	return evicted
}

// Retire evicts up to max active rules created before tick before that the
// caller does not keep, lowest confidence first, then oldest. The facts they
// referenced become prunable. Returns the number evicted.
func (s *Store) Retire(keep func(types.FormulaID) bool, max int, before uint64) int {
	var stale []types.Formula
	for f := range s.Scan(types.KindRule) {
		if f.Active && f.CreatedAt < before && !keep(f.ID) {
			stale = append(stale, f)
		}
	}
	sort.SliceStable(stale, func(i, j int) bool {
		if stale[i].Confidence != stale[j].Confidence {
			return stale[i].Confidence < stale[j].Confidence
		}
		return stale[i].ID < stale[j].ID
	})
	if len(stale) > max {
		stale = stale[:max]
	}
	for _, f := range stale {
		s.remove(f)
	}
	if len(stale) > 0 {
		logging.StoreDebug("retire: evicted %d active rules created before tick %d", len(stale), before)
	}
	return len(stale)
}

func (s *Store) remove(f types.Formula) {
	idx := s.byID[f.ID]
	s.arena.Free(idx)
	delete(s.byID, f.ID)
	if f.IsRule() {
		delete(s.byRule, ruleKey{f.Condition, f.Consequence, f.Abstract})
	} else {
		delete(s.byKey, contentKey(f))
	}
	i := sort.Search(len(s.order), func(i int) bool { return s.order[i] >= f.ID })
	s.order = append(s.order[:i], s.order[i+1:]...)
}

// Validate checks every formula's shape and every rule reference.
func (s *Store) Validate() error {
	for f := range s.All() {
		if err := f.Validate(); err != nil {
			return types.InconsistentFault("store", uint64(f.ID), err)
		}
		if f.IsRule() {
			for _, ref := range []types.FormulaID{f.Condition, f.Consequence} {
				if _, ok := s.byID[ref]; !ok {
					return types.ReferenceFault("store", uint64(ref))
				}
			}
		}
	}
	if s.Len() > s.Cap() {
		return types.InconsistentFault("store", 0, fmt.Errorf("%d formulas exceed capacity %d", s.Len(), s.Cap()))
	}
	return nil
}

// Clone deep-copies the store. ids is the allocator the copy should use,
// normally a clone of the kernel's.
func (s *Store) Clone(ids *types.IDAllocator) *Store {
	c := &Store{
		arena:    s.arena.Clone(types.Formula.Clone),
		byID:     make(map[types.FormulaID]Index, len(s.byID)),
		order:    append([]types.FormulaID(nil), s.order...),
		byKey:    make(map[string]types.FormulaID, len(s.byKey)),
		byRule:   make(map[ruleKey]types.FormulaID, len(s.byRule)),
		ids:      ids,
		tieBreak: s.tieBreak,
	}
	for k, v := range s.byID {
		c.byID[k] = v
	}
	for k, v := range s.byKey {
		c.byKey[k] = v
	}
	for k, v := range s.byRule {
		c.byRule[k] = v
	}
	return c
}
