package mangle

import (
	"fmt"
	"sort"

	"cogkernel/internal/types"
)

// dreamSchema derives category membership (facts by predicate signature) and
// co-occurring fact pairs (different subjects observed in the same tick).
// Membership is linear in the facts; singleton categories are dropped by
// Derive.
const dreamSchema = `
Decl signature(Formula, Sig).
Decl observed(Formula, Subject, Tick).
Decl category_member(Sig, Formula).
Decl cooccurs(A, B).

category_member(Sig, A) :- signature(A, Sig).
cooccurs(A, B) :- observed(A, SA, T), observed(B, SB, T), SA != SB.
`

// Category is a group of at least two facts with the same signature.
type Category struct {
	Signature string
	Members   []types.FormulaID // ascending
}

// Pair is an ordered co-occurrence, A < B.
type Pair struct {
	A, B types.FormulaID
}

// Derivation is what one Deriver pass produces.
type Derivation struct {
	Categories  []Category // sorted by signature
	Cooccurring []Pair     // sorted by (A, B)
}

// Deriver runs the dream program.
type Deriver struct {
	engine *Engine
}

// NewDeriver compiles the dream program.
func NewDeriver(cfg Config) (*Deriver, error) {
	e, err := NewEngine(cfg, dreamSchema)
	if err != nil {
		return nil, err
	}
	return &Deriver{engine: e}, nil
}

// Derive computes categories over facts and co-occurrences over current.
// current must be facts observed in the same tick.
func (d *Deriver) Derive(facts, current []types.Formula, tick uint64) (Derivation, error) {
	edb := make([]Fact, 0, len(facts)+len(current))
	for _, f := range facts {
		if f.Kind != types.KindFact {
			continue
		}
		edb = append(edb, Fact{Predicate: "signature", Args: []interface{}{uint64(f.ID), f.Predicates.Signature()}})
	}
	for _, f := range current {
		edb = append(edb, Fact{Predicate: "observed", Args: []interface{}{uint64(f.ID), f.Subject, tick}})
	}

	res, err := d.engine.Evaluate(edb)
	if err != nil {
		return Derivation{}, err
	}

	members, err := res.Query("category_member")
	if err != nil {
		return Derivation{}, err
	}
	bySig := make(map[string][]types.FormulaID)
	for _, m := range members {
		sig, ok := m.Args[0].(string)
		id, ok2 := m.Args[1].(int64)
		if !ok || !ok2 {
			return Derivation{}, fmt.Errorf("category_member: unexpected args %v", m.Args)
		}
		bySig[sig] = append(bySig[sig], types.FormulaID(id))
	}

	var out Derivation
	for sig, ids := range bySig {
		if len(ids) < 2 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out.Categories = append(out.Categories, Category{Signature: sig, Members: ids})
	}
	sort.Slice(out.Categories, func(i, j int) bool { return out.Categories[i].Signature < out.Categories[j].Signature })

	pairs, err := res.Query("cooccurs")
	if err != nil {
		return Derivation{}, err
	}
	for _, p := range pairs {
		a, ok := p.Args[0].(int64)
		b, ok2 := p.Args[1].(int64)
		if !ok || !ok2 {
			return Derivation{}, fmt.Errorf("cooccurs: unexpected args %v", p.Args)
		}
		if a < b {
			out.Cooccurring = append(out.Cooccurring, Pair{A: types.FormulaID(a), B: types.FormulaID(b)})
		}
	}
	sort.Slice(out.Cooccurring, func(i, j int) bool {
		if out.Cooccurring[i].A != out.Cooccurring[j].A {
			return out.Cooccurring[i].A < out.Cooccurring[j].A
		}
		return out.Cooccurring[i].B < out.Cooccurring[j].B
	})
	return out, nil
}
