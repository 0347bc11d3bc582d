// Package types provides shared type definitions used across cogkernel packages.
// This package exists to break import cycles between core, store and the analytics modules.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// =============================================================================
// FORMULA TYPES
// =============================================================================

// FormulaID identifies a Formula in the knowledge store. Zero means "none".
type FormulaID uint64

// FormulaKind tags what a Formula represents.
type FormulaKind uint8

const (
	KindFact FormulaKind = iota + 1
	KindRule
	KindHypothesis
)

// String returns the lowercase name of the kind.
func (k FormulaKind) String() string {
	switch k {
	case KindFact:
		return "fact"
	case KindRule:
		return "rule"
	case KindHypothesis:
		return "hypothesis"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the declared kinds.
func (k FormulaKind) Valid() bool {
	switch k {
	case KindFact, KindRule, KindHypothesis:
		return true
	default:
		return false
	}
}

// Predicate is a single attribute/value pair inside a predicate bundle.
type Predicate struct {
	Attr  string  `json:"attr" yaml:"attr"`
	Value float64 `json:"value" yaml:"value"`
}

// Predicates is a small ordered attribute->value map, kept sorted by Attr.
type Predicates []Predicate

// PredicatesFrom builds a sorted bundle from a map.
func PredicatesFrom(m map[string]float64) Predicates {
	out := make(Predicates, 0, len(m))
	for attr, v := range m {
		out = append(out, Predicate{Attr: attr, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attr < out[j].Attr })
	return out
}

// With returns a copy of p with attr set to v.
func (p Predicates) With(attr string, v float64) Predicates {
	out := make(Predicates, 0, len(p)+1)
	inserted := false
	for _, pr := range p {
		switch {
		case pr.Attr == attr:
			out = append(out, Predicate{Attr: attr, Value: v})
			inserted = true
		case !inserted && pr.Attr > attr:
			out = append(out, Predicate{Attr: attr, Value: v}, pr)
			inserted = true
		default:
			out = append(out, pr)
		}
	}
	if !inserted {
		out = append(out, Predicate{Attr: attr, Value: v})
	}
	return out
}

// Get returns the value for attr.
func (p Predicates) Get(attr string) (float64, bool) {
	i := sort.Search(len(p), func(i int) bool { return p[i].Attr >= attr })
	if i < len(p) && p[i].Attr == attr {
		return p[i].Value, true
	}
	return 0, false
}

// Signature is the sorted attribute names joined by ",".
func (p Predicates) Signature() string {
	names := make([]string, len(p))
	for i, pr := range p {
		names[i] = pr.Attr
	}
	return strings.Join(names, ",")
}

// Equal reports exact equality of both bundles.
func (p Predicates) Equal(o Predicates) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Within reports whether every attribute of p is present in o with a value
// no further than tol away. A NaN on either side never matches.
func (p Predicates) Within(o Predicates, tol float64) bool {
	for _, pr := range p {
		v, ok := o.Get(pr.Attr)
		if !ok {
			return false
		}
		if !(math.Abs(v-pr.Value) <= tol) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (p Predicates) Clone() Predicates {
	if p == nil {
		return nil
	}
	out := make(Predicates, len(p))
	copy(out, p)
	return out
}

// String renders the bundle as {a=1,b=2}.
func (p Predicates) String() string {
	parts := make([]string, len(p))
	for i, pr := range p {
		parts[i] = fmt.Sprintf("%s=%g", pr.Attr, pr.Value)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Formula is the atomic knowledge unit. Formulas are owned by the store;
// every other component refers to them by ID only.
type Formula struct {
	ID          FormulaID   `json:"id"`
	Kind        FormulaKind `json:"kind"`
	Subject     string      `json:"subject"`
	Predicates  Predicates  `json:"predicates"`
	Condition   FormulaID   `json:"condition,omitempty"`   // Rules only
	Consequence FormulaID   `json:"consequence,omitempty"` // Rules only
	Confidence  float64     `json:"confidence"`
	CreatedAt   uint64      `json:"created_at"`
	Active      bool        `json:"active"`
	Abstract    bool        `json:"abstract,omitempty"` // category-level rule
}

// IsRule is shorthand for Kind == KindRule.
func (f Formula) IsRule() bool { return f.Kind == KindRule }

// Clone returns a copy that shares no slices with f.
func (f Formula) Clone() Formula {
	f.Predicates = f.Predicates.Clone()
	return f
}

// Validate checks the shape invariants that do not need the store.
func (f Formula) Validate() error {
	if !f.Kind.Valid() {
		return fmt.Errorf("formula %d: invalid kind %d", f.ID, f.Kind)
	}
	if f.Confidence < 0 || f.Confidence > 1 || f.Confidence != f.Confidence {
		return fmt.Errorf("formula %d: confidence %v outside [0,1]", f.ID, f.Confidence)
	}
	switch f.Kind {
	case KindRule:
		if f.Condition == 0 || f.Consequence == 0 {
			return fmt.Errorf("rule %d: missing condition or consequence", f.ID)
		}
	case KindFact, KindHypothesis:
		if f.Condition != 0 || f.Consequence != 0 {
			return fmt.Errorf("%s %d: unexpected rule references", f.Kind, f.ID)
		}
	}
	return nil
}

// String returns a compact human-readable representation.
func (f Formula) String() string {
	switch f.Kind {
	case KindRule:
		return fmt.Sprintf("rule#%d(%d -> %d, c=%.3f)", f.ID, f.Condition, f.Consequence, f.Confidence)
	case KindFact, KindHypothesis:
		return fmt.Sprintf("%s#%d(%s%s, c=%.3f)", f.Kind, f.ID, f.Subject, f.Predicates, f.Confidence)
	default:
		return fmt.Sprintf("formula#%d(?)", f.ID)
	}
}

// =============================================================================
// ID ALLOCATION
// =============================================================================

// IDAllocator hands out monotonically increasing ids. It is owned by a single
// kernel instance and threaded through construction.
type IDAllocator struct {
	next uint64
}

// NewIDAllocator returns an allocator whose first id is 1.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{next: 1}
}

// Next returns a fresh id.
func (a *IDAllocator) Next() uint64 {
	id := a.next
	a.next++
	return id
}

// Peek returns the id the next call to Next will return.
func (a *IDAllocator) Peek() uint64 { return a.next }

// Clone copies the allocator state.
func (a *IDAllocator) Clone() *IDAllocator {
	return &IDAllocator{next: a.next}
}
