package types

import (
	"errors"
	"math"
	"testing"
)

func TestPredicatesSortedAndSignature(t *testing.T) {
	p := PredicatesFrom(map[string]float64{"y": 2, "x": 1})
	if got := p.Signature(); got != "x,y" {
		t.Fatalf("signature: want x,y got %s", got)
	}

	p = p.With("a", 0).With("x", 5)
	if got := p.Signature(); got != "a,x,y" {
		t.Fatalf("signature after With: want a,x,y got %s", got)
	}
	if v, ok := p.Get("x"); !ok || v != 5 {
		t.Fatalf("Get(x): want 5 got %v (%v)", v, ok)
	}
	if _, ok := p.Get("missing"); ok {
		t.Fatal("Get(missing) should fail")
	}
}

func TestPredicatesWithin(t *testing.T) {
	base := PredicatesFrom(map[string]float64{"x": 1})
	obs := PredicatesFrom(map[string]float64{"x": 1.04, "y": 9})

	if !base.Within(obs, 0.05) {
		t.Error("expected 1 vs 1.04 to be within 0.05")
	}
	if base.Within(obs, 0.01) {
		t.Error("expected 1 vs 1.04 to be outside 0.01")
	}
	if obs.Within(base, 0.05) {
		t.Error("missing attribute must not match")
	}

	nan := PredicatesFrom(map[string]float64{"x": math.NaN()})
	if base.Within(nan, 0.05) || nan.Within(base, 0.05) {
		t.Error("NaN must never match")
	}
}

func TestObservationValidate(t *testing.T) {
	tests := []struct {
		name    string
		attrs   map[string]float64
		wantErr bool
	}{
		{"finite", map[string]float64{"x": 1, "y": -2.5}, false},
		{"empty", nil, false},
		{"nan", map[string]float64{"x": math.NaN()}, true},
		{"positive inf", map[string]float64{"x": 1, "y": math.Inf(1)}, true},
		{"negative inf", map[string]float64{"x": math.Inf(-1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Observation{Entity: "a", Attrs: tt.attrs}.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err=%v wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestFormulaValidate(t *testing.T) {
	tests := []struct {
		name    string
		f       Formula
		wantErr bool
	}{
		{"fact ok", Formula{ID: 1, Kind: KindFact, Confidence: 0.9}, false},
		{"confidence high", Formula{ID: 1, Kind: KindFact, Confidence: 1.1}, true},
		{"confidence negative", Formula{ID: 1, Kind: KindFact, Confidence: -0.1}, true},
		{"rule ok", Formula{ID: 3, Kind: KindRule, Condition: 1, Consequence: 2, Confidence: 0.5}, false},
		{"rule dangling", Formula{ID: 3, Kind: KindRule, Condition: 1}, true},
		{"fact with refs", Formula{ID: 1, Kind: KindFact, Condition: 2}, true},
		{"bad kind", Formula{ID: 1, Kind: 99}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err=%v wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestSnapshotNormalized(t *testing.T) {
	s := Snapshot{Observations: []Observation{
		{Entity: "b", Attrs: map[string]float64{"y": 1}},
		{Entity: "a", Attrs: map[string]float64{"x": 0}},
		{Entity: "", Attrs: map[string]float64{"z": 0}},
		{Entity: "b", Attrs: map[string]float64{"y": 2}},
	}}

	got := s.Normalized()
	if len(got) != 2 {
		t.Fatalf("want 2 observations, got %d", len(got))
	}
	if got[0].Entity != "a" || got[1].Entity != "b" {
		t.Fatalf("unexpected order: %v", got)
	}
	if got[1].Attrs["y"] != 2 {
		t.Fatalf("last report should win, got %v", got[1].Attrs)
	}
}

func TestFaultUnwrap(t *testing.T) {
	err := error(CapacityFault("store", 4))
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatal("capacity fault should unwrap to ErrCapacityExceeded")
	}
	if errors.Is(err, ErrConfig) {
		t.Fatal("capacity fault must not match ErrConfig")
	}

	f := AsFault(err, 7)
	if f.Tick != 7 {
		t.Fatalf("AsFault should stamp tick, got %d", f.Tick)
	}

	plain := AsFault(errors.New("boom"), 3)
	if !errors.Is(plain, ErrInconsistent) {
		t.Fatal("untagged errors become ErrInconsistent faults")
	}
}

func TestIDAllocatorMonotonic(t *testing.T) {
	a := NewIDAllocator()
	first := a.Next()
	second := a.Next()
	if first != 1 || second != 2 {
		t.Fatalf("want 1,2 got %d,%d", first, second)
	}
	c := a.Clone()
	if c.Next() != a.Next() {
		t.Fatal("clone should continue from the same point")
	}
}

func TestActionVocabulary(t *testing.T) {
	all := AllActions()
	if len(all) != NumActions {
		t.Fatalf("want %d actions, got %d", NumActions, len(all))
	}
	for _, a := range all {
		if a.String() == "unknown" {
			t.Errorf("action %d has no name", a)
		}
	}
	if Action(NumActions).Valid() {
		t.Error("out of range action must be invalid")
	}
}
