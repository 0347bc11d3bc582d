// Package mangle wraps the Google Mangle engine for the kernel's symbolic
// derivations. Every evaluation runs against a fresh in-memory fact store so
// results depend only on the facts supplied, never on earlier calls.
package mangle

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"cogkernel/internal/logging"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

// ErrFactLimit is returned by Evaluate when the fixpoint would derive more
// facts than Config.DerivedFactLimit allows.
var ErrFactLimit = errors.New("derived fact limit reached")

// Config holds Mangle engine configuration.
type Config struct {
	DerivedFactLimit int `yaml:"derived_fact_limit"` // gas limit for fixpoint evaluation
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{DerivedFactLimit: 100000}
}

// Engine holds a compiled program. It is immutable after construction.
type Engine struct {
	config         Config
	programInfo    *analysis.ProgramInfo
	predicateIndex map[string]ast.PredicateSym
}

// Fact represents a single EDB or derived fact.
type Fact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
}

// String returns the Datalog representation of the fact.
func (f Fact) String() string {
	args := make([]string, 0, len(f.Args))
	for _, arg := range f.Args {
		switch v := arg.(type) {
		case string:
			args = append(args, fmt.Sprintf("%q", v))
		case int64:
			args = append(args, fmt.Sprintf("%d", v))
		case float64:
			args = append(args, fmt.Sprintf("%f", v))
		default:
			args = append(args, fmt.Sprintf("%v", v))
		}
	}
	return fmt.Sprintf("%s(%s).", f.Predicate, strings.Join(args, ", "))
}

// NewEngine parses and analyzes schema.
func NewEngine(cfg Config, schema string) (*Engine, error) {
	unit, err := parse.Unit(strings.NewReader(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze schema: %w", err)
	}

	index := make(map[string]ast.PredicateSym, len(programInfo.Decls))
	for sym := range programInfo.Decls {
		index[sym.Symbol] = sym
	}
	return &Engine{config: cfg, programInfo: programInfo, predicateIndex: index}, nil
}

// Result is the fixpoint of one evaluation.
type Result struct {
	engine *Engine
	store  factstore.FactStore
	Facts  int // total facts in the store after evaluation
}

// Evaluate loads facts into a fresh store and runs the program to fixpoint.
func (e *Engine) Evaluate(facts []Fact) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryDream, "mangle.evaluate")
	defer timer.Stop()

	store := factstore.NewSimpleInMemoryStore()
	for _, f := range facts {
		atom, err := e.toAtom(f)
		if err != nil {
			return nil, err
		}
		store.Add(atom)
	}

	stats, err := mengine.EvalProgramWithStats(e.programInfo, store,
		mengine.WithCreatedFactLimit(e.config.DerivedFactLimit))
	if err != nil {
		// The engine reports the gas limit only through its message.
		if strings.Contains(err.Error(), "limit") {
			return nil, fmt.Errorf("%w: %v", ErrFactLimit, err)
		}
		return nil, fmt.Errorf("failed to evaluate program: %w", err)
	}
	logging.DreamDebug("mangle: fixpoint reached - edb=%d strata=%d", len(facts), len(stats.Strata))

	return &Result{engine: e, store: store, Facts: store.EstimateFactCount()}, nil
}

func (e *Engine) toAtom(f Fact) (ast.Atom, error) {
	sym, ok := e.predicateIndex[f.Predicate]
	if !ok {
		return ast.Atom{}, fmt.Errorf("predicate %s is not declared in schema", f.Predicate)
	}
	if len(f.Args) != sym.Arity {
		return ast.Atom{}, fmt.Errorf("predicate %s expects %d args, got %d", f.Predicate, sym.Arity, len(f.Args))
	}

	args := make([]ast.BaseTerm, len(f.Args))
	for i, raw := range f.Args {
		switch v := raw.(type) {
		case string:
			args[i] = ast.String(v)
		case int64:
			args[i] = ast.Number(v)
		case uint64:
			if v > math.MaxInt64 {
				return ast.Atom{}, fmt.Errorf("predicate %s arg %d: %d overflows int64", f.Predicate, i, v)
			}
			args[i] = ast.Number(int64(v))
		case int:
			args[i] = ast.Number(int64(v))
		case float64:
			args[i] = ast.Float64(v)
		default:
			return ast.Atom{}, fmt.Errorf("predicate %s arg %d: unsupported type %T", f.Predicate, i, raw)
		}
	}
	return ast.Atom{Predicate: sym, Args: args}, nil
}

// Query returns every fact of predicate, sorted by their Datalog rendering.
func (r *Result) Query(predicate string) ([]Fact, error) {
	sym, ok := r.engine.predicateIndex[predicate]
	if !ok {
		return nil, fmt.Errorf("predicate %s is not declared", predicate)
	}

	var out []Fact
	err := r.store.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
		args := make([]interface{}, len(atom.Args))
		for i, arg := range atom.Args {
			args[i] = termValue(arg)
		}
		out = append(out, Fact{Predicate: predicate, Args: args})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Store iteration order is unspecified.
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func termValue(term ast.BaseTerm) interface{} {
	c, ok := term.(ast.Constant)
	if !ok {
		return fmt.Sprintf("%v", term)
	}
	switch c.Type {
	case ast.StringType, ast.NameType:
		return c.Symbol
	case ast.NumberType:
		return c.NumValue
	case ast.Float64Type:
		return math.Float64frombits(uint64(c.NumValue))
	default:
		return c.String()
	}
}
