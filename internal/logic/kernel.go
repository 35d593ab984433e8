// Package logic wraps the google/mangle datalog engine as a rule-driven
// contradiction detector over story events. Event vocabulary is asserted as
// facts and the rules derive conflicting-event candidates, which the
// self-reflection minion combines with the lexical analyzer's findings.
package logic

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

// Fact represents a single logical fact (atom) in the EDB.
type Fact struct {
	Predicate string
	Args      []interface{}
}

// String returns the Datalog string representation of the fact.
func (f Fact) String() string {
	var args []string
	for _, arg := range f.Args {
		switch v := arg.(type) {
		case string:
			args = append(args, fmt.Sprintf("%q", v))
		case int:
			args = append(args, fmt.Sprintf("%d", v))
		case int64:
			args = append(args, fmt.Sprintf("%d", v))
		case float64:
			args = append(args, fmt.Sprintf("%f", v))
		case bool:
			if v {
				args = append(args, "/true")
			} else {
				args = append(args, "/false")
			}
		default:
			args = append(args, fmt.Sprintf("%q", fmt.Sprintf("%v", v)))
		}
	}
	return fmt.Sprintf("%s(%s).", f.Predicate, strings.Join(args, ", "))
}

// Kernel evaluates contradiction rules over asserted event facts.
// Facts are the EDB; the rule text (embedded by default, overridable at
// runtime through SetRules) is the IDB.
type Kernel struct {
	mu          sync.RWMutex
	rules       string
	facts       []Fact
	store       factstore.FactStore
	programInfo *analysis.ProgramInfo
	initialized bool
}

// NewKernel creates a kernel with the embedded contradiction rules.
func NewKernel() *Kernel {
	return &Kernel{
		rules: DefaultRules,
		store: factstore.NewSimpleInMemoryStore(),
	}
}

// NewKernelWithRules creates a kernel with caller-supplied rule text.
func NewKernelWithRules(rules string) *Kernel {
	return &Kernel{
		rules: rules,
		store: factstore.NewSimpleInMemoryStore(),
	}
}

// SetRules replaces the rule text and re-evaluates against current facts.
// Invalid rule text leaves the previous program in place.
func (k *Kernel) SetRules(rules string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	previous := k.rules
	k.rules = rules
	if err := k.rebuild(); err != nil {
		k.rules = previous
		// Best effort restore; a previously valid program must re-evaluate.
		if prevErr := k.rebuild(); prevErr != nil {
			return fmt.Errorf("new rules invalid (%v) and restore failed: %w", err, prevErr)
		}
		return fmt.Errorf("rules rejected: %w", err)
	}
	return nil
}

// Reset clears all asserted facts.
func (k *Kernel) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.facts = k.facts[:0]
	k.store = factstore.NewSimpleInMemoryStore()
	k.initialized = false
}

// LoadFacts adds facts to the EDB and evaluates the program to fixpoint.
func (k *Kernel) LoadFacts(facts []Fact) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.facts = append(k.facts, facts...)
	return k.rebuild()
}

// rebuild reconstructs the program and evaluates to fixpoint.
// Caller must hold k.mu.
func (k *Kernel) rebuild() error {
	// Declarations and rules first, then the EDB facts.
	var sb strings.Builder
	sb.WriteString(k.rules)
	sb.WriteString("\n")
	for _, f := range k.facts {
		sb.WriteString(f.String())
		sb.WriteString("\n")
	}

	parsed, err := parse.Unit(strings.NewReader(sb.String()))
	if err != nil {
		return fmt.Errorf("failed to parse program: %w", err)
	}

	programInfo, err := analysis.AnalyzeOneUnit(parsed, nil)
	if err != nil {
		return fmt.Errorf("failed to analyze program: %w", err)
	}
	k.programInfo = programInfo

	k.store = factstore.NewSimpleInMemoryStore()
	if _, err := engine.EvalProgramWithStats(programInfo, k.store); err != nil {
		return fmt.Errorf("failed to evaluate program: %w", err)
	}

	k.initialized = true
	return nil
}

// Query retrieves all derived facts matching a predicate.
func (k *Kernel) Query(predicate string) ([]Fact, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if !k.initialized {
		return nil, fmt.Errorf("kernel not initialized")
	}

	results := make([]Fact, 0)
	if k.programInfo == nil {
		return results, nil
	}

	for pred := range k.programInfo.Decls {
		if pred.Symbol != predicate {
			continue
		}
		k.store.GetFacts(ast.NewQuery(pred), func(a ast.Atom) error {
			results = append(results, atomToFact(a))
			return nil
		})
		break
	}
	return results, nil
}

// atomToFact converts a Mangle AST atom back to the bridge Fact type.
func atomToFact(a ast.Atom) Fact {
	args := make([]interface{}, len(a.Args))
	for i, term := range a.Args {
		args[i] = baseTermToValue(term)
	}
	return Fact{Predicate: a.Predicate.Symbol, Args: args}
}

func baseTermToValue(term ast.BaseTerm) interface{} {
	c, ok := term.(ast.Constant)
	if !ok {
		return term.String()
	}
	switch c.Type {
	case ast.StringType:
		if s, err := c.StringValue(); err == nil {
			return s
		}
	case ast.NumberType:
		if n, err := c.NumberValue(); err == nil {
			return n
		}
	case ast.Float64Type:
		if f, err := c.Float64Value(); err == nil {
			return f
		}
	}
	return c.String()
}
