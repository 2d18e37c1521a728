// Package functions holds the builtin formula functions. Each function is a
// declarative Definition: an arity, a per position argument spec and three
// hooks for typing, SQL generation and in-memory evaluation.
package functions

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gridbase/backend/pkg/formula/ast"
	"github.com/gridbase/backend/pkg/formula/sqlexpr"
	"github.com/gridbase/backend/pkg/formula/types"
)

// ErrFunctionDoesNotExist is returned by Registry.Get for unknown names.
var ErrFunctionDoesNotExist = errors.New("function does not exist")

// Category groups functions in the function listing.
type Category string

const (
	CategoryText      Category = "text"
	CategoryNumber    Category = "number"
	CategoryBoolean   Category = "boolean"
	CategoryDate      Category = "date"
	CategoryAggregate Category = "aggregate"
	CategoryArray     Category = "array"
	CategoryLink      Category = "link"
	CategorySelect    Category = "select"
	CategoryReference Category = "reference"
)

// Arity is the accepted argument count. Max < 0 means no upper bound.
type Arity struct {
	Min int
	Max int
}

func Exactly(n int) Arity      { return Arity{Min: n, Max: n} }
func AtLeast(n int) Arity      { return Arity{Min: n, Max: -1} }
func Between(lo, hi int) Arity { return Arity{Min: lo, Max: hi} }

// Check returns a user facing message when n arguments do not fit.
func (a Arity) Check(name string, n int) string {
	switch {
	case a.Max == a.Min && n != a.Min:
		return fmt.Sprintf("%d %s given to the function %s, it must instead be given exactly %d %s",
			n, plural(n, "argument was", "arguments were"), name, a.Min, plural(a.Min, "argument", "arguments"))
	case n < a.Min && a.Max < 0:
		return fmt.Sprintf("%d %s given to the function %s, it must instead be given more than %d %s",
			n, plural(n, "argument was", "arguments were"), name, a.Min-1, plural(a.Min-1, "argument", "arguments"))
	case n < a.Min || (a.Max >= 0 && n > a.Max):
		return fmt.Sprintf("%d %s given to the function %s, it must instead be given between %d and %d arguments",
			n, plural(n, "argument was", "arguments were"), name, a.Min, a.Max)
	}
	return ""
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// ArgSpec constrains one argument position.
type ArgSpec struct {
	// Kinds lists the accepted kinds, empty means any valid kind.
	Kinds []types.Kind
	// Many requires a value per linked row, i.e. a lookup or link traversal.
	Many bool
	// Literal requires a literal value known at type time.
	Literal bool
	// NoCoerce disables the implicit totext cast for text positions.
	NoCoerce bool
}

// Accepts reports whether kind is allowed in this position.
func (s ArgSpec) Accepts(k types.Kind) bool {
	if len(s.Kinds) == 0 {
		return k != types.KindInvalid
	}
	for _, allowed := range s.Kinds {
		if allowed == k {
			return true
		}
	}
	return false
}

// CoercesToText reports whether a non text argument is cast with totext.
func (s ArgSpec) CoercesToText() bool {
	if s.NoCoerce || s.Literal || len(s.Kinds) == 0 {
		return false
	}
	for _, k := range s.Kinds {
		if k == types.KindText {
			return true
		}
	}
	return false
}

// TypeFunc receives a call whose arguments are typed, valid and match the arg
// specs. It returns the call's type, or a replacement node that the checker
// types in place of the call.
type TypeFunc func(call *ast.FunctionCall) (types.FormulaType, ast.Node)

// SQLFunc builds the SQL for a call from the SQL of its arguments.
type SQLFunc func(ctx SQLContext, call *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error)

// EvalFunc computes the value of a call from the values of its arguments.
// Non aggregate functions are called once per linked row when an argument is
// many valued.
type EvalFunc func(ctx *EvalContext, call *ast.FunctionCall, args []any) (any, error)

// SQLContext is what the code generator exposes to SQL hooks.
type SQLContext interface {
	// Now is the evaluation time used for now() and today().
	Now() time.Time
	// RowID is the id column of the row the formula is computed for.
	RowID() sqlexpr.Expr
	// ItemID is the id column of the linked row inside an aggregate.
	ItemID() (sqlexpr.Expr, error)
	// ItemOrder is the stable ordering of linked rows inside an aggregate.
	ItemOrder() ([]sqlexpr.Expr, error)
	// AddFilter restricts the linked rows of the enclosing aggregate.
	AddFilter(cond sqlexpr.Expr) error
}

// EvalContext is passed to Eval hooks.
type EvalContext struct {
	Now   time.Time
	RowID int64
}

// Definition describes one builtin function.
type Definition struct {
	Name        string
	Category    Category
	Description string
	Example     string
	Arity       Arity
	// Args holds one spec per position; the last one repeats for variadic functions.
	Args []ArgSpec
	// Aggregate functions collapse a many valued first argument into one value.
	Aggregate bool
	// Wrapper functions only rewrite into other calls.
	Wrapper bool
	// NeedsPeriodicUpdate marks functions whose value changes with time.
	NeedsPeriodicUpdate bool
	// RequiresAggregateWrapper marks many valued results that must end up in an aggregate.
	RequiresAggregateWrapper bool

	Type TypeFunc
	SQL  SQLFunc
	Eval EvalFunc
}

// ArgSpec returns the argument rules for position i.
func (d *Definition) ArgSpec(i int) ArgSpec {
	if len(d.Args) == 0 {
		return ArgSpec{}
	}
	if i >= len(d.Args) {
		return d.Args[len(d.Args)-1]
	}
	return d.Args[i]
}

func (d *Definition) validate() error {
	if d.Name == "" || ast.NormalizeName(d.Name) != d.Name {
		return fmt.Errorf("function name %q must be lower case", d.Name)
	}
	if d.Type == nil {
		return fmt.Errorf("function %s has no type hook", d.Name)
	}
	if !d.Wrapper && d.Category != CategoryReference && (d.SQL == nil || d.Eval == nil) {
		return fmt.Errorf("function %s must implement SQL and Eval", d.Name)
	}
	if d.Aggregate && (len(d.Args) == 0 || !d.Args[0].Many) {
		return fmt.Errorf("aggregate function %s must take a many valued first argument", d.Name)
	}
	return nil
}

// Registry maps lower case names to definitions. It is written during init
// and only read afterwards.
type Registry struct {
	defs   map[string]*Definition
	frozen bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a definition. Registering a name twice is a programming error.
func (r *Registry) Register(d *Definition) error {
	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register %s", d.Name)
	}
	if err := d.validate(); err != nil {
		return err
	}
	if _, exists := r.defs[d.Name]; exists {
		return fmt.Errorf("function %s is already registered", d.Name)
	}
	r.defs[d.Name] = d
	return nil
}

// Freeze makes the registry read only.
func (r *Registry) Freeze() { r.frozen = true }

// Get looks a function up case insensitively.
func (r *Registry) Get(name string) (*Definition, error) {
	if d, ok := r.defs[ast.NormalizeName(name)]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrFunctionDoesNotExist, name)
}

// List returns every definition sorted by category then name.
func (r *Registry) List() []*Definition {
	out := make([]*Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Len is the number of registered functions.
func (r *Registry) Len() int { return len(r.defs) }

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the process wide registry with every builtin registered.
func Default() *Registry {
	defaultOnce.Do(func() {
		r := NewRegistry()
		for _, group := range [][]*Definition{
			textFunctions(),
			numberFunctions(),
			logicFunctions(),
			dateFunctions(),
			aggregateFunctions(),
			miscFunctions(),
		} {
			for _, d := range group {
				if err := r.Register(d); err != nil {
					panic(err)
				}
			}
		}
		r.Freeze()
		defaultRegistry = r
	})
	return defaultRegistry
}
