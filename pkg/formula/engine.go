// Package formula is the entry point of the formula engine: it parses,
// types, compiles to SQL and evaluates formulas.
package formula

import (
	"errors"
	"time"

	apperrors "github.com/gridbase/backend/pkg/errors"
	"github.com/gridbase/backend/pkg/formula/ast"
	"github.com/gridbase/backend/pkg/formula/codegen"
	"github.com/gridbase/backend/pkg/formula/eval"
	"github.com/gridbase/backend/pkg/formula/functions"
	"github.com/gridbase/backend/pkg/formula/parser"
	"github.com/gridbase/backend/pkg/formula/typecheck"
	"github.com/gridbase/backend/pkg/formula/types"
)

// Version is the formula language version. Fields typed by an older version
// are retyped on startup.
const Version = 5

// Engine bundles the stages of the formula pipeline
type Engine struct {
	registry  *functions.Registry
	evaluator *eval.Evaluator
}

// FunctionDefinition represents a formula function definition for API responses
type FunctionDefinition struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
	MinArgs     int    `json:"min_args"`
	MaxArgs     int    `json:"max_args"`
	Aggregate   bool   `json:"aggregate"`
}

// NewEngine creates a new formula engine over the builtin functions
func NewEngine(cacheSize int) (*Engine, error) {
	registry := functions.Default()
	evaluator, err := eval.New(registry, cacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{registry: registry, evaluator: evaluator}, nil
}

// Registry returns the function registry.
func (e *Engine) Registry() *functions.Registry { return e.registry }

// Parse parses src. Syntax errors are *errors.FormulaSyntaxError.
func (e *Engine) Parse(src string) (ast.Node, error) {
	node, err := parser.Parse(src)
	if err != nil {
		var perr *parser.ParseError
		if errors.As(err, &perr) {
			return nil, &apperrors.FormulaSyntaxError{
				Message: perr.Message,
				Line:    perr.Line,
				Column:  perr.Column,
				Offset:  perr.Offset,
			}
		}
		return nil, err
	}
	return node, nil
}

// Type parses and types src for a field of opts.TableID. A formula that
// parses but does not type is returned with an Invalid root, not an error.
func (e *Engine) Type(src string, schema typecheck.Schema, opts typecheck.Options) (*typecheck.Result, error) {
	node, err := e.Parse(src)
	if err != nil {
		return nil, err
	}
	opts.Registry = e.registry
	return typecheck.Check(node, schema, opts)
}

// CompileSQL generates the SQL expression of a valid typed formula.
func (e *Engine) CompileSQL(res *typecheck.Result, tableID int64, now time.Time) (*codegen.Result, error) {
	if res.Invalid() {
		return nil, apperrors.NewFormulaTypeError("", res.Type().(types.Invalid).Error)
	}
	return codegen.Generate(res.Node, codegen.GenContext{TableID: tableID, Now: now, Registry: e.registry})
}

// Evaluate computes a typed formula for one row in memory.
func (e *Engine) Evaluate(node ast.Node, row eval.Row, now time.Time) (any, error) {
	return e.evaluator.Evaluate(node, row, now)
}

// ClearCache drops the compiled programs of the evaluator.
func (e *Engine) ClearCache() { e.evaluator.Purge() }

// Functions lists the functions a user can call.
func (e *Engine) Functions() []FunctionDefinition {
	defs := e.registry.List()
	out := make([]FunctionDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, FunctionDefinition{
			Name:        d.Name,
			Category:    string(d.Category),
			Description: d.Description,
			Usage:       d.Example,
			MinArgs:     d.Arity.Min,
			MaxArgs:     d.Arity.Max,
			Aggregate:   d.Aggregate,
		})
	}
	return out
}
