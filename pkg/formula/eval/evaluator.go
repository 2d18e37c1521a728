// Package eval computes formulas in memory, for previews and for formulas that
// only use literals. A typed tree is compiled once into an expr-lang program
// whose functions dispatch to the Eval hooks of the function registry.
package eval

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gridbase/backend/pkg/formula/ast"
	"github.com/gridbase/backend/pkg/formula/functions"
	"github.com/gridbase/backend/pkg/formula/types"
	"github.com/gridbase/backend/pkg/formula/value"
)

// DefaultCacheSize is the number of compiled programs kept when no size is given.
const DefaultCacheSize = 512

// ErrNotEvaluable is returned for formulas that did not type.
var ErrNotEvaluable = errors.New("formula cannot be evaluated")

const ctxVar = "ctx"

// Evaluator runs typed formulas. It is safe for concurrent use.
type Evaluator struct {
	registry *functions.Registry
	cache    *lru.Cache[string, *program]
}

// New returns an evaluator caching up to cacheSize compiled programs.
func New(registry *functions.Registry, cacheSize int) (*Evaluator, error) {
	if registry == nil {
		registry = functions.Default()
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *program](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create program cache: %w", err)
	}
	return &Evaluator{registry: registry, cache: cache}, nil
}

// Evaluate computes node for row. now is used by now() and today().
func (e *Evaluator) Evaluate(node ast.Node, row Row, now time.Time) (any, error) {
	if node == nil {
		return nil, fmt.Errorf("%w: empty formula", ErrNotEvaluable)
	}
	t := node.FormulaType()
	if t == nil {
		return nil, fmt.Errorf("%w: formula was not type checked", ErrNotEvaluable)
	}
	if inv, ok := t.(types.Invalid); ok {
		return nil, fmt.Errorf("%w: %s", ErrNotEvaluable, inv.Error)
	}
	if row == nil {
		row = &MapRow{}
	}

	prog, err := e.program(node)
	if err != nil {
		return nil, err
	}
	env := prog.env(row, &functions.EvalContext{Now: now, RowID: row.ID()})
	out, err := expr.Run(prog.vm, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", ast.Format(node), err)
	}
	return finish(out, t), nil
}

// Purge drops every cached program.
func (e *Evaluator) Purge() { e.cache.Purge() }

// CacheLen is the number of cached programs.
func (e *Evaluator) CacheLen() int { return e.cache.Len() }

func (e *Evaluator) program(node ast.Node) (*program, error) {
	key, err := fingerprint(node)
	if err != nil {
		return nil, err
	}
	if p, ok := e.cache.Get(key); ok {
		return p, nil
	}
	p, err := compile(node, e.registry)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, p)
	return p, nil
}

// fingerprint identifies a typed tree: the source alone is not enough since
// the same names can resolve to other fields and types. Hooks read the full
// type of their arguments, so every attribute is part of the key.
func fingerprint(node ast.Node) (string, error) {
	var sb strings.Builder
	sb.WriteString(ast.Format(node))
	var err error
	ast.Walk(node, func(n ast.Node) bool {
		info := n.Info()
		sb.WriteString("|")
		if info.Type != nil {
			attrs, merr := json.Marshal(info.Type.Attributes())
			if merr != nil {
				err = merr
				return false
			}
			sb.Write(attrs)
		}
		if info.Many {
			sb.WriteString("*")
		}
		if info.RequiresAggregate {
			sb.WriteString("!")
		}
		if p := info.Path; p != nil {
			fmt.Fprintf(&sb, "@%d:%d:%d", p.LinkFieldID, p.SourceTableID, p.TargetTableID)
		}
		switch v := n.(type) {
		case *ast.FieldReference:
			fmt.Fprintf(&sb, "#%d", v.ID)
		case *ast.LookupReference:
			fmt.Fprintf(&sb, "#%d.%d", v.ThroughID, v.TargetID)
		}
		return true
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", ast.Format(node), err)
	}
	return sb.String(), nil
}

type fieldRef struct {
	id int64
	t  types.FormulaType
}

type lookupRef struct {
	through int64
	target  int64
	t       types.FormulaType
}

type program struct {
	vm       *vm.Program
	literals map[string]any
	fields   map[string]fieldRef
	lookups  map[string]lookupRef
}

func (p *program) env(row Row, ctx *functions.EvalContext) map[string]any {
	env := make(map[string]any, len(p.literals)+len(p.fields)+len(p.lookups)+1)
	env[ctxVar] = ctx
	for name, v := range p.literals {
		env[name] = v
	}
	for name, f := range p.fields {
		env[name] = normalize(row.Value(f.id), f.t)
	}
	for name, l := range p.lookups {
		linked := row.Linked(l.through)
		items := make(value.Many, 0, len(linked))
		for _, r := range linked {
			items = append(items, value.Item{ID: r.ID(), Value: normalize(r.Value(l.target), l.t)})
		}
		env[name] = items
	}
	return env
}

type compiler struct {
	registry *functions.Registry
	prog     *program
	options  []expr.Option
	calls    int
}

func compile(node ast.Node, registry *functions.Registry) (*program, error) {
	c := &compiler{
		registry: registry,
		prog: &program{
			literals: make(map[string]any),
			fields:   make(map[string]fieldRef),
			lookups:  make(map[string]lookupRef),
		},
	}
	src, err := c.emit(node)
	if err != nil {
		return nil, err
	}

	sample := map[string]any{ctxVar: (*functions.EvalContext)(nil)}
	for name := range c.prog.literals {
		sample[name] = nil
	}
	for name := range c.prog.fields {
		sample[name] = nil
	}
	for name := range c.prog.lookups {
		sample[name] = nil
	}
	options := append([]expr.Option{expr.Env(sample)}, c.options...)
	compiled, err := expr.Compile(src, options...)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", ast.Format(node), err)
	}
	c.prog.vm = compiled
	return c.prog, nil
}

// emit returns the expr-lang source of n. Literals and references become
// variables, calls become functions bound to the call node.
func (c *compiler) emit(n ast.Node) (string, error) {
	switch v := n.(type) {
	case *ast.StringLiteral:
		return c.literal(v.Value), nil
	case *ast.BooleanLiteral:
		return c.literal(v.Value), nil
	case *ast.NumberLiteral:
		d, err := value.NewDecimal(v.Text)
		if err != nil {
			return "", err
		}
		return c.literal(d), nil
	case *ast.FieldReference:
		name := fmt.Sprintf("field_%d", v.ID)
		c.prog.fields[name] = fieldRef{id: v.ID, t: v.Type}
		return name, nil
	case *ast.LookupReference:
		name := fmt.Sprintf("lookup_%d_%d", v.ThroughID, v.TargetID)
		c.prog.lookups[name] = lookupRef{through: v.ThroughID, target: v.TargetID, t: v.Type}
		return name, nil
	case *ast.FunctionCall:
		return c.call(v)
	}
	return "", fmt.Errorf("eval: unexpected node %T", n)
}

func (c *compiler) literal(v any) string {
	name := fmt.Sprintf("lit_%d", len(c.prog.literals))
	c.prog.literals[name] = v
	return name
}

func (c *compiler) call(call *ast.FunctionCall) (string, error) {
	def, err := c.registry.Get(call.Name)
	if err != nil {
		return "", err
	}
	if def.Eval == nil {
		return "", fmt.Errorf("eval: function %s cannot be evaluated", def.Name)
	}
	args := make([]string, 0, len(call.Args)+1)
	args = append(args, ctxVar)
	for _, arg := range call.Args {
		src, err := c.emit(arg)
		if err != nil {
			return "", err
		}
		args = append(args, src)
	}
	name := fmt.Sprintf("call_%d", c.calls)
	c.calls++
	c.options = append(c.options, expr.Function(name, func(params ...any) (any, error) {
		ctx, _ := params[0].(*functions.EvalContext)
		return apply(ctx, def, call, params[1:])
	}))
	return name + "(" + strings.Join(args, ", ") + ")", nil
}

// apply calls the Eval hook. A non aggregate function given per row values is
// called once per linked row; items missing from one of the arguments, or
// skipped by the hook, are dropped.
func apply(ctx *functions.EvalContext, def *functions.Definition, call *ast.FunctionCall, args []any) (any, error) {
	if def.Aggregate {
		return def.Eval(ctx, call, args)
	}
	var base value.Many
	indexes := make(map[int]map[int64]any)
	for i, a := range args {
		m, ok := a.(value.Many)
		if !ok {
			continue
		}
		if base == nil {
			base = m
		}
		idx := make(map[int64]any, len(m))
		for _, item := range m {
			idx[item.ID] = item.Value
		}
		indexes[i] = idx
	}
	if len(indexes) == 0 {
		return def.Eval(ctx, call, args)
	}

	out := make(value.Many, 0, len(base))
	per := make([]any, len(args))
	for _, item := range base {
		complete := true
		for i, a := range args {
			idx, ok := indexes[i]
			if !ok {
				per[i] = a
				continue
			}
			v, found := idx[item.ID]
			if !found {
				complete = false
				break
			}
			per[i] = v
		}
		if !complete {
			continue
		}
		v, err := def.Eval(ctx, call, per)
		if err != nil {
			return nil, err
		}
		if value.IsSkip(v) {
			continue
		}
		out = append(out, value.Item{ID: item.ID, Value: v})
	}
	return out, nil
}

// finish converts the program output to the value stored for type t.
func finish(out any, t types.FormulaType) any {
	switch v := out.(type) {
	case value.Many:
		return value.Array(v)
	case *apd.Decimal:
		if n, ok := t.(types.Number); ok && v != nil && !value.IsNaN(v) {
			return value.Quantize(v, n.DecimalPlaces)
		}
	}
	return out
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999", "2006-01-02 15:04:05", "2006-01-02"}

// normalize converts row data into the value representation of type t.
func normalize(v any, t types.FormulaType) any {
	if t == nil {
		return v
	}
	if v == nil {
		if t.Kind() == types.KindBoolean {
			return false
		}
		return nil
	}
	switch t.Kind() {
	case types.KindNumber:
		if d, ok := value.ToDecimal(v); ok {
			return d
		}
		return nil
	case types.KindDate:
		if s, ok := v.(string); ok {
			for _, layout := range dateLayouts {
				if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
					return parsed
				}
			}
			return nil
		}
	case types.KindDateInterval:
		if d, ok := value.ToDecimal(v); ok {
			seconds, err := d.Float64()
			if err == nil {
				return time.Duration(seconds * float64(time.Second))
			}
		}
	case types.KindBoolean:
		return value.ToBool(v)
	}
	return v
}
