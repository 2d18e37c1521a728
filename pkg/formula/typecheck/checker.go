// Package typecheck resolves the type of every node of a parsed formula. The
// result is a new, fully typed tree; the input tree is never modified. A
// formula that does not type is not an error: its root gets a types.Invalid
// carrying the message of the innermost failure.
package typecheck

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gridbase/backend/pkg/formula/ast"
	"github.com/gridbase/backend/pkg/formula/functions"
	"github.com/gridbase/backend/pkg/formula/parser"
	"github.com/gridbase/backend/pkg/formula/types"
)

const (
	// MaxRewrites bounds the chain of replacement nodes a type hook may produce.
	MaxRewrites = 8
	// MaxInlineDepth bounds how deep array formula fields are inlined.
	MaxInlineDepth = 5
)

// Options configure a single Check.
type Options struct {
	TableID int64
	// FieldID is the field being typed, 0 for previews of a new field.
	FieldID  int64
	Registry *functions.Registry
}

// Dependency is a field the formula reads. ViaFieldID is the link_row field a
// lookup goes through. A reference that could not be resolved has FieldID 0
// and keeps its Name so it can be re-attached when such a field appears.
type Dependency struct {
	FieldID    int64
	ViaFieldID int64
	Name       string
}

// Result is a typed formula.
type Result struct {
	Node                ast.Node
	Dependencies        []Dependency
	NeedsPeriodicUpdate bool
}

// Type returns the type of the root node.
func (r *Result) Type() types.FormulaType { return r.Node.FormulaType() }

// Invalid reports whether the formula failed to type.
func (r *Result) Invalid() bool { return types.IsInvalid(r.Type()) }

type checker struct {
	schema   Schema
	registry *functions.Registry
	opts     Options
	deps     []Dependency
	seen     map[Dependency]bool
	periodic bool
	inlining map[int64]bool
	depth    int
}

// Check types node against the fields of opts.TableID.
func Check(node ast.Node, schema Schema, opts Options) (*Result, error) {
	if node == nil {
		return nil, errors.New("typecheck: nil node")
	}
	if opts.Registry == nil {
		opts.Registry = functions.Default()
	}
	c := &checker{
		schema:   schema,
		registry: opts.Registry,
		opts:     opts,
		seen:     make(map[Dependency]bool),
		inlining: make(map[int64]bool),
	}
	typed, err := c.typeNode(ast.Clone(node), opts.TableID)
	if err != nil {
		return nil, err
	}
	if !types.IsInvalid(typed.FormulaType()) && typed.Info().Many {
		typed, err = c.typeNode(ast.Call("array_agg", typed), opts.TableID)
		if err != nil {
			return nil, err
		}
	}
	return &Result{Node: typed, Dependencies: c.deps, NeedsPeriodicUpdate: c.periodic}, nil
}

// addDependency records a field read by the formula itself. Reads made by an
// inlined field's formula belong to that field and are not recorded.
func (c *checker) addDependency(d Dependency) {
	if c.depth == 0 && !c.seen[d] {
		c.seen[d] = true
		c.deps = append(c.deps, d)
	}
}

func invalid(n ast.Node, t types.Invalid) ast.Node {
	info := n.Info()
	info.Type = t
	info.Many = false
	info.Path = nil
	return n
}

// typeNode types n bottom up. Nodes that already carry a type are returned as
// they are, which lets type hooks build replacements out of typed arguments.
func (c *checker) typeNode(n ast.Node, tableID int64) (ast.Node, error) {
	if n.FormulaType() != nil {
		return n, nil
	}
	switch v := n.(type) {
	case *ast.StringLiteral:
		v.Type = types.Text{}
		return v, nil
	case *ast.NumberLiteral:
		v.Type = types.Number{DecimalPlaces: min(v.DecimalPlaces, types.NumberMaxDecimalPlaces), Negative: strings.HasPrefix(v.Text, "-")}
		return v, nil
	case *ast.BooleanLiteral:
		v.Type = types.Boolean{}
		return v, nil
	case *ast.FieldReference:
		return c.typeField(v, tableID)
	case *ast.LookupReference:
		return c.typeLookup(v, tableID), nil
	case *ast.FunctionCall:
		return c.typeCall(v, tableID, 0)
	}
	return nil, fmt.Errorf("typecheck: unexpected node %T", n)
}

func (c *checker) resolve(tableID int64, name string, id int64, byID bool) (*FieldInfo, bool) {
	if byID {
		f, ok := c.schema.FieldByID(id)
		if !ok || f.TableID != tableID {
			return nil, false
		}
		return f, true
	}
	return c.schema.FieldByName(tableID, name)
}

func (c *checker) typeField(ref *ast.FieldReference, tableID int64) (ast.Node, error) {
	f, ok := c.resolve(tableID, ref.Name, ref.ID, ref.ByID)
	if !ok {
		label := ref.Name
		if ref.ByID {
			label = fmt.Sprintf("with id %d", ref.ID)
		}
		c.addDependency(Dependency{Name: ref.Name})
		return invalid(ref, types.Errorf("references the deleted or unknown field %s", label)), nil
	}
	ref.ID, ref.Name = f.ID, f.Name
	c.addDependency(Dependency{FieldID: f.ID})
	if c.opts.FieldID != 0 && f.ID == c.opts.FieldID && tableID == c.opts.TableID {
		return invalid(ref, types.Errorf("a formula field cannot reference itself")), nil
	}
	if f.IsLink() {
		primary, ok := c.schema.PrimaryField(f.LinkTableID)
		if !ok {
			return invalid(ref, types.Errorf("the table linked by %s has no primary field", f.Name)), nil
		}
		lookup := &ast.LookupReference{
			ThroughName: f.Name, ThroughID: f.ID,
			TargetName: primary.Name, TargetID: primary.ID,
			ThroughPos: ref.NamePos,
		}
		return c.typeLookup(lookup, tableID), nil
	}
	if types.IsInvalid(f.Type) {
		return invalid(ref, types.Errorf("references the invalid field %s", f.Name)), nil
	}
	if f.Type.Kind() == types.KindArray && f.Formula != "" {
		return c.inline(ref, f, tableID)
	}
	ref.Type = f.Type
	return ref, nil
}

// inline replaces a reference to an array formula field by the field's own
// formula, so the many valued expression can be aggregated in this one.
func (c *checker) inline(ref *ast.FieldReference, f *FieldInfo, tableID int64) (ast.Node, error) {
	if c.depth >= MaxInlineDepth || c.inlining[f.ID] {
		return invalid(ref, types.Errorf("references %s which nests array formulas too deeply", f.Name)), nil
	}
	parsed, err := parser.Parse(f.Formula)
	if err != nil {
		return invalid(ref, types.Errorf("references the invalid field %s", f.Name)), nil
	}
	c.inlining[f.ID] = true
	c.depth++
	typed, err := c.typeNode(parsed, tableID)
	c.depth--
	delete(c.inlining, f.ID)
	if err != nil {
		return nil, err
	}
	if types.IsInvalid(typed.FormulaType()) {
		return invalid(ref, types.Errorf("references the invalid field %s", f.Name)), nil
	}
	return typed, nil
}

func (c *checker) typeLookup(l *ast.LookupReference, tableID int64) ast.Node {
	through, ok := c.resolve(tableID, l.ThroughName, l.ThroughID, l.ThroughID != 0 && l.ThroughName == "")
	if !ok {
		c.addDependency(Dependency{Name: l.ThroughName})
		return invalid(l, types.Errorf("references the deleted or unknown field %s", l.ThroughName))
	}
	l.ThroughID, l.ThroughName = through.ID, through.Name
	c.addDependency(Dependency{FieldID: through.ID})
	if c.opts.FieldID != 0 && through.ID == c.opts.FieldID {
		return invalid(l, types.Errorf("a formula field cannot reference itself"))
	}
	if !through.IsLink() {
		return invalid(l, types.Errorf("the field %s used in a lookup is not a link row field", through.Name))
	}
	target, ok := c.resolve(through.LinkTableID, l.TargetName, l.TargetID, l.TargetID != 0 && l.TargetName == "")
	if !ok {
		return invalid(l, types.Errorf("references the deleted or unknown field %s in the table linked by %s", l.TargetName, through.Name))
	}
	l.TargetID, l.TargetName = target.ID, target.Name
	c.addDependency(Dependency{FieldID: target.ID, ViaFieldID: through.ID})
	switch {
	case c.opts.FieldID != 0 && target.ID == c.opts.FieldID:
		return invalid(l, types.Errorf("a formula field cannot reference itself"))
	case target.IsLink():
		return invalid(l, types.Errorf("looking up the link row field %s is not supported", target.Name))
	case types.IsInvalid(target.Type):
		return invalid(l, types.Errorf("references the invalid field %s", target.Name))
	case target.Type.Kind() == types.KindArray:
		return invalid(l, types.Errorf("looking up %s is not supported because it is already a list", target.Name))
	}
	l.Type = target.Type
	l.Many = true
	l.Path = &ast.JoinPath{LinkFieldID: through.ID, SourceTableID: tableID, TargetTableID: through.LinkTableID}
	return l
}

func (c *checker) typeCall(call *ast.FunctionCall, tableID int64, rewrites int) (ast.Node, error) {
	def, err := c.registry.Get(call.Name)
	if err != nil {
		if errors.Is(err, functions.ErrFunctionDoesNotExist) {
			return invalid(call, types.Errorf("function %s does not exist", call.Name)), nil
		}
		return nil, err
	}
	if msg := def.Arity.Check(def.Name, len(call.Args)); msg != "" {
		return invalid(call, types.Invalid{Error: msg}), nil
	}
	call.Name = def.Name
	if def.NeedsPeriodicUpdate {
		c.periodic = true
	}

	for i, arg := range call.Args {
		typed, err := c.typeNode(arg, tableID)
		if err != nil {
			return nil, err
		}
		call.Args[i] = typed
		if t := typed.FormulaType(); types.IsInvalid(t) {
			return invalid(call, t.(types.Invalid)), nil
		}
	}

	for i := range call.Args {
		if t, ok := c.checkArg(def, call, i, tableID); !ok {
			return invalid(call, t), nil
		}
	}

	many, path, requiresAggregate, bad := c.combineMany(def, call)
	if bad != nil {
		return invalid(call, *bad), nil
	}

	t, replacement := def.Type(call)
	if replacement != nil {
		if rewrites >= MaxRewrites {
			return nil, fmt.Errorf("typecheck: function %s rewrote more than %d times", def.Name, MaxRewrites)
		}
		replaced, ok := replacement.(*ast.FunctionCall)
		if !ok || replaced.FormulaType() != nil {
			return c.typeNode(replacement, tableID)
		}
		return c.typeCall(replaced, tableID, rewrites+1)
	}
	if t == nil {
		return nil, fmt.Errorf("typecheck: function %s returned no type", def.Name)
	}
	if inv, ok := t.(types.Invalid); ok {
		return invalid(call, inv), nil
	}
	call.Type = t
	call.Many = many
	call.Path = path
	call.RequiresAggregate = requiresAggregate || def.RequiresAggregateWrapper
	return call, nil
}

// checkArg validates argument i against its spec, inserting a totext cast
// where the position accepts text.
func (c *checker) checkArg(def *functions.Definition, call *ast.FunctionCall, i int, tableID int64) (types.Invalid, bool) {
	spec := def.ArgSpec(i)
	arg := call.Args[i]
	if spec.Literal && !ast.IsLiteral(arg) {
		return types.Errorf("argument number %d given to function %s must be a literal value", i+1, def.Name), false
	}
	if spec.Many && !arg.Info().Many {
		return types.Errorf("argument number %d given to function %s must be a lookup or a link field, a single value was given", i+1, def.Name), false
	}
	t := arg.FormulaType()
	if spec.Accepts(t.Kind()) {
		return types.Invalid{}, true
	}
	if spec.CoercesToText() {
		cast, err := c.typeNode(ast.Call("totext", arg), tableID)
		if err == nil && !types.IsInvalid(cast.FormulaType()) {
			call.Args[i] = cast
			return types.Invalid{}, true
		}
	}
	return types.Errorf("argument number %d given to function %s was of type %s but the only usable type for this argument is %s",
		i+1, def.Name, t.Kind(), types.KindNames(spec.Kinds)), false
}

// combineMany decides whether the call yields one value per linked row.
func (c *checker) combineMany(def *functions.Definition, call *ast.FunctionCall) (bool, *ast.JoinPath, bool, *types.Invalid) {
	var path *ast.JoinPath
	many, requiresAggregate := false, false
	for i, arg := range call.Args {
		info := arg.Info()
		if !info.Many {
			continue
		}
		if def.Aggregate && i > 0 {
			inv := types.Errorf("argument number %d given to function %s must be a single value", i+1, def.Name)
			return false, nil, false, &inv
		}
		if path != nil && info.Path != nil && *path != *info.Path {
			inv := types.Errorf("function %s cannot combine values looked up through different link fields", def.Name)
			return false, nil, false, &inv
		}
		if info.Path != nil {
			path = info.Path
		}
		many = true
		requiresAggregate = requiresAggregate || info.RequiresAggregate
	}
	if def.Aggregate {
		return false, nil, false, nil
	}
	return many, path, requiresAggregate, nil
}
