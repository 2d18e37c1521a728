// Package codegen turns a typed formula tree into a SQL expression that
// computes the formula for every row of its table. Values read through a
// link_row field are aggregated in correlated scalar subqueries over the
// relation table of that field.
package codegen

import (
	"fmt"
	"time"

	tidbast "github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"

	"github.com/gridbase/backend/pkg/constants"
	apperrors "github.com/gridbase/backend/pkg/errors"
	"github.com/gridbase/backend/pkg/formula/ast"
	"github.com/gridbase/backend/pkg/formula/functions"
	"github.com/gridbase/backend/pkg/formula/sqlexpr"
	"github.com/gridbase/backend/pkg/formula/types"
)

// GenContext is the environment of one generation.
type GenContext struct {
	// TableID is the table the formula field belongs to.
	TableID int64
	// Now is substituted for now() and today().
	Now      time.Time
	Registry *functions.Registry
}

// Result is the generated expression.
type Result struct {
	Expr sqlexpr.Expr
	SQL  string
	// Joins lists every link traversal the expression aggregates over.
	Joins      []ast.JoinPath
	ColumnType string
}

type generator struct {
	gc    GenContext
	table string
	joins []ast.JoinPath
	seen  map[ast.JoinPath]bool
}

// Generate builds the SQL of a typed, valid formula.
func Generate(node ast.Node, gc GenContext) (*Result, error) {
	if node == nil {
		return nil, apperrors.NewInternalError("codegen: nil node", nil)
	}
	t := node.FormulaType()
	if t == nil {
		return nil, apperrors.NewInternalError("codegen: formula was not type checked", nil)
	}
	if types.IsInvalid(t) {
		return nil, apperrors.NewInternalError("codegen: cannot generate SQL for an invalid formula", nil)
	}
	if gc.Registry == nil {
		gc.Registry = functions.Default()
	}
	if gc.Now.IsZero() {
		gc.Now = time.Now()
	}
	g := &generator{
		gc:    gc,
		table: constants.TableName(gc.TableID),
		seen:  make(map[ast.JoinPath]bool),
	}
	root := &scope{g: g}
	expr, err := g.gen(node, root)
	if err != nil {
		return nil, err
	}
	if n, ok := t.(types.Number); ok {
		expr = sqlexpr.CastDecimal(expr, n.DecimalPlaces)
	}
	text, err := sqlexpr.Restore(expr)
	if err != nil {
		return nil, apperrors.NewInternalError("codegen: render SQL", err)
	}
	return &Result{Expr: expr, SQL: text, Joins: g.joins, ColumnType: ColumnType(t)}, nil
}

func internalf(format string, args ...any) error {
	return apperrors.NewInternalError(fmt.Sprintf(format, args...), nil)
}

func (g *generator) gen(n ast.Node, s *scope) (sqlexpr.Expr, error) {
	if types.IsInvalid(n.FormulaType()) {
		return nil, internalf("codegen: untyped or invalid node %s", ast.Format(n))
	}
	switch v := n.(type) {
	case *ast.StringLiteral:
		return sqlexpr.String(v.Value), nil
	case *ast.NumberLiteral:
		return sqlexpr.Decimal(v.Text)
	case *ast.BooleanLiteral:
		return sqlexpr.Bool(v.Value), nil
	case *ast.FieldReference:
		return sqlexpr.Column(g.table, constants.ColumnName(v.ID)), nil
	case *ast.LookupReference:
		if s.path == nil || v.Path == nil || *s.path != *v.Path {
			return nil, internalf("codegen: lookup %s is not inside an aggregate over its link field", ast.Format(v))
		}
		return sqlexpr.Column(joinAlias(v.Path), constants.ColumnName(v.TargetID)), nil
	case *ast.FunctionCall:
		return g.call(v, s)
	}
	return nil, internalf("codegen: unexpected node %T", n)
}

func (g *generator) call(call *ast.FunctionCall, s *scope) (sqlexpr.Expr, error) {
	def, err := g.gc.Registry.Get(call.Name)
	if err != nil {
		return nil, apperrors.NewInternalError("codegen", err)
	}
	if def.SQL == nil {
		return nil, internalf("codegen: function %s has no SQL form", def.Name)
	}
	if def.Aggregate {
		return g.aggregate(def, call)
	}
	if (call.Many || call.RequiresAggregate) && s.path == nil {
		return nil, internalf("codegen: %s yields a list but is not aggregated", ast.Format(call))
	}
	args, err := g.args(call, s)
	if err != nil {
		return nil, err
	}
	return def.SQL(s, call, args)
}

func (g *generator) args(call *ast.FunctionCall, s *scope) ([]sqlexpr.Expr, error) {
	args := make([]sqlexpr.Expr, len(call.Args))
	for i, arg := range call.Args {
		expr, err := g.gen(arg, s)
		if err != nil {
			return nil, err
		}
		args[i] = expr
	}
	return args, nil
}

// aggregate opens a scope over the linked rows of the first argument and
// wraps the aggregate in a correlated subquery.
func (g *generator) aggregate(def *functions.Definition, call *ast.FunctionCall) (sqlexpr.Expr, error) {
	path := call.Args[0].Info().Path
	if path == nil {
		return nil, internalf("codegen: %s aggregates a value without a link field", def.Name)
	}
	inner := &scope{g: g, path: path}
	args, err := g.args(call, inner)
	if err != nil {
		return nil, err
	}
	expr, err := def.SQL(inner, call, args)
	if err != nil {
		return nil, err
	}
	if !g.seen[*path] {
		g.seen[*path] = true
		g.joins = append(g.joins, *path)
	}
	return sqlexpr.Subquery(g.subquery(inner, expr)), nil
}

func (g *generator) subquery(s *scope, expr sqlexpr.Expr) *tidbast.SelectStmt {
	rel, item := relationAlias(s.path), joinAlias(s.path)
	from := sqlexpr.JoinOn(
		sqlexpr.Table(constants.RelationTableName(s.path.LinkFieldID), rel),
		sqlexpr.Table(constants.TableName(s.path.TargetTableID), item),
		sqlexpr.Binary(opcode.EQ, sqlexpr.Column(rel, constants.ColumnTargetRowID), sqlexpr.Column(item, constants.ColumnID)),
	)
	where := sqlexpr.And(append([]sqlexpr.Expr{
		sqlexpr.Binary(opcode.EQ, sqlexpr.Column(rel, constants.ColumnRowID), sqlexpr.Column(constants.TableName(s.path.SourceTableID), constants.ColumnID)),
	}, s.filters...)...)
	return sqlexpr.Select(expr, from, where)
}

func relationAlias(p *ast.JoinPath) string { return sqlexpr.Alias("r", p.LinkFieldID) }
func joinAlias(p *ast.JoinPath) string     { return sqlexpr.Alias("j", p.LinkFieldID) }

// scope implements functions.SQLContext. A nil path is the row itself.
type scope struct {
	g       *generator
	path    *ast.JoinPath
	filters []sqlexpr.Expr
}

func (s *scope) Now() time.Time { return s.g.gc.Now }

func (s *scope) RowID() sqlexpr.Expr {
	return sqlexpr.Column(s.g.table, constants.ColumnID)
}

func (s *scope) ItemID() (sqlexpr.Expr, error) {
	if s.path == nil {
		return nil, internalf("codegen: linked row id used outside an aggregate")
	}
	return sqlexpr.Column(joinAlias(s.path), constants.ColumnID), nil
}

func (s *scope) ItemOrder() ([]sqlexpr.Expr, error) {
	if s.path == nil {
		return nil, internalf("codegen: linked row order used outside an aggregate")
	}
	alias := joinAlias(s.path)
	return []sqlexpr.Expr{
		sqlexpr.Column(alias, constants.ColumnOrder),
		sqlexpr.Column(alias, constants.ColumnID),
	}, nil
}

func (s *scope) AddFilter(cond sqlexpr.Expr) error {
	if s.path == nil {
		return internalf("codegen: filter used outside an aggregate")
	}
	s.filters = append(s.filters, cond)
	return nil
}
