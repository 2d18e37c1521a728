// Package sqlexpr builds TiDB/MySQL expression trees for the code generator
// and renders them back to SQL text.
package sqlexpr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	"github.com/pingcap/tidb/pkg/parser/opcode"
	"github.com/pingcap/tidb/pkg/parser/types"

	// registers ast.NewValueExpr and ast.NewDecimal
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// Expr is a node of a SQL expression tree.
type Expr = ast.ExprNode

// Restore renders a node as MySQL text.
func Restore(node ast.Node) (string, error) {
	var sb strings.Builder
	ctx := format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)
	if err := node.Restore(ctx); err != nil {
		return "", fmt.Errorf("SQL restore error: %w", err)
	}
	return sb.String(), nil
}

// MustRestore is Restore for tests and log lines.
func MustRestore(node ast.Node) string {
	s, err := Restore(node)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return s
}

// Null is the NULL literal.
func Null() Expr {
	return ast.NewValueExpr(nil, "", "")
}

// String is a quoted string literal.
func String(s string) Expr {
	return ast.NewValueExpr(s, "", "")
}

// Int is an integer literal.
func Int(i int64) Expr {
	return ast.NewValueExpr(i, "", "")
}

// Bool renders as 1 or 0.
func Bool(b bool) Expr {
	if b {
		return Int(1)
	}
	return Int(0)
}

// Decimal limits of MySQL and TiDB.
const (
	MaxDecimalDigits = 65
	MaxDecimalScale  = 30
)

// Decimal is an exact numeric literal. Text that is not a finite number or
// does not fit DECIMAL(65, 30) is an error.
func Decimal(text string) (expr Expr, err error) {
	d, _, err := apd.NewFromString(text)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal literal %q: %w", text, err)
	}
	if d.Form != apd.Finite {
		return nil, fmt.Errorf("invalid decimal literal %q", text)
	}
	scale := 0
	if d.Exponent < 0 {
		scale = int(-d.Exponent)
	}
	whole := int(d.NumDigits()) + int(d.Exponent)
	if d.IsZero() || whole < 0 {
		whole = 0
	}
	if scale > MaxDecimalScale || whole+scale > MaxDecimalDigits {
		return nil, fmt.Errorf("decimal literal %q does not fit DECIMAL(%d, %d)", text, MaxDecimalDigits, MaxDecimalScale)
	}
	// the parser driver panics on input it cannot represent
	defer func() {
		if r := recover(); r != nil {
			expr, err = nil, fmt.Errorf("invalid decimal literal %q: %v", text, r)
		}
	}()
	md, err := ast.NewDecimal(d.Text('f'))
	if err != nil {
		return nil, fmt.Errorf("invalid decimal literal %q: %w", text, err)
	}
	return ast.NewValueExpr(md, "", ""), nil
}

// Column references table.column.
func Column(table, column string) Expr {
	return &ast.ColumnNameExpr{Name: &ast.ColumnName{
		Table: ast.NewCIStr(table),
		Name:  ast.NewCIStr(column),
	}}
}

// Paren wraps e in parentheses.
func Paren(e Expr) Expr {
	if _, ok := e.(*ast.ParenthesesExpr); ok {
		return e
	}
	return &ast.ParenthesesExpr{Expr: e}
}

// Binary builds "(l) op (r)".
func Binary(op opcode.Op, l, r Expr) Expr {
	return &ast.BinaryOperationExpr{Op: op, L: Paren(l), R: Paren(r)}
}

// And joins conditions with AND, skipping nils.
func And(conds ...Expr) Expr {
	var out Expr
	for _, c := range conds {
		if c == nil {
			continue
		}
		if out == nil {
			out = c
			continue
		}
		out = &ast.BinaryOperationExpr{Op: opcode.LogicAnd, L: out, R: Paren(c)}
	}
	return out
}

// Not negates e.
func Not(e Expr) Expr {
	return &ast.UnaryOperationExpr{Op: opcode.Not, V: Paren(e)}
}

// Neg is unary minus.
func Neg(e Expr) Expr {
	return &ast.UnaryOperationExpr{Op: opcode.Minus, V: Paren(e)}
}

// IsNull builds "e IS NULL" or "e IS NOT NULL".
func IsNull(e Expr, not bool) Expr {
	return &ast.IsNullExpr{Expr: Paren(e), Not: not}
}

// Func calls a scalar function.
func Func(name string, args ...Expr) Expr {
	return &ast.FuncCallExpr{FnName: ast.NewCIStr(name), Args: args}
}

// Coalesce returns the first non NULL argument.
func Coalesce(args ...Expr) Expr {
	return Func(ast.Coalesce, args...)
}

// When is one branch of a CASE expression.
type When struct {
	Cond   Expr
	Result Expr
}

// Case builds CASE WHEN ... THEN ... ELSE ... END.
func Case(whens []When, elseExpr Expr) Expr {
	clauses := make([]*ast.WhenClause, len(whens))
	for i, w := range whens {
		clauses[i] = &ast.WhenClause{Expr: w.Cond, Result: w.Result}
	}
	return &ast.CaseExpr{WhenClauses: clauses, ElseClause: elseExpr}
}

// If is a two branch CASE.
func If(cond, then, otherwise Expr) Expr {
	return Case([]When{{Cond: cond, Result: then}}, otherwise)
}

// CastDecimal casts to DECIMAL(65, dp).
func CastDecimal(e Expr, dp int) Expr {
	tp := types.NewFieldType(mysql.TypeNewDecimal)
	tp.SetFlen(mysql.MaxDecimalWidth)
	tp.SetDecimal(dp)
	return cast(e, tp)
}

// CastChar casts to CHAR.
func CastChar(e Expr) Expr {
	return cast(e, types.NewFieldType(mysql.TypeVarString))
}

// CastSigned casts to a signed integer.
func CastSigned(e Expr) Expr {
	return cast(e, types.NewFieldType(mysql.TypeLonglong))
}

// CastJSON casts to JSON.
func CastJSON(e Expr) Expr {
	return cast(e, types.NewFieldType(mysql.TypeJSON))
}

// CastDatetime casts to DATETIME(6), or DATE when includeTime is false.
func CastDatetime(e Expr, includeTime bool) Expr {
	if !includeTime {
		return cast(e, types.NewFieldType(mysql.TypeDate))
	}
	tp := types.NewFieldType(mysql.TypeDatetime)
	tp.SetDecimal(6)
	return cast(e, tp)
}

func cast(e Expr, tp *types.FieldType) Expr {
	return &ast.FuncCastExpr{Expr: e, Tp: tp, FunctionType: ast.CastFunction}
}

// Timestamp is a DATETIME(6) literal of t in UTC.
func Timestamp(t time.Time) Expr {
	return CastDatetime(String(t.UTC().Format("2006-01-02 15:04:05.000000")), true)
}

// Date is a DATE literal.
func Date(t time.Time) Expr {
	return CastDatetime(String(t.Format("2006-01-02")), false)
}

// Unit is a time unit keyword argument.
func Unit(u ast.TimeUnitType) Expr {
	return &ast.TimeUnitExpr{Unit: u}
}

// AddSeconds builds DATE_ADD(d, INTERVAL s SECOND).
func AddSeconds(d, seconds Expr) Expr {
	return Func(ast.DateAdd, d, seconds, Unit(ast.TimeUnitSecond))
}

// DiffSeconds builds TIMESTAMPDIFF(SECOND, from, to).
func DiffSeconds(from, to Expr) Expr {
	return Func(ast.TimestampDiff, Unit(ast.TimeUnitSecond), from, to)
}

// Aggregate calls an aggregate function.
func Aggregate(name string, args ...Expr) Expr {
	return &ast.AggregateFuncExpr{F: name, Args: args}
}

// GroupConcat builds GROUP_CONCAT(e ORDER BY ... SEPARATOR sep).
func GroupConcat(e Expr, order []*ast.ByItem, sep string) Expr {
	agg := &ast.AggregateFuncExpr{F: ast.AggFuncGroupConcat, Args: []Expr{e, String(sep)}}
	if len(order) > 0 {
		agg.Order = &ast.OrderByClause{Items: order}
	}
	return agg
}

// OrderBy builds ascending order items.
func OrderBy(exprs ...Expr) []*ast.ByItem {
	items := make([]*ast.ByItem, len(exprs))
	for i, e := range exprs {
		items[i] = &ast.ByItem{Expr: e}
	}
	return items
}

// In builds "e IN (list...)".
func In(e Expr, list ...Expr) Expr {
	return &ast.PatternInExpr{Expr: e, List: list}
}

// IntList turns ids into literals.
func IntList(ids []int64) []Expr {
	out := make([]Expr, len(ids))
	for i, id := range ids {
		out[i] = Int(id)
	}
	return out
}

// Quote renders an identifier with backquotes.
func Quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Alias renders "<prefix>_<id>" used for join aliases.
func Alias(prefix string, id int64) string {
	return prefix + "_" + strconv.FormatInt(id, 10)
}

// Table is a table reference with an optional alias.
func Table(name, alias string) *ast.TableSource {
	ts := &ast.TableSource{Source: &ast.TableName{Name: ast.NewCIStr(name)}}
	if alias != "" {
		ts.AsName = ast.NewCIStr(alias)
	}
	return ts
}

// JoinOn joins right to left with an inner join.
func JoinOn(left ast.ResultSetNode, right ast.ResultSetNode, on Expr) *ast.Join {
	return &ast.Join{Left: left, Right: right, Tp: ast.CrossJoin, On: &ast.OnCondition{Expr: on}}
}

// Select builds "SELECT field FROM from WHERE where".
func Select(field Expr, from ast.ResultSetNode, where Expr) *ast.SelectStmt {
	join, ok := from.(*ast.Join)
	if !ok {
		join = &ast.Join{Left: from}
	}
	return &ast.SelectStmt{
		SelectStmtOpts: &ast.SelectStmtOpts{SQLCache: true},
		Kind:           ast.SelectStmtKindSelect,
		Fields:         &ast.FieldList{Fields: []*ast.SelectField{{Expr: field}}},
		From:           &ast.TableRefsClause{TableRefs: join},
		Where:          where,
	}
}

// Subquery wraps a single column select as a scalar expression.
func Subquery(sel *ast.SelectStmt) Expr {
	return &ast.SubqueryExpr{Query: sel}
}

// Exists builds EXISTS (sel).
func Exists(sel *ast.SelectStmt) Expr {
	return &ast.ExistsSubqueryExpr{Sel: &ast.SubqueryExpr{Query: sel, Exists: true}}
}
