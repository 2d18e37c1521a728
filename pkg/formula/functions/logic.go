package functions

import (
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/pingcap/tidb/pkg/parser/opcode"

	"github.com/gridbase/backend/pkg/formula/ast"
	"github.com/gridbase/backend/pkg/formula/sqlexpr"
	"github.com/gridbase/backend/pkg/formula/types"
	"github.com/gridbase/backend/pkg/formula/value"
)

var comparisonOperators = map[string]string{
	"equal":                 "=",
	"not_equal":             "!=",
	"greater_than":          ">",
	"greater_than_or_equal": ">=",
	"less_than":             "<",
	"less_than_or_equal":    "<=",
}

func logicFunctions() []*Definition {
	defs := []*Definition{
		{
			Name: "equal", Category: CategoryBoolean,
			Description: "True when both inputs are equal. Inputs of different types are compared as text.",
			Example:     "field('A') = 1",
			Arity:       Exactly(2),
			Args:        []ArgSpec{rawArg},
			Type:        typeEquality,
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Binary(opcode.NullEQ, args[0], args[1]), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				return valuesEqual(args[0], args[1]), nil
			},
		},
		{
			Name: "not_equal", Category: CategoryBoolean,
			Description: "True when the inputs differ. Inputs of different types are compared as text.",
			Example:     "field('A') != 1",
			Arity:       Exactly(2),
			Args:        []ArgSpec{rawArg},
			Type:        typeEquality,
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Not(sqlexpr.Binary(opcode.NullEQ, args[0], args[1])), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				return !valuesEqual(args[0], args[1]), nil
			},
		},
		{
			Name: "if", Category: CategoryBoolean,
			Description: "Returns the second input when the condition is true, otherwise the third.",
			Example:     "if(field('Active'), 'Yes', 'No')",
			Arity:       Exactly(3),
			Args:        []ArgSpec{boolArg, rawArg},
			Type:        typeIf,
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.If(args[0], args[1], args[2]), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				if value.ToBool(args[0]) {
					return args[1], nil
				}
				return args[2], nil
			},
		},
		{
			Name: "and", Category: CategoryBoolean,
			Description: "True when both inputs are true. Written as a && b.",
			Example:     "and(true, field('Done'))",
			Arity:       Exactly(2),
			Args:        []ArgSpec{boolArg},
			Type:        returns(types.Boolean{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Binary(opcode.LogicAnd, args[0], args[1]), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				return value.ToBool(args[0]) && value.ToBool(args[1]), nil
			},
		},
		{
			Name: "or", Category: CategoryBoolean,
			Description: "True when one of the inputs is true. Written as a || b.",
			Example:     "or(false, field('Done'))",
			Arity:       Exactly(2),
			Args:        []ArgSpec{boolArg},
			Type:        returns(types.Boolean{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Binary(opcode.LogicOr, args[0], args[1]), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				return value.ToBool(args[0]) || value.ToBool(args[1]), nil
			},
		},
		{
			Name: "not", Category: CategoryBoolean,
			Description: "Inverts a boolean.",
			Example:     "not(field('Done'))",
			Arity:       Exactly(1),
			Args:        []ArgSpec{boolArg},
			Type:        returns(types.Boolean{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Not(args[0]), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				return !value.ToBool(args[0]), nil
			},
		},
		{
			Name: "isblank", Category: CategoryBoolean,
			Description: "True when the input is empty: no value, blank text, false or an empty list.",
			Example:     "isblank(field('Notes'))",
			Arity:       Exactly(1),
			Args:        []ArgSpec{rawArg},
			Type:        returns(types.Boolean{}),
			SQL: func(_ SQLContext, call *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return blankSQL(argType(call, 0), args[0]), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				return isBlank(args[0]), nil
			},
		},
		{
			Name: "error_to_null", Category: CategoryBoolean,
			Description: "Turns an invalid calculation result into an empty value.",
			Example:     "error_to_null(1 / 0)",
			Arity:       Exactly(1),
			Args:        []ArgSpec{rawArg},
			Type: func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
				return types.WithNullable(argType(call, 0), true), nil
			},
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return args[0], nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				if d, ok := args[0].(*apd.Decimal); ok && value.IsNaN(d) {
					return nil, nil
				}
				return args[0], nil
			},
		},
		{
			Name: "error_to_nan", Category: CategoryNumber,
			Description: "Turns an invalid calculation result into NaN.",
			Example:     "error_to_nan(sqrt(-1))",
			Arity:       Exactly(1),
			Args:        []ArgSpec{numberArg},
			Type:        sameAsArg(0),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return args[0], nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				return args[0], nil
			},
		},
	}
	for _, name := range []string{"greater_than", "greater_than_or_equal", "less_than", "less_than_or_equal"} {
		defs = append(defs, limitComparison(name))
	}
	return defs
}

func limitComparison(name string) *Definition {
	op := comparisonOperators[name]
	sqlOps := map[string]opcode.Op{">": opcode.GT, ">=": opcode.GE, "<": opcode.LT, "<=": opcode.LE}
	return &Definition{
		Name: name, Category: CategoryBoolean,
		Description: "Compares two numbers, texts, dates or intervals. Written as a " + op + " b.",
		Example:     "field('A') " + op + " 10",
		Arity:       Exactly(2),
		Args:        []ArgSpec{rawArg},
		Type: func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
			a, b := argType(call, 0), argType(call, 1)
			if !types.LimitComparable(a, b) {
				return types.Errorf("argument number 2 given to operator %s was of type %s but there are no possible ways to compare it to a %s. A %s can only be compared to %s",
					op, b, a, a.Kind(), types.KindNames(types.LimitComparableTypes(a.Kind()))), nil
			}
			return types.Boolean{}, nil
		},
		SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
			return sqlexpr.Coalesce(sqlexpr.Binary(sqlOps[op], args[0], args[1]), sqlexpr.Bool(false)), nil
		},
		Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
			c, ok := compareValues(args[0], args[1])
			if !ok {
				return false, nil
			}
			switch op {
			case ">":
				return c > 0, nil
			case ">=":
				return c >= 0, nil
			case "<":
				return c < 0, nil
			}
			return c <= 0, nil
		},
	}
}

// typeEquality compares values of different types through their text.
func typeEquality(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
	a, b := argType(call, 0), argType(call, 1)
	if types.Comparable(a, b) {
		return types.Boolean{}, nil
	}
	return nil, &ast.FunctionCall{
		Name:     call.Name,
		Operator: call.Operator,
		Args:     []ast.Node{ast.Call("totext", call.Args[0]), ast.Call("totext", call.Args[1])},
	}
}

func typeIf(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
	a, b := argType(call, 1), argType(call, 2)
	nullable := types.AnyNullable(a, b)
	switch {
	case a.Kind().IsTextual() && b.Kind().IsTextual():
		if a.Kind() == types.KindChar && b.Kind() == types.KindChar {
			return types.Char{Null: nullable}, nil
		}
		return types.Text{Null: nullable}, nil
	case a.Kind() != b.Kind():
		return nil, ast.Call("if", call.Args[0], ast.Call("totext", call.Args[1]), ast.Call("totext", call.Args[2]))
	case a.Kind() == types.KindNumber:
		n := types.CalculateNumberType([]types.FormulaType{a, b}, 0)
		n.Null = nullable
		return n, nil
	}
	return types.WithNullable(a, nullable), nil
}

func blankSQL(t types.FormulaType, x sqlexpr.Expr) sqlexpr.Expr {
	switch t.Kind() {
	case types.KindText, types.KindChar:
		return sqlexpr.Binary(opcode.EQ, sqlexpr.Coalesce(sqlexpr.Func("trim", x), sqlexpr.String("")), sqlexpr.String(""))
	case types.KindBoolean:
		return sqlexpr.Not(x)
	case types.KindMultipleSelect, types.KindMultipleCollaborators, types.KindArray:
		return sqlexpr.Binary(opcode.EQ, sqlexpr.Coalesce(sqlexpr.Func("json_length", x), sqlexpr.Int(0)), sqlexpr.Int(0))
	case types.KindLink:
		return sqlexpr.Binary(opcode.EQ, sqlexpr.Coalesce(jsonString(x, "$.url"), sqlexpr.String("")), sqlexpr.String(""))
	}
	return sqlexpr.IsNull(x, false)
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case bool:
		return !x
	case []value.SelectOption:
		return len(x) == 0
	case []value.Collaborator:
		return len(x) == 0
	case value.Array:
		return len(x) == 0
	case value.Link:
		return x.URL == ""
	}
	return false
}

// valuesEqual treats two NULLs as equal, matching the SQL null safe operator.
// NaN is NULL in storage, so it is equal to NULL and to itself.
func valuesEqual(a, b any) bool {
	a, b = nanToNil(a), nanToNil(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	switch x := a.(type) {
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case value.SelectOption:
		y, ok := b.(value.SelectOption)
		return ok && x.ID == y.ID
	}
	return value.Text(a, nil) == value.Text(b, nil)
}

func nanToNil(v any) any {
	if d, ok := v.(*apd.Decimal); ok && (d == nil || value.IsNaN(d)) {
		return nil
	}
	return v
}

// compareValues orders two non NULL values of the same kind.
func compareValues(a, b any) (int, bool) {
	switch x := a.(type) {
	case *apd.Decimal:
		y, ok := b.(*apd.Decimal)
		if !ok || x == nil || y == nil || value.IsNaN(x) || value.IsNaN(y) {
			return 0, false
		}
		return x.Cmp(y), true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case time.Duration:
		y, ok := b.(time.Duration)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
