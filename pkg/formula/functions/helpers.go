package functions

import (
	"github.com/cockroachdb/apd/v3"

	"github.com/gridbase/backend/pkg/formula/ast"
	"github.com/gridbase/backend/pkg/formula/sqlexpr"
	"github.com/gridbase/backend/pkg/formula/types"
	"github.com/gridbase/backend/pkg/formula/value"
)

func kinds(ks ...types.Kind) []types.Kind { return ks }

var (
	anyArg       = ArgSpec{}
	rawArg       = ArgSpec{NoCoerce: true}
	textArg      = ArgSpec{Kinds: kinds(types.KindText, types.KindChar)}
	numberArg    = ArgSpec{Kinds: kinds(types.KindNumber)}
	boolArg      = ArgSpec{Kinds: kinds(types.KindBoolean)}
	dateArg      = ArgSpec{Kinds: kinds(types.KindDate)}
	linkArg      = ArgSpec{Kinds: kinds(types.KindLink)}
	literalText  = ArgSpec{Kinds: kinds(types.KindText, types.KindChar), Literal: true}
	manyAny      = ArgSpec{Many: true}
	manyNumber   = ArgSpec{Kinds: kinds(types.KindNumber), Many: true}
	manyText     = ArgSpec{Kinds: kinds(types.KindText, types.KindChar), Many: true}
	manyBool     = ArgSpec{Kinds: kinds(types.KindBoolean), Many: true}
	manyOrdered  = ArgSpec{Kinds: kinds(types.KindNumber, types.KindDate, types.KindText, types.KindChar), Many: true}
	singleSelect = ArgSpec{Kinds: kinds(types.KindSingleSelect)}
	multiSelect  = ArgSpec{Kinds: kinds(types.KindMultipleSelect)}
)

func argType(call *ast.FunctionCall, i int) types.FormulaType {
	return call.Args[i].FormulaType()
}

func argTypes(call *ast.FunctionCall) []types.FormulaType {
	out := make([]types.FormulaType, len(call.Args))
	for i, a := range call.Args {
		out[i] = a.FormulaType()
	}
	return out
}

func anyArgNullable(call *ast.FunctionCall) bool {
	return types.AnyNullable(argTypes(call)...)
}

// returns is a type hook with a fixed result.
func returns(t types.FormulaType) TypeFunc {
	return func(*ast.FunctionCall) (types.FormulaType, ast.Node) { return t, nil }
}

// returnsNullable is returns with nullability following the arguments.
func returnsNullable(t types.FormulaType) TypeFunc {
	return func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
		return types.WithNullable(t, anyArgNullable(call)), nil
	}
}

// sameAsArg returns the type of argument i.
func sameAsArg(i int) TypeFunc {
	return func(call *ast.FunctionCall) (types.FormulaType, ast.Node) { return argType(call, i), nil }
}

// sqlCall maps a formula function onto a SQL function with the same arguments.
func sqlCall(name string) SQLFunc {
	return func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
		return sqlexpr.Func(name, args...), nil
	}
}

// literalString returns the value of a string literal argument.
func literalString(call *ast.FunctionCall, i int) (string, bool) {
	lit, ok := call.Args[i].(*ast.StringLiteral)
	if !ok {
		return "", false
	}
	return lit.Value, true
}

// literalInt returns the value of a whole number literal argument.
func literalInt(call *ast.FunctionCall, i int) (int, bool) {
	lit, ok := call.Args[i].(*ast.NumberLiteral)
	if !ok || lit.DecimalPlaces > 0 {
		return 0, false
	}
	d, err := value.NewDecimal(lit.Text)
	if err != nil {
		return 0, false
	}
	n, err := d.Int64()
	if err != nil {
		return 0, false
	}
	return int(n), true
}

func textOf(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return value.Text(v, nil)
}

func decimalOf(v any) (*apd.Decimal, bool) {
	if v == nil {
		return nil, false
	}
	return value.ToDecimal(v)
}

// anyNil reports whether one of the values is NULL.
func anyNil(args []any) bool {
	for _, a := range args {
		if a == nil {
			return true
		}
	}
	return false
}

// textFn adapts a string function, NULL in gives NULL out.
func textFn(fn func(args []string) any) EvalFunc {
	return func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
		if anyNil(args) {
			return nil, nil
		}
		strs := make([]string, len(args))
		for i, a := range args {
			strs[i] = textOf(a)
		}
		return fn(strs), nil
	}
}

// decimalFn adapts a numeric function, NULL in gives NULL out and NaN in gives NaN out.
func decimalFn(fn func(args []*apd.Decimal) *apd.Decimal) EvalFunc {
	return func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
		if anyNil(args) {
			return nil, nil
		}
		nums := make([]*apd.Decimal, len(args))
		for i, a := range args {
			d, ok := decimalOf(a)
			if !ok {
				return nil, nil
			}
			if value.IsNaN(d) {
				return value.NaN(), nil
			}
			nums[i] = d
		}
		return fn(nums), nil
	}
}

// apply runs an apd context operation, turning failures into NaN.
func apply(op func(d *apd.Decimal) (apd.Condition, error)) *apd.Decimal {
	d := new(apd.Decimal)
	cond, err := op(d)
	if err != nil || cond&(apd.InvalidOperation|apd.DivisionByZero|apd.DivisionUndefined|apd.DivisionImpossible) != 0 {
		return value.NaN()
	}
	return d
}
