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

// Numeric errors have no NaN in a DECIMAL column, so SQL hooks emit NULL
// where the evaluator produces NaN.

func numberFunctions() []*Definition {
	ctx := value.DecimalContext
	return []*Definition{
		{
			Name: "add", Category: CategoryNumber,
			Description: "Adds numbers, joins text or adds an interval to a date. Written as a + b.",
			Example:     "field('Price') + 1",
			Arity:       Exactly(2),
			Args:        []ArgSpec{rawArg},
			Type:        typeAdd,
			SQL:         sqlAdd,
			Eval:        evalAdd,
		},
		{
			Name: "minus", Category: CategoryNumber,
			Description: "Subtracts numbers, dates or intervals. Written as a - b.",
			Example:     "field('End') - field('Start')",
			Arity:       Exactly(2),
			Args:        []ArgSpec{rawArg},
			Type:        typeMinus,
			SQL:         sqlMinus,
			Eval:        evalMinus,
		},
		{
			Name: "multiply", Category: CategoryNumber,
			Description: "Multiplies two numbers. Written as a * b.",
			Example:     "field('Price') * 1.5",
			Arity:       Exactly(2),
			Args:        []ArgSpec{numberArg},
			Type:        unifyNumbers(0),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Binary(opcode.Mul, args[0], args[1]), nil
			},
			Eval: decimalFn(func(n []*apd.Decimal) *apd.Decimal {
				return apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Mul(d, n[0], n[1]) })
			}),
		},
		{
			Name: "divide", Category: CategoryNumber,
			Description: "Divides the first number by the second. Division by zero gives NaN.",
			Example:     "field('Total') / field('Count')",
			Arity:       Exactly(2),
			Args:        []ArgSpec{numberArg},
			Type:        fullPrecision(true),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				quotient := sqlexpr.Binary(opcode.Div, sqlexpr.CastDecimal(args[0], 30), args[1])
				return zeroGuard(args[1], quotient), nil
			},
			Eval: decimalFn(func(n []*apd.Decimal) *apd.Decimal {
				if n[1].IsZero() {
					return value.NaN()
				}
				return apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Quo(d, n[0], n[1]) })
			}),
		},
		{
			Name: "tonumber", Category: CategoryNumber,
			Description: "Converts text to a number, giving an empty value when the text is not a number.",
			Example:     "tonumber('12.5')",
			Arity:       Exactly(1),
			Args:        []ArgSpec{textArg},
			Type:        returns(types.Number{DecimalPlaces: types.NumberMaxDecimalPlaces, Negative: true, Null: true}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				trimmed := sqlexpr.Func("trim", args[0])
				isNumber := sqlexpr.Func("regexp_like", trimmed, sqlexpr.String(`^-?([0-9]+(\.[0-9]*)?|\.[0-9]+)$`))
				return sqlexpr.If(isNumber, sqlexpr.CastDecimal(trimmed, types.NumberMaxDecimalPlaces), sqlexpr.Null()), nil
			},
			Eval: textFn(func(a []string) any {
				d, err := value.NewDecimal(strings.TrimSpace(a[0]))
				if err != nil || value.IsNaN(d) {
					return nil
				}
				return d
			}),
		},
		{
			Name: "abs", Category: CategoryNumber,
			Description: "Returns the absolute value.",
			Example:     "abs(-1)",
			Arity:       Exactly(1),
			Args:        []ArgSpec{numberArg},
			Type: func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
				n := argType(call, 0).(types.Number)
				n.Negative = false
				return n, nil
			},
			SQL: sqlCall("abs"),
			Eval: decimalFn(func(n []*apd.Decimal) *apd.Decimal {
				return apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Abs(d, n[0]) })
			}),
		},
		{
			Name: "ceil", Category: CategoryNumber,
			Description: "Rounds up to the nearest whole number.",
			Example:     "ceil(1.2)",
			Arity:       Exactly(1),
			Args:        []ArgSpec{numberArg},
			Type:        wholeNumber,
			SQL:         sqlCall("ceil"),
			Eval: decimalFn(func(n []*apd.Decimal) *apd.Decimal {
				return apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Ceil(d, n[0]) })
			}),
		},
		{
			Name: "floor", Category: CategoryNumber,
			Description: "Rounds down to the nearest whole number.",
			Example:     "floor(1.8)",
			Arity:       Exactly(1),
			Args:        []ArgSpec{numberArg},
			Type:        wholeNumber,
			SQL:         sqlCall("floor"),
			Eval: decimalFn(func(n []*apd.Decimal) *apd.Decimal {
				return apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Floor(d, n[0]) })
			}),
		},
		{
			Name: "sign", Category: CategoryNumber,
			Description: "Returns -1, 0 or 1 depending on the sign of the number.",
			Example:     "sign(-3)",
			Arity:       Exactly(1),
			Args:        []ArgSpec{numberArg},
			Type:        wholeNumber,
			SQL:         sqlCall("sign"),
			Eval:        decimalFn(func(n []*apd.Decimal) *apd.Decimal { return value.FromInt(int64(n[0].Sign())) }),
		},
		{
			Name: "sqrt", Category: CategoryNumber,
			Description: "Returns the square root. Negative numbers give NaN.",
			Example:     "sqrt(16)",
			Arity:       Exactly(1),
			Args:        []ArgSpec{numberArg},
			Type:        fullPrecision(true),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.If(sqlexpr.Binary(opcode.LT, args[0], sqlexpr.Int(0)), sqlexpr.Null(),
					maxScale(sqlexpr.Func("sqrt", args[0]))), nil
			},
			Eval: decimalFn(func(n []*apd.Decimal) *apd.Decimal {
				if n[0].Negative && !n[0].IsZero() {
					return value.NaN()
				}
				return apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Sqrt(d, n[0]) })
			}),
		},
		{
			Name: "exp", Category: CategoryNumber,
			Description: "Returns e raised to the power of the number.",
			Example:     "exp(1)",
			Arity:       Exactly(1),
			Args:        []ArgSpec{numberArg},
			Type:        fullPrecision(true),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				// EXP overflows a DOUBLE past 709 and raises an error in strict mode.
				return sqlexpr.If(sqlexpr.Binary(opcode.GT, args[0], sqlexpr.Int(709)), sqlexpr.Null(),
					maxScale(sqlexpr.Func("exp", args[0]))), nil
			},
			Eval: decimalFn(func(n []*apd.Decimal) *apd.Decimal {
				return apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Exp(d, n[0]) })
			}),
		},
		{
			Name: "ln", Category: CategoryNumber,
			Description: "Returns the natural logarithm. Zero and negative numbers give NaN.",
			Example:     "ln(10)",
			Arity:       Exactly(1),
			Args:        []ArgSpec{numberArg},
			Type:        fullPrecision(true),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.If(sqlexpr.Binary(opcode.LE, args[0], sqlexpr.Int(0)), sqlexpr.Null(),
					maxScale(sqlexpr.Func("ln", args[0]))), nil
			},
			Eval: decimalFn(func(n []*apd.Decimal) *apd.Decimal {
				if n[0].Sign() <= 0 {
					return value.NaN()
				}
				return apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Ln(d, n[0]) })
			}),
		},
		{
			Name: "log", Category: CategoryNumber,
			Description: "Returns the logarithm of the first number in the base of the second.",
			Example:     "log(100, 10)",
			Arity:       Exactly(2),
			Args:        []ArgSpec{numberArg},
			Type:        fullPrecision(true),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Case([]sqlexpr.When{
					{Cond: sqlexpr.Binary(opcode.LE, args[0], sqlexpr.Int(0)), Result: sqlexpr.Null()},
					{Cond: sqlexpr.Binary(opcode.LE, args[1], sqlexpr.Int(0)), Result: sqlexpr.Null()},
					{Cond: sqlexpr.Binary(opcode.EQ, args[1], sqlexpr.Int(1)), Result: sqlexpr.Null()},
				}, maxScale(sqlexpr.Func("log", args[1], args[0]))), nil
			},
			Eval: decimalFn(func(n []*apd.Decimal) *apd.Decimal {
				if n[0].Sign() <= 0 || n[1].Sign() <= 0 {
					return value.NaN()
				}
				num := apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Ln(d, n[0]) })
				base := apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Ln(d, n[1]) })
				if value.IsNaN(num) || value.IsNaN(base) || base.IsZero() {
					return value.NaN()
				}
				return apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Quo(d, num, base) })
			}),
		},
		{
			Name: "power", Category: CategoryNumber,
			Description: "Raises the first number to the power of the second.",
			Example:     "power(2, 8)",
			Arity:       Exactly(2),
			Args:        []ArgSpec{numberArg},
			Type:        fullPrecision(true),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return maxScale(sqlexpr.Func("pow", args[0], args[1])), nil
			},
			Eval: decimalFn(func(n []*apd.Decimal) *apd.Decimal {
				return apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Pow(d, n[0], n[1]) })
			}),
		},
		{
			Name: "mod", Category: CategoryNumber,
			Description: "Returns the remainder of dividing the first number by the second.",
			Example:     "mod(10, 3)",
			Arity:       Exactly(2),
			Args:        []ArgSpec{numberArg},
			Type: func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
				n := types.CalculateNumberType(argTypes(call), 0)
				n.Null = true
				return n, nil
			},
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return zeroGuard(args[1], sqlexpr.Func("mod", args[0], args[1])), nil
			},
			Eval: decimalFn(func(n []*apd.Decimal) *apd.Decimal {
				if n[1].IsZero() {
					return value.NaN()
				}
				return apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Rem(d, n[0], n[1]) })
			}),
		},
		{
			Name: "round", Category: CategoryNumber,
			Description: "Rounds the number half up to the given number of decimal places.",
			Example:     "round(1.2345, 2)",
			Arity:       Exactly(2),
			Args:        []ArgSpec{numberArg},
			Type:        typeRounding(1),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Func("round", args[0], sqlexpr.CastSigned(args[1])), nil
			},
			Eval: evalRounding(value.Quantize),
		},
		{
			Name: "trunc", Category: CategoryNumber,
			Description: "Cuts the number down to the given number of decimal places, 0 by default.",
			Example:     "trunc(1.99)",
			Arity:       Between(1, 2),
			Args:        []ArgSpec{numberArg},
			Type:        typeRounding(1),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				places := sqlexpr.Int(0)
				if len(args) > 1 {
					places = sqlexpr.CastSigned(args[1])
				}
				return sqlexpr.Func("truncate", args[0], places), nil
			},
			Eval: evalRounding(value.Truncate),
		},
		{
			Name: "int", Category: CategoryNumber,
			Description: "Cuts the decimal part of the number off.",
			Example:     "int(1.99)",
			Arity:       Exactly(1),
			Args:        []ArgSpec{numberArg},
			Wrapper:     true,
			Type: func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
				return nil, ast.Call("trunc", call.Args[0])
			},
		},
		{
			Name: "even", Category: CategoryNumber,
			Description: "True when the number is even.",
			Example:     "even(4)",
			Arity:       Exactly(1),
			Args:        []ArgSpec{numberArg},
			Type:        returns(types.Boolean{}),
			SQL:         sqlParity(0),
			Eval:        evalParity(0),
		},
		{
			Name: "odd", Category: CategoryNumber,
			Description: "True when the number is odd.",
			Example:     "odd(3)",
			Arity:       Exactly(1),
			Args:        []ArgSpec{numberArg},
			Type:        returns(types.Boolean{}),
			SQL:         sqlParity(1),
			Eval:        evalParity(1),
		},
		{
			Name: "is_nan", Category: CategoryNumber,
			Description: "True when the number is NaN, the result of an invalid calculation, or empty.",
			Example:     "is_nan(field('A') / 0)",
			Arity:       Exactly(1),
			Args:        []ArgSpec{numberArg},
			Type:        returns(types.Boolean{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.IsNull(args[0], false), nil
			},
			// NaN is stored as NULL, so NULL counts as NaN on both sides.
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				d, ok := decimalOf(args[0])
				return !ok || value.IsNaN(d), nil
			},
		},
		{
			Name: "when_nan", Category: CategoryNumber,
			Description: "Returns the second number when the first is NaN or empty.",
			Example:     "when_nan(field('A') / 0, 0)",
			Arity:       Exactly(2),
			Args:        []ArgSpec{numberArg},
			Type: func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
				n := types.CalculateNumberType(argTypes(call), 0)
				n.Null = argType(call, 1).Nullable()
				return n, nil
			},
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Coalesce(args[0], args[1]), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				if d, ok := decimalOf(args[0]); !ok || value.IsNaN(d) {
					return args[1], nil
				}
				return args[0], nil
			},
		},
		{
			Name: "greatest", Category: CategoryNumber,
			Description: "Returns the largest of the numbers.",
			Example:     "greatest(1, field('A'))",
			Arity:       AtLeast(2),
			Args:        []ArgSpec{numberArg},
			Type:        unifyNumbers(0),
			SQL:         sqlCall("greatest"),
			Eval:        evalExtreme(1),
		},
		{
			Name: "least", Category: CategoryNumber,
			Description: "Returns the smallest of the numbers.",
			Example:     "least(1, field('A'))",
			Arity:       AtLeast(2),
			Args:        []ArgSpec{numberArg},
			Type:        unifyNumbers(0),
			SQL:         sqlCall("least"),
			Eval:        evalExtreme(-1),
		},
	}
}

func unifyNumbers(minDecimalPlaces int) TypeFunc {
	return func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
		return types.CalculateNumberType(argTypes(call), minDecimalPlaces), nil
	}
}

func fullPrecision(nullable bool) TypeFunc {
	return returns(types.Number{DecimalPlaces: types.NumberMaxDecimalPlaces, Negative: true, Null: nullable})
}

func wholeNumber(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
	return types.Number{Negative: true, Null: anyArgNullable(call)}, nil
}

// typeRounding gives round and trunc the literal number of places, clamped to
// the supported range. A computed places argument falls back to the maximum.
func typeRounding(placesArg int) TypeFunc {
	return func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
		dp := 0
		if len(call.Args) > placesArg {
			if n, ok := literalInt(call, placesArg); ok {
				dp = min(max(n, 0), types.NumberMaxDecimalPlaces)
			} else {
				dp = types.NumberMaxDecimalPlaces
			}
		}
		return types.Number{DecimalPlaces: dp, Negative: true, Null: anyArgNullable(call)}, nil
	}
}

func evalRounding(round func(*apd.Decimal, int) *apd.Decimal) EvalFunc {
	return decimalFn(func(n []*apd.Decimal) *apd.Decimal {
		places := int64(0)
		if len(n) > 1 {
			p, err := value.Truncate(n[1], 0).Int64()
			if err != nil {
				return value.NaN()
			}
			places = p
		}
		return round(n[0], int(places))
	})
}

func sqlParity(remainder int64) SQLFunc {
	return func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
		mod := sqlexpr.Func("abs", sqlexpr.Func("mod", sqlexpr.Func("truncate", args[0], sqlexpr.Int(0)), sqlexpr.Int(2)))
		return sqlexpr.Coalesce(sqlexpr.Binary(opcode.EQ, mod, sqlexpr.Int(remainder)), sqlexpr.Bool(false)), nil
	}
}

func evalParity(remainder int64) EvalFunc {
	return func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
		d, ok := decimalOf(args[0])
		if !ok || value.IsNaN(d) {
			return false, nil
		}
		whole := value.Truncate(d, 0)
		rem := apply(func(r *apd.Decimal) (apd.Condition, error) { return value.DecimalContext.Rem(r, whole, apd.New(2, 0)) })
		if value.IsNaN(rem) {
			return false, nil
		}
		rem.Negative = false
		return rem.Cmp(apd.New(remainder, 0)) == 0, nil
	}
}

func evalExtreme(direction int) EvalFunc {
	return decimalFn(func(n []*apd.Decimal) *apd.Decimal {
		best := n[0]
		for _, d := range n[1:] {
			if d.Cmp(best) == direction {
				best = d
			}
		}
		return best
	})
}

// zeroGuard returns NULL instead of expr when divisor is zero.
func zeroGuard(divisor, expr sqlexpr.Expr) sqlexpr.Expr {
	return sqlexpr.If(sqlexpr.Binary(opcode.EQ, divisor, sqlexpr.Int(0)), sqlexpr.Null(), expr)
}

// maxScale brings a DOUBLE result back to an exact decimal.
func maxScale(e sqlexpr.Expr) sqlexpr.Expr {
	return sqlexpr.CastDecimal(e, 30)
}

func typeAdd(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
	a, b := argType(call, 0), argType(call, 1)
	if !types.Addable(a, b) {
		return types.Errorf("argument number 2 given to operator + was of type %s but there are no possible ways to add it to a %s. A %s can only be added to %s",
			b, a, a.Kind(), types.KindNames(types.AddableTypes(a.Kind()))), nil
	}
	nullable := types.AnyNullable(a, b)
	switch {
	case a.Kind() == types.KindNumber:
		return types.CalculateNumberType([]types.FormulaType{a, b}, 0), nil
	case a.Kind().IsTextual():
		return nil, ast.Call("concat", call.Args[0], call.Args[1])
	case a.Kind() == types.KindDate:
		return types.WithNullable(a, nullable), nil
	case b.Kind() == types.KindDate:
		return types.WithNullable(b, nullable), nil
	}
	return types.DateInterval{Null: nullable}, nil
}

func sqlAdd(_ SQLContext, call *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
	a, b := argType(call, 0).Kind(), argType(call, 1).Kind()
	switch {
	case a == types.KindDate:
		return sqlexpr.AddSeconds(args[0], args[1]), nil
	case b == types.KindDate:
		return sqlexpr.AddSeconds(args[1], args[0]), nil
	}
	return sqlexpr.Binary(opcode.Plus, args[0], args[1]), nil
}

func evalAdd(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
	if anyNil(args) {
		return nil, nil
	}
	switch a := args[0].(type) {
	case time.Time:
		return a.Add(args[1].(time.Duration)), nil
	case time.Duration:
		switch b := args[1].(type) {
		case time.Time:
			return b.Add(a), nil
		case time.Duration:
			return a + b, nil
		}
	}
	return decimalFn(func(n []*apd.Decimal) *apd.Decimal {
		return apply(func(d *apd.Decimal) (apd.Condition, error) { return value.DecimalContext.Add(d, n[0], n[1]) })
	})(nil, nil, args)
}

func typeMinus(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
	a, b := argType(call, 0), argType(call, 1)
	if !types.Subtractable(a, b) {
		return types.Errorf("argument number 2 given to operator - was of type %s but there are no possible ways to subtract it from a %s. A %s can only have %s subtracted from it",
			b, a, a.Kind(), types.KindNames(types.SubtractableTypes(a.Kind()))), nil
	}
	nullable := types.AnyNullable(a, b)
	switch {
	case a.Kind() == types.KindNumber:
		return types.CalculateNumberType([]types.FormulaType{a, b}, 0), nil
	case a.Kind() == types.KindDate && b.Kind() == types.KindDate:
		return types.DateInterval{Null: nullable}, nil
	case a.Kind() == types.KindDate:
		return types.WithNullable(a, nullable), nil
	}
	return types.DateInterval{Null: nullable}, nil
}

func sqlMinus(_ SQLContext, call *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
	a, b := argType(call, 0).Kind(), argType(call, 1).Kind()
	switch {
	case a == types.KindDate && b == types.KindDate:
		return sqlexpr.DiffSeconds(args[1], args[0]), nil
	case a == types.KindDate:
		return sqlexpr.AddSeconds(args[0], sqlexpr.Neg(args[1])), nil
	}
	return sqlexpr.Binary(opcode.Minus, args[0], args[1]), nil
}

func evalMinus(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
	if anyNil(args) {
		return nil, nil
	}
	switch a := args[0].(type) {
	case time.Time:
		switch b := args[1].(type) {
		case time.Time:
			return a.Sub(b).Truncate(time.Second), nil
		case time.Duration:
			return a.Add(-b), nil
		}
	case time.Duration:
		if b, ok := args[1].(time.Duration); ok {
			return a - b, nil
		}
	}
	return decimalFn(func(n []*apd.Decimal) *apd.Decimal {
		return apply(func(d *apd.Decimal) (apd.Condition, error) { return value.DecimalContext.Sub(d, n[0], n[1]) })
	})(nil, nil, args)
}
