package functions

import (
	"strings"

	"github.com/cockroachdb/apd/v3"
	tidbast "github.com/pingcap/tidb/pkg/parser/ast"

	"github.com/gridbase/backend/pkg/formula/ast"
	"github.com/gridbase/backend/pkg/formula/sqlexpr"
	"github.com/gridbase/backend/pkg/formula/types"
	"github.com/gridbase/backend/pkg/formula/value"
)

func aggregateFunctions() []*Definition {
	return []*Definition{
		{
			Name: "sum", Category: CategoryAggregate, Aggregate: true,
			Description: "Sums the numbers of all linked rows.",
			Example:     "sum(lookup('Orders', 'Amount'))",
			Arity:       Exactly(1),
			Args:        []ArgSpec{manyNumber},
			Type: func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
				n := argType(call, 0).(types.Number)
				n.Null = false
				return n, nil
			},
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Coalesce(sqlexpr.Aggregate(tidbast.AggFuncSum, args[0]), sqlexpr.Int(0)), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				total, _ := sumDecimals(numbersOf(args[0]))
				return total, nil
			},
		},
		{
			Name: "avg", Category: CategoryAggregate, Aggregate: true,
			Description: "Averages the numbers of all linked rows.",
			Example:     "avg(lookup('Orders', 'Amount'))",
			Arity:       Exactly(1),
			Args:        []ArgSpec{manyNumber},
			Type:        fullPrecision(true),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Aggregate(tidbast.AggFuncAvg, args[0]), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				nums := numbersOf(args[0])
				if len(nums) == 0 {
					return nil, nil
				}
				return mean(nums), nil
			},
		},
		extremeAggregate("min", tidbast.AggFuncMin, -1),
		extremeAggregate("max", tidbast.AggFuncMax, 1),
		{
			Name: "count", Category: CategoryAggregate, Aggregate: true,
			Description: "Counts the linked rows.",
			Example:     "count(field('Orders'))",
			Arity:       Exactly(1),
			Args:        []ArgSpec{manyAny},
			Type:        returns(types.Number{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, _ []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Aggregate(tidbast.AggFuncCount, sqlexpr.Int(1)), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				return value.FromInt(int64(len(itemsOf(args[0])))), nil
			},
		},
		{
			Name: "join", Category: CategoryAggregate, Aggregate: true,
			Description: "Joins the texts of all linked rows with a separator, in row order.",
			Example:     "join(lookup('Tags', 'Name'), ', ')",
			Arity:       Exactly(2),
			Args:        []ArgSpec{manyText, literalText},
			Type:        returns(types.Text{}),
			SQL: func(ctx SQLContext, call *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				sep, _ := literalString(call, 1)
				order, err := ctx.ItemOrder()
				if err != nil {
					return nil, err
				}
				return sqlexpr.Coalesce(sqlexpr.GroupConcat(args[0], sqlexpr.OrderBy(order...), sep), sqlexpr.String("")), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				var parts []string
				for _, item := range itemsOf(args[0]) {
					if item.Value != nil {
						parts = append(parts, textOf(item.Value))
					}
				}
				return strings.Join(parts, textOf(args[1])), nil
			},
		},
		{
			Name: "array_agg", Category: CategoryArray, Aggregate: true,
			Description: "Collects the values of all linked rows into a list.",
			Example:     "array_agg(lookup('Orders', 'Amount'))",
			Arity:       Exactly(1),
			Args:        []ArgSpec{manyAny},
			Type: func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
				return types.Array{Sub: argType(call, 0)}, nil
			},
			SQL: func(ctx SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				id, err := ctx.ItemID()
				if err != nil {
					return nil, err
				}
				order, err := ctx.ItemOrder()
				if err != nil {
					return nil, err
				}
				item := sqlexpr.Func("json_object", sqlexpr.String("id"), id, sqlexpr.String("value"), args[0])
				list := sqlexpr.Func("concat", sqlexpr.String("["), sqlexpr.GroupConcat(item, sqlexpr.OrderBy(order...), ","), sqlexpr.String("]"))
				return sqlexpr.CastJSON(sqlexpr.Coalesce(list, sqlexpr.String("[]"))), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				items := itemsOf(args[0])
				out := make(value.Array, len(items))
				copy(out, items)
				return out, nil
			},
		},
		statisticAggregate("stddev_pop", "stddev_pop", false, true),
		statisticAggregate("stddev_sample", "stddev_samp", true, true),
		statisticAggregate("variance_pop", "var_pop", false, false),
		statisticAggregate("variance_sample", "var_samp", true, false),
		{
			Name: "any", Category: CategoryAggregate, Aggregate: true,
			Description: "True when the condition holds for at least one linked row.",
			Example:     "any(lookup('Tasks', 'Done'))",
			Arity:       Exactly(1),
			Args:        []ArgSpec{manyBool},
			Type:        returns(types.Boolean{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Coalesce(sqlexpr.Aggregate(tidbast.AggFuncMax, args[0]), sqlexpr.Bool(false)), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				for _, item := range itemsOf(args[0]) {
					if value.ToBool(item.Value) {
						return true, nil
					}
				}
				return false, nil
			},
		},
		{
			Name: "every", Category: CategoryAggregate, Aggregate: true,
			Description: "True when the condition holds for every linked row, or there are none.",
			Example:     "every(lookup('Tasks', 'Done'))",
			Arity:       Exactly(1),
			Args:        []ArgSpec{manyBool},
			Type:        returns(types.Boolean{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Coalesce(sqlexpr.Aggregate(tidbast.AggFuncMin, args[0]), sqlexpr.Bool(true)), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				for _, item := range itemsOf(args[0]) {
					if !value.ToBool(item.Value) {
						return false, nil
					}
				}
				return true, nil
			},
		},
		{
			Name: "filter", Category: CategoryArray, RequiresAggregateWrapper: true,
			Description: "Keeps the linked rows for which the condition is true. The result must be aggregated.",
			Example:     "sum(filter(lookup('Orders', 'Amount'), lookup('Orders', 'Paid')))",
			Arity:       Exactly(2),
			Args:        []ArgSpec{manyAny, boolArg},
			Type:        sameAsArg(0),
			SQL: func(ctx SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				if err := ctx.AddFilter(args[1]); err != nil {
					return nil, err
				}
				return args[0], nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				if !value.ToBool(args[1]) {
					return value.Skip, nil
				}
				return args[0], nil
			},
		},
	}
}

func extremeAggregate(name, sqlName string, direction int) *Definition {
	return &Definition{
		Name: name, Category: CategoryAggregate, Aggregate: true,
		Description: "Returns the " + name + "imum value of all linked rows.",
		Example:     name + "(lookup('Orders', 'Amount'))",
		Arity:       Exactly(1),
		Args:        []ArgSpec{manyOrdered},
		Type: func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
			return types.WithNullable(argType(call, 0), true), nil
		},
		SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
			return sqlexpr.Aggregate(sqlName, args[0]), nil
		},
		Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
			var best any
			for _, item := range itemsOf(args[0]) {
				if nanToNil(item.Value) == nil {
					continue
				}
				if best == nil {
					best = item.Value
					continue
				}
				if c, ok := compareValues(item.Value, best); ok && c == direction {
					best = item.Value
				}
			}
			return best, nil
		},
	}
}

func statisticAggregate(name, sqlName string, sample, sqrt bool) *Definition {
	return &Definition{
		Name: name, Category: CategoryAggregate, Aggregate: true,
		Description: "Computes the " + strings.ReplaceAll(name, "_", " ") + " of the numbers of all linked rows.",
		Example:     name + "(lookup('Orders', 'Amount'))",
		Arity:       Exactly(1),
		Args:        []ArgSpec{manyNumber},
		Type:        fullPrecision(true),
		SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
			return maxScale(sqlexpr.Aggregate(sqlName, args[0])), nil
		},
		Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
			nums := numbersOf(args[0])
			if len(nums) == 0 || (sample && len(nums) < 2) {
				return nil, nil
			}
			v := variance(nums, sample)
			if sqrt {
				return apply(func(d *apd.Decimal) (apd.Condition, error) { return value.DecimalContext.Sqrt(d, v) }), nil
			}
			return v, nil
		},
	}
}

func itemsOf(v any) []value.Item {
	switch x := v.(type) {
	case value.Many:
		return x
	case value.Array:
		return x
	}
	return nil
}

// numbersOf returns the non NULL decimals of a many valued argument, NaN included.
func numbersOf(v any) []*apd.Decimal {
	var out []*apd.Decimal
	for _, item := range itemsOf(v) {
		if d, ok := decimalOf(item.Value); ok {
			out = append(out, d)
		}
	}
	return out
}

func sumDecimals(nums []*apd.Decimal) (*apd.Decimal, bool) {
	total := value.FromInt(0)
	for _, n := range nums {
		if value.IsNaN(n) {
			return value.NaN(), false
		}
		total = apply(func(d *apd.Decimal) (apd.Condition, error) { return value.DecimalContext.Add(d, total, n) })
	}
	return total, true
}

func mean(nums []*apd.Decimal) *apd.Decimal {
	total, ok := sumDecimals(nums)
	if !ok {
		return total
	}
	return value.Trim(apply(func(d *apd.Decimal) (apd.Condition, error) {
		return value.DecimalContext.Quo(d, total, value.FromInt(int64(len(nums))))
	}))
}

func variance(nums []*apd.Decimal, sample bool) *apd.Decimal {
	m := mean(nums)
	if value.IsNaN(m) {
		return m
	}
	ctx := value.DecimalContext
	squares := value.FromInt(0)
	for _, n := range nums {
		diff := apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Sub(d, n, m) })
		sq := apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Mul(d, diff, diff) })
		squares = apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Add(d, squares, sq) })
	}
	count := int64(len(nums))
	if sample {
		count--
	}
	return value.Trim(apply(func(d *apd.Decimal) (apd.Condition, error) { return ctx.Quo(d, squares, value.FromInt(count)) }))
}
