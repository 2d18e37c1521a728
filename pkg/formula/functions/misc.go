package functions

import (
	"github.com/pingcap/tidb/pkg/parser/opcode"

	"github.com/gridbase/backend/pkg/constants"
	"github.com/gridbase/backend/pkg/formula/ast"
	"github.com/gridbase/backend/pkg/formula/sqlexpr"
	"github.com/gridbase/backend/pkg/formula/types"
	"github.com/gridbase/backend/pkg/formula/value"
)

func miscFunctions() []*Definition {
	return []*Definition{
		{
			Name: "has_option", Category: CategorySelect,
			Description: "True when the multiple select value contains an option with the given text.",
			Example:     "has_option(field('Tags'), 'urgent')",
			Arity:       Exactly(2),
			Args:        []ArgSpec{multiSelect, literalText},
			Type:        returns(types.Boolean{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				o := "o"
				return sqlexpr.Exists(sqlexpr.Select(
					sqlexpr.Int(1),
					sqlexpr.Table(constants.TableSelectOption, o),
					sqlexpr.And(
						jsonContainsID(args[0], sqlexpr.Column(o, constants.ColumnID)),
						sqlexpr.Binary(opcode.EQ, sqlexpr.Column(o, "value"), args[1]),
					),
				)), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				options, _ := args[0].([]value.SelectOption)
				want := textOf(args[1])
				for _, o := range options {
					if o.Value == want {
						return true, nil
					}
				}
				return false, nil
			},
		},
		{
			Name: "get_single_select_value", Category: CategorySelect,
			Description: "Returns the text of a single select option.",
			Example:     "get_single_select_value(field('Status'))",
			Arity:       Exactly(1),
			Args:        []ArgSpec{singleSelect},
			Type:        returnsNullable(types.Text{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return selectOptionValue(args[0]), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				if o, ok := args[0].(value.SelectOption); ok {
					return o.Value, nil
				}
				return nil, nil
			},
		},
		{
			Name: "link", Category: CategoryLink,
			Description: "Creates a clickable link.",
			Example:     "link('https://example.com')",
			Arity:       Exactly(1),
			Args:        []ArgSpec{textArg},
			Type:        returnsNullable(types.Link{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return nullIfNull(args[0], sqlexpr.Func("json_object", sqlexpr.String("url"), args[0])), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				if args[0] == nil {
					return nil, nil
				}
				return value.Link{URL: textOf(args[0])}, nil
			},
		},
		{
			Name: "button", Category: CategoryLink,
			Description: "Creates a button that opens the link.",
			Example:     "button('https://example.com', 'Open')",
			Arity:       Exactly(2),
			Args:        []ArgSpec{textArg},
			Type: func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
				return types.Link{Button: true, Null: argType(call, 0).Nullable()}, nil
			},
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				obj := sqlexpr.Func("json_object",
					sqlexpr.String("url"), args[0],
					sqlexpr.String("label"), sqlexpr.Coalesce(args[1], sqlexpr.String("")))
				return nullIfNull(args[0], obj), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				if args[0] == nil {
					return nil, nil
				}
				return value.Link{URL: textOf(args[0]), Label: textOf(args[1])}, nil
			},
		},
		{
			Name: "get_link_url", Category: CategoryLink,
			Description: "Returns the URL of a link or button.",
			Example:     "get_link_url(field('Website'))",
			Arity:       Exactly(1),
			Args:        []ArgSpec{linkArg},
			Type:        returnsNullable(types.Text{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return jsonString(args[0], "$.url"), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				if l, ok := args[0].(value.Link); ok {
					return l.URL, nil
				}
				return nil, nil
			},
		},
		{
			Name: "get_link_label", Category: CategoryLink,
			Description: "Returns the label of a button.",
			Example:     "get_link_label(field('Action'))",
			Arity:       Exactly(1),
			Args:        []ArgSpec{linkArg},
			Type:        returnsNullable(types.Text{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return jsonString(args[0], "$.label"), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				if l, ok := args[0].(value.Link); ok {
					return l.Label, nil
				}
				return nil, nil
			},
		},
		{
			Name: "row_id", Category: CategoryNumber,
			Description: "The unique id of the row.",
			Example:     "row_id()",
			Arity:       Exactly(0),
			Type:        returns(types.Number{}),
			SQL: func(ctx SQLContext, _ *ast.FunctionCall, _ []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return ctx.RowID(), nil
			},
			Eval: func(ctx *EvalContext, _ *ast.FunctionCall, _ []any) (any, error) {
				return value.FromInt(ctx.RowID), nil
			},
		},
		reference("field", "Reads a field of the same row by name.", "field('Price')", Exactly(1)),
		reference("field_by_id", "Reads a field of the same row by id.", "field_by_id(12)", Exactly(1)),
		reference("lookup", "Reads a field of every row linked through a link field.", "lookup('Orders', 'Amount')", Exactly(2)),
	}
}

// reference lists the reference syntax. The parser turns these calls into
// reference nodes, so a call reaching the checker has the wrong arguments.
func reference(name, description, example string, arity Arity) *Definition {
	return &Definition{
		Name: name, Category: CategoryReference,
		Description: description,
		Example:     example,
		Arity:       arity,
		Type: func(*ast.FunctionCall) (types.FormulaType, ast.Node) {
			return types.Errorf("%s must be given literal arguments, for example %s", name, example), nil
		},
	}
}

func nullIfNull(check, expr sqlexpr.Expr) sqlexpr.Expr {
	return sqlexpr.If(sqlexpr.IsNull(check, false), sqlexpr.Null(), expr)
}
