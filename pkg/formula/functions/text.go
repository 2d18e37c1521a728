package functions

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pingcap/tidb/pkg/parser/opcode"

	"github.com/gridbase/backend/pkg/constants"
	"github.com/gridbase/backend/pkg/formula/ast"
	"github.com/gridbase/backend/pkg/formula/sqlexpr"
	"github.com/gridbase/backend/pkg/formula/types"
	"github.com/gridbase/backend/pkg/formula/value"
)

func textFunctions() []*Definition {
	return []*Definition{
		{
			Name: "totext", Category: CategoryText,
			Description: "Converts the input to text. Empty values become an empty string.",
			Example:     "totext(10)",
			Arity:       Exactly(1),
			Args:        []ArgSpec{rawArg},
			Type:        typeToText,
			SQL: func(_ SQLContext, call *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return textSQL(argType(call, 0), args[0]), nil
			},
			Eval: func(_ *EvalContext, call *ast.FunctionCall, args []any) (any, error) {
				return value.Text(args[0], argType(call, 0)), nil
			},
		},
		{
			Name: "t", Category: CategoryText,
			Description: "Returns the input if it is text, otherwise an empty string.",
			Example:     "t(field('Name'))",
			Arity:       Exactly(1),
			Args:        []ArgSpec{rawArg},
			Type:        returns(types.Text{}),
			SQL: func(_ SQLContext, call *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				if argType(call, 0).Kind().IsTextual() {
					return sqlexpr.Coalesce(args[0], sqlexpr.String("")), nil
				}
				return sqlexpr.String(""), nil
			},
			Eval: func(_ *EvalContext, call *ast.FunctionCall, args []any) (any, error) {
				if s, ok := args[0].(string); ok && argType(call, 0).Kind().IsTextual() {
					return s, nil
				}
				return "", nil
			},
		},
		{
			Name: "concat", Category: CategoryText,
			Description: "Joins the inputs together. Empty values are treated as empty text.",
			Example:     "concat('A', field('Name'))",
			Arity:       AtLeast(1),
			Args:        []ArgSpec{textArg},
			Type:        returns(types.Text{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				parts := make([]sqlexpr.Expr, len(args))
				for i, a := range args {
					parts[i] = sqlexpr.Coalesce(a, sqlexpr.String(""))
				}
				return sqlexpr.Func("concat", parts...), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				var sb strings.Builder
				for _, a := range args {
					sb.WriteString(textOf(a))
				}
				return sb.String(), nil
			},
		},
		{
			Name: "upper", Category: CategoryText,
			Description: "Returns the input in upper case.",
			Example:     "upper('a')",
			Arity:       Exactly(1),
			Args:        []ArgSpec{textArg},
			Type:        sameAsArg(0),
			SQL:         sqlCall("upper"),
			Eval:        textFn(func(a []string) any { return strings.ToUpper(a[0]) }),
		},
		{
			Name: "lower", Category: CategoryText,
			Description: "Returns the input in lower case.",
			Example:     "lower('A')",
			Arity:       Exactly(1),
			Args:        []ArgSpec{textArg},
			Type:        sameAsArg(0),
			SQL:         sqlCall("lower"),
			Eval:        textFn(func(a []string) any { return strings.ToLower(a[0]) }),
		},
		{
			Name: "trim", Category: CategoryText,
			Description: "Removes leading and trailing whitespace.",
			Example:     "trim('  a ')",
			Arity:       Exactly(1),
			Args:        []ArgSpec{textArg},
			Type:        sameAsArg(0),
			SQL:         sqlCall("trim"),
			Eval:        textFn(func(a []string) any { return strings.Trim(a[0], " ") }),
		},
		{
			Name: "reverse", Category: CategoryText,
			Description: "Reverses the characters of the input.",
			Example:     "reverse('abc')",
			Arity:       Exactly(1),
			Args:        []ArgSpec{textArg},
			Type:        sameAsArg(0),
			SQL:         sqlCall("reverse"),
			Eval: textFn(func(a []string) any {
				runes := []rune(a[0])
				for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
					runes[i], runes[j] = runes[j], runes[i]
				}
				return string(runes)
			}),
		},
		{
			Name: "length", Category: CategoryText,
			Description: "Returns the number of characters in the input.",
			Example:     "length('abc')",
			Arity:       Exactly(1),
			Args:        []ArgSpec{textArg},
			Type:        returnsNullable(types.Number{}),
			SQL:         sqlCall("char_length"),
			Eval: textFn(func(a []string) any {
				return value.FromInt(int64(utf8.RuneCountInString(a[0])))
			}),
		},
		{
			Name: "replace", Category: CategoryText,
			Description: "Replaces every occurrence of the second input in the first with the third.",
			Example:     "replace('a-b', '-', '+')",
			Arity:       Exactly(3),
			Args:        []ArgSpec{textArg},
			Type:        returnsNullable(types.Text{}),
			SQL:         sqlCall("replace"),
			Eval: textFn(func(a []string) any {
				if a[1] == "" {
					return a[0]
				}
				return strings.ReplaceAll(a[0], a[1], a[2])
			}),
		},
		{
			Name: "search", Category: CategoryText,
			Description: "Returns the 1 based position of the second input in the first, 0 when missing.",
			Example:     "search('hello', 'l')",
			Arity:       Exactly(2),
			Args:        []ArgSpec{textArg},
			Type:        returnsNullable(types.Number{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Func("locate", args[1], args[0]), nil
			},
			Eval: textFn(func(a []string) any { return value.FromInt(int64(runeIndex(a[0], a[1]))) }),
		},
		{
			Name: "contains", Category: CategoryText,
			Description: "True when the second input appears in the first.",
			Example:     "contains('hello', 'ell')",
			Arity:       Exactly(2),
			Args:        []ArgSpec{textArg},
			Type:        returns(types.Boolean{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				locate := sqlexpr.Func("locate",
					sqlexpr.Coalesce(args[1], sqlexpr.String("")),
					sqlexpr.Coalesce(args[0], sqlexpr.String("")))
				return sqlexpr.Binary(opcode.GT, locate, sqlexpr.Int(0)), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				return strings.Contains(textOf(args[0]), textOf(args[1])), nil
			},
		},
		{
			Name: "left", Category: CategoryText,
			Description: "Returns the first n characters.",
			Example:     "left('abcd', 2)",
			Arity:       Exactly(2),
			Args:        []ArgSpec{textArg, numberArg},
			Type:        returnsNullable(types.Text{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Func("left", args[0], sqlexpr.CastSigned(args[1])), nil
			},
			Eval: evalLeftRight(true),
		},
		{
			Name: "right", Category: CategoryText,
			Description: "Returns the last n characters.",
			Example:     "right('abcd', 2)",
			Arity:       Exactly(2),
			Args:        []ArgSpec{textArg, numberArg},
			Type:        returnsNullable(types.Text{}),
			SQL: func(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Func("right", args[0], sqlexpr.CastSigned(args[1])), nil
			},
			Eval: evalLeftRight(false),
		},
		{
			Name: "regex_replace", Category: CategoryText,
			Description: "Replaces matches of a regular expression.",
			Example:     "regex_replace('abc', '[ab]', 'x')",
			Arity:       Exactly(3),
			Args:        []ArgSpec{textArg},
			Type:        typeRegexReplace,
			SQL:         sqlCall("regexp_replace"),
			Eval: textFn(func(a []string) any {
				re, err := regexp.Compile(a[1])
				if err != nil {
					return nil
				}
				return re.ReplaceAllString(a[0], a[2])
			}),
		},
		{
			Name: "split_part", Category: CategoryText,
			Description: "Splits the text by a delimiter and returns the nth part, counting from 1.",
			Example:     "split_part('a,b,c', ',', 2)",
			Arity:       Exactly(3),
			Args:        []ArgSpec{textArg, textArg, numberArg},
			Type:        returnsNullable(types.Text{}),
			SQL:         sqlSplitPart,
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				if anyNil(args) {
					return nil, nil
				}
				n, ok := decimalOf(args[2])
				if !ok || value.IsNaN(n) {
					return nil, nil
				}
				idx, err := n.Int64()
				if err != nil {
					return "", nil
				}
				delim := textOf(args[1])
				if delim == "" {
					return "", nil
				}
				parts := strings.Split(textOf(args[0]), delim)
				if idx < 1 || int(idx) > len(parts) {
					return "", nil
				}
				return parts[idx-1], nil
			},
		},
		{
			Name: "when_empty", Category: CategoryText,
			Description: "Returns the second input when the first is empty.",
			Example:     "when_empty(field('Nick'), field('Name'))",
			Arity:       Exactly(2),
			Args:        []ArgSpec{anyArg},
			Wrapper:     true,
			Type: func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
				return nil, ast.Call("if", ast.Call("isblank", call.Args[0]), call.Args[1], call.Args[0])
			},
		},
	}
}

// typeToText rewrites totext(array_agg(x)) into join(totext(x), ', ') so the
// text of an aggregated array is built by the database.
func typeToText(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
	if inner, ok := call.Args[0].(*ast.FunctionCall); ok && inner.Name == "array_agg" {
		return nil, ast.Call("join", ast.Call("totext", inner.Args[0]), &ast.StringLiteral{Value: ", "})
	}
	return types.Text{}, nil
}

// typeRegexReplace rewrites the common whitespace trimming pattern to trim().
func typeRegexReplace(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
	pattern, ok1 := literalString(call, 1)
	replacement, ok2 := literalString(call, 2)
	if ok1 && ok2 && replacement == "" && (pattern == "^ +| +$" || pattern == "^\\s+|\\s+$") {
		return nil, ast.Call("trim", call.Args[0])
	}
	return types.Text{Null: argType(call, 0).Nullable()}, nil
}

func runeIndex(s, sub string) int {
	i := strings.Index(s, sub)
	if i < 0 {
		return 0
	}
	return utf8.RuneCountInString(s[:i]) + 1
}

func evalLeftRight(left bool) EvalFunc {
	return func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
		if anyNil(args) {
			return nil, nil
		}
		n, ok := decimalOf(args[1])
		if !ok || value.IsNaN(n) {
			return nil, nil
		}
		count, err := value.Truncate(n, 0).Int64()
		if err != nil {
			return nil, nil
		}
		runes := []rune(textOf(args[0]))
		if count <= 0 {
			return "", nil
		}
		if int(count) > len(runes) {
			count = int64(len(runes))
		}
		if left {
			return string(runes[:count]), nil
		}
		return string(runes[len(runes)-int(count):]), nil
	}
}

// sqlSplitPart returns an empty string when the index is outside the parts, like the evaluator.
func sqlSplitPart(_ SQLContext, _ *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
	s, delim, idx := args[0], args[1], sqlexpr.CastSigned(args[2])
	parts := sqlexpr.Binary(opcode.Plus,
		sqlexpr.Binary(opcode.IntDiv,
			sqlexpr.Binary(opcode.Minus,
				sqlexpr.Func("char_length", s),
				sqlexpr.Func("char_length", sqlexpr.Func("replace", s, delim, sqlexpr.String("")))),
			sqlexpr.Func("char_length", delim)),
		sqlexpr.Int(1))
	part := sqlexpr.Func("substring_index",
		sqlexpr.Func("substring_index", s, delim, idx),
		delim, sqlexpr.Int(-1))
	return sqlexpr.Case([]sqlexpr.When{
		{Cond: sqlexpr.IsNull(s, false), Result: sqlexpr.Null()},
		{Cond: sqlexpr.Binary(opcode.EQ, delim, sqlexpr.String("")), Result: sqlexpr.String("")},
		{Cond: sqlexpr.Binary(opcode.LT, idx, sqlexpr.Int(1)), Result: sqlexpr.String("")},
		{Cond: sqlexpr.Binary(opcode.GT, idx, parts), Result: sqlexpr.String("")},
	}, part), nil
}

// textSQL converts an expression of type t to text, NULL becoming an empty string.
func textSQL(t types.FormulaType, x sqlexpr.Expr) sqlexpr.Expr {
	empty := sqlexpr.String("")
	switch v := t.(type) {
	case types.Text, types.Char:
		return sqlexpr.Coalesce(x, empty)
	case types.Number:
		return sqlexpr.Coalesce(sqlexpr.CastChar(sqlexpr.CastDecimal(x, v.DecimalPlaces)), empty)
	case types.Boolean:
		return sqlexpr.If(x, sqlexpr.String("true"), sqlexpr.String("false"))
	case types.Date:
		return sqlexpr.Coalesce(sqlexpr.Func("date_format", inTimezone(x, v.ForceTimezone), sqlexpr.String(mysqlDateLayout(v))), empty)
	case types.DateInterval:
		return sqlexpr.Coalesce(intervalTextSQL(x), empty)
	case types.SingleSelect:
		return sqlexpr.Coalesce(selectOptionValue(x), empty)
	case types.MultipleSelect:
		return sqlexpr.Coalesce(jsonMembersText(constants.TableSelectOption, "value", x, true), empty)
	case types.MultipleCollaborators:
		return sqlexpr.Coalesce(jsonMembersText(constants.TableCollaborator, "name", x, false), empty)
	case types.Link:
		return sqlexpr.Coalesce(jsonString(x, "$.url"), empty)
	}
	return sqlexpr.Coalesce(sqlexpr.CastChar(x), empty)
}

func intervalTextSQL(seconds sqlexpr.Expr) sqlexpr.Expr {
	days := sqlexpr.Func("floor", sqlexpr.Binary(opcode.Div, seconds, sqlexpr.Int(86400)))
	rest := sqlexpr.Func("sec_to_time", sqlexpr.Func("mod", seconds, sqlexpr.Int(86400)))
	return sqlexpr.Func("concat", days, sqlexpr.String("d "), rest)
}

// selectOptionValue looks the option text up by id.
func selectOptionValue(optionID sqlexpr.Expr) sqlexpr.Expr {
	o := "o"
	return sqlexpr.Subquery(sqlexpr.Select(
		sqlexpr.Column(o, "value"),
		sqlexpr.Table(constants.TableSelectOption, o),
		sqlexpr.Binary(opcode.EQ, sqlexpr.Column(o, constants.ColumnID), optionID),
	))
}

// jsonMembersText joins the names of the rows whose ids are in a JSON id array.
func jsonMembersText(table, column string, ids sqlexpr.Expr, ordered bool) sqlexpr.Expr {
	m := "m"
	order := sqlexpr.OrderBy(sqlexpr.Column(m, constants.ColumnID))
	if ordered {
		order = sqlexpr.OrderBy(sqlexpr.Column(m, constants.ColumnOrder), sqlexpr.Column(m, constants.ColumnID))
	}
	return sqlexpr.Subquery(sqlexpr.Select(
		sqlexpr.GroupConcat(sqlexpr.Column(m, column), order, ", "),
		sqlexpr.Table(table, m),
		jsonContainsID(ids, sqlexpr.Column(m, constants.ColumnID)),
	))
}

func jsonContainsID(ids, id sqlexpr.Expr) sqlexpr.Expr {
	return sqlexpr.Func("json_contains", ids, sqlexpr.CastJSON(id))
}

func jsonString(doc sqlexpr.Expr, path string) sqlexpr.Expr {
	return sqlexpr.Func("json_unquote", sqlexpr.Func("json_extract", doc, sqlexpr.String(path)))
}

func inTimezone(x sqlexpr.Expr, tz string) sqlexpr.Expr {
	if tz == "" {
		return x
	}
	return sqlexpr.Func("convert_tz", x, sqlexpr.String("UTC"), sqlexpr.String(tz))
}
