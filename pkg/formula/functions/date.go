package functions

import (
	"fmt"
	"strings"
	"time"

	tidbast "github.com/pingcap/tidb/pkg/parser/ast"

	"github.com/gridbase/backend/pkg/formula/ast"
	"github.com/gridbase/backend/pkg/formula/sqlexpr"
	"github.com/gridbase/backend/pkg/formula/types"
	"github.com/gridbase/backend/pkg/formula/value"
)

var timeUnits = map[string]tidbast.TimeUnitType{
	"year":    tidbast.TimeUnitYear,
	"quarter": tidbast.TimeUnitQuarter,
	"month":   tidbast.TimeUnitMonth,
	"week":    tidbast.TimeUnitWeek,
	"day":     tidbast.TimeUnitDay,
	"hour":    tidbast.TimeUnitHour,
	"minute":  tidbast.TimeUnitMinute,
	"second":  tidbast.TimeUnitSecond,
}

func dateFunctions() []*Definition {
	defs := []*Definition{
		{
			Name: "todate", Category: CategoryDate,
			Description: "Converts text to a date using a format such as 'YYYY-MM-DD'. Text that does not match gives an empty value.",
			Example:     "todate('2024-03-01', 'YYYY-MM-DD')",
			Arity:       Exactly(2),
			Args:        []ArgSpec{textArg, literalText},
			Type:        typeToDate(false),
			SQL: func(_ SQLContext, call *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				format, _ := literalString(call, 1)
				return sqlexpr.Func("str_to_date", args[0], sqlexpr.String(mysqlDateFormat(parseDateFormat(format)))), nil
			},
			Eval: evalToDate,
		},
		{
			Name: "todate_tz", Category: CategoryDate,
			Description: "Converts text written in the given timezone to a date and time.",
			Example:     "todate_tz('2024-03-01 10:00', 'YYYY-MM-DD HH24:MI', 'Europe/Amsterdam')",
			Arity:       Exactly(3),
			Args:        []ArgSpec{textArg, literalText, literalText},
			Type:        typeToDate(true),
			SQL: func(_ SQLContext, call *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				format, _ := literalString(call, 1)
				tz, _ := literalString(call, 2)
				parsed := sqlexpr.Func("str_to_date", args[0], sqlexpr.String(mysqlDateFormat(parseDateFormat(format))))
				return sqlexpr.Func("convert_tz", parsed, sqlexpr.String(tz), sqlexpr.String("UTC")), nil
			},
			Eval: evalToDate,
		},
		{
			Name: "date_diff", Category: CategoryDate,
			Description: "Counts the whole units between two dates. Units: year, quarter, month, week, day, hour, minute, second.",
			Example:     "date_diff('day', field('Start'), field('End'))",
			Arity:       Exactly(3),
			Args:        []ArgSpec{literalText, dateArg, dateArg},
			Type: func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
				unit, _ := literalString(call, 0)
				if _, ok := dateDiffUnits[strings.ToLower(unit)]; !ok {
					return types.Errorf("%q is not a valid unit for date_diff", unit), nil
				}
				return types.Number{Negative: true, Null: anyArgNullable(call)}, nil
			},
			SQL: func(_ SQLContext, call *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				unit, _ := literalString(call, 0)
				tu, ok := timeUnits[dateDiffUnits[strings.ToLower(unit)]]
				if !ok {
					return nil, fmt.Errorf("date_diff unit %q reached code generation", unit)
				}
				return sqlexpr.Func(tidbast.TimestampDiff, sqlexpr.Unit(tu), args[1], args[2]), nil
			},
			Eval: func(_ *EvalContext, call *ast.FunctionCall, args []any) (any, error) {
				start, ok1 := args[1].(time.Time)
				end, ok2 := args[2].(time.Time)
				if !ok1 || !ok2 {
					return nil, nil
				}
				unit := strings.ToLower(textOf(args[0]))
				return value.FromInt(dateDiff(dateDiffUnits[unit], start, end)), nil
			},
		},
		{
			Name: "date_interval", Category: CategoryDate,
			Description: "Creates an interval from text such as '1 day' or '2 hours 30 minutes'. Months count as 30 days and years as 365.",
			Example:     "field('Due') + date_interval('1 week')",
			Arity:       Exactly(1),
			Args:        []ArgSpec{literalText},
			Type: func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
				text, _ := literalString(call, 0)
				if _, err := parseInterval(text); err != nil {
					return types.Errorf("the date_interval %q is invalid: %s", text, err), nil
				}
				return types.DateInterval{}, nil
			},
			SQL: func(_ SQLContext, call *ast.FunctionCall, _ []sqlexpr.Expr) (sqlexpr.Expr, error) {
				text, _ := literalString(call, 0)
				d, err := parseInterval(text)
				if err != nil {
					return nil, err
				}
				return sqlexpr.Int(int64(d / time.Second)), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				d, err := parseInterval(textOf(args[0]))
				if err != nil {
					return nil, nil
				}
				return d, nil
			},
		},
		{
			Name: "now", Category: CategoryDate, NeedsPeriodicUpdate: true,
			Description: "The current date and time in UTC. Fields using it are refreshed periodically.",
			Example:     "now()",
			Arity:       Exactly(0),
			Type:        returns(types.Date{IncludeTime: true, Format: types.DateFormatISO, TimeFormat: types.TimeFormat24}),
			SQL: func(ctx SQLContext, _ *ast.FunctionCall, _ []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Timestamp(ctx.Now()), nil
			},
			Eval: func(ctx *EvalContext, _ *ast.FunctionCall, _ []any) (any, error) {
				return ctx.Now.UTC(), nil
			},
		},
		{
			Name: "today", Category: CategoryDate, NeedsPeriodicUpdate: true,
			Description: "The current date in UTC. Fields using it are refreshed periodically.",
			Example:     "today()",
			Arity:       Exactly(0),
			Type:        returns(types.Date{Format: types.DateFormatISO, TimeFormat: types.TimeFormat24}),
			SQL: func(ctx SQLContext, _ *ast.FunctionCall, _ []sqlexpr.Expr) (sqlexpr.Expr, error) {
				return sqlexpr.Date(ctx.Now().UTC()), nil
			},
			Eval: func(ctx *EvalContext, _ *ast.FunctionCall, _ []any) (any, error) {
				return ctx.Now.UTC().Truncate(24 * time.Hour), nil
			},
		},
		{
			Name: "datetime_format", Category: CategoryDate,
			Description: "Formats a date with a format such as 'DD Mon YYYY HH24:MI'.",
			Example:     "datetime_format(field('Due'), 'DD/MM/YYYY')",
			Arity:       Exactly(2),
			Args:        []ArgSpec{dateArg, literalText},
			Type:        returnsNullable(types.Text{}),
			SQL: func(_ SQLContext, call *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				format, _ := literalString(call, 1)
				tz := argType(call, 0).(types.Date).ForceTimezone
				return sqlexpr.Func("date_format", inTimezone(args[0], tz), sqlexpr.String(mysqlDateFormat(parseDateFormat(format)))), nil
			},
			Eval: func(_ *EvalContext, call *ast.FunctionCall, args []any) (any, error) {
				return evalDateFormat(args[0], textOf(args[1]), argType(call, 0).(types.Date).ForceTimezone), nil
			},
		},
		{
			Name: "datetime_format_tz", Category: CategoryDate,
			Description: "Formats a date in the given timezone.",
			Example:     "datetime_format_tz(field('Due'), 'HH24:MI', 'Asia/Tokyo')",
			Arity:       Exactly(3),
			Args:        []ArgSpec{dateArg, literalText, literalText},
			Type: func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
				tz, _ := literalString(call, 2)
				if _, err := time.LoadLocation(tz); err != nil {
					return types.Errorf("%q is not a valid timezone", tz), nil
				}
				return types.Text{Null: argType(call, 0).Nullable()}, nil
			},
			SQL: func(_ SQLContext, call *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
				format, _ := literalString(call, 1)
				tz, _ := literalString(call, 2)
				return sqlexpr.Func("date_format", inTimezone(args[0], tz), sqlexpr.String(mysqlDateFormat(parseDateFormat(format)))), nil
			},
			Eval: func(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
				return evalDateFormat(args[0], textOf(args[1]), textOf(args[2])), nil
			},
		},
	}
	for _, part := range []string{"year", "month", "day", "hour", "minute", "second"} {
		defs = append(defs, datePart(part))
	}
	return defs
}

func datePart(part string) *Definition {
	return &Definition{
		Name: part, Category: CategoryDate,
		Description: "Returns the " + part + " of a date.",
		Example:     part + "(field('Due'))",
		Arity:       Exactly(1),
		Args:        []ArgSpec{dateArg},
		Type: func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
			return types.Number{Null: anyArgNullable(call)}, nil
		},
		SQL: func(_ SQLContext, call *ast.FunctionCall, args []sqlexpr.Expr) (sqlexpr.Expr, error) {
			return sqlexpr.Func(part, inTimezone(args[0], argType(call, 0).(types.Date).ForceTimezone)), nil
		},
		Eval: func(_ *EvalContext, call *ast.FunctionCall, args []any) (any, error) {
			t, ok := args[0].(time.Time)
			if !ok {
				return nil, nil
			}
			t = inLocation(t, argType(call, 0).(types.Date).ForceTimezone)
			var n int
			switch part {
			case "year":
				n = t.Year()
			case "month":
				n = int(t.Month())
			case "day":
				n = t.Day()
			case "hour":
				n = t.Hour()
			case "minute":
				n = t.Minute()
			default:
				n = t.Second()
			}
			return value.FromInt(int64(n)), nil
		},
	}
}

// typeToDate validates the literal format and timezone arguments.
func typeToDate(withTimezone bool) TypeFunc {
	return func(call *ast.FunctionCall) (types.FormulaType, ast.Node) {
		format, _ := literalString(call, 1)
		segments := parseDateFormat(format)
		includeTime := false
		for _, s := range segments {
			if s.token != nil && strings.ContainsAny(s.token.mysql, "HhisIp") {
				includeTime = true
			}
		}
		d := types.Date{Format: types.DateFormatISO, TimeFormat: types.TimeFormat24, IncludeTime: includeTime, Null: true}
		if withTimezone {
			tz, _ := literalString(call, 2)
			if _, err := time.LoadLocation(tz); err != nil {
				return types.Errorf("%q is not a valid timezone", tz), nil
			}
			d.IncludeTime = true
			d.ForceTimezone = tz
		}
		return d, nil
	}
}

func evalToDate(_ *EvalContext, _ *ast.FunctionCall, args []any) (any, error) {
	if args[0] == nil {
		return nil, nil
	}
	loc := time.UTC
	if len(args) > 2 {
		l, err := time.LoadLocation(textOf(args[2]))
		if err != nil {
			return nil, nil
		}
		loc = l
	}
	t, err := time.ParseInLocation(goDateLayout(parseDateFormat(textOf(args[1]))), strings.TrimSpace(textOf(args[0])), loc)
	if err != nil {
		return nil, nil
	}
	return t.UTC(), nil
}

func evalDateFormat(v any, format, tz string) any {
	t, ok := v.(time.Time)
	if !ok {
		return nil
	}
	return formatTime(inLocation(t, tz), parseDateFormat(format))
}

func inLocation(t time.Time, tz string) time.Time {
	if tz == "" {
		return t.UTC()
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return t.UTC()
	}
	return t.In(loc)
}
