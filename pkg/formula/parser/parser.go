// Package parser turns formula source text into an untyped expression tree.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/gridbase/backend/pkg/formula/ast"
)

// ParseError is a syntax error with the position it was found at.
type ParseError struct {
	Message string
	Offset  int
	Line    int
	Column  int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("Invalid syntax at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

var binaryOperators = map[string]string{
	"+":  "add",
	"-":  "minus",
	"*":  "multiply",
	"/":  "divide",
	"&":  "concat",
	"=":  "equal",
	"!=": "not_equal",
	"<>": "not_equal",
	">":  "greater_than",
	">=": "greater_than_or_equal",
	"<":  "less_than",
	"<=": "less_than_or_equal",
	"&&": "and",
	"||": "or",
}

// Parse parses a formula. It never returns a partial tree.
func Parse(src string) (ast.Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &ParseError{Message: "the formula is empty", Line: 1, Column: 1}
	}
	tree, err := formulaParser.ParseString("", src)
	if err != nil {
		return nil, toParseError(err)
	}
	c := converter{src: src}
	return c.or(tree.Expr)
}

func toParseError(err error) error {
	var perr participle.Error
	if errors.As(err, &perr) {
		pos := perr.Position()
		return &ParseError{
			Message: perr.Message(),
			Offset:  pos.Offset,
			Line:    pos.Line,
			Column:  pos.Column,
		}
	}
	return &ParseError{Message: err.Error(), Line: 1, Column: 1}
}

func errorAt(pos lexer.Position, format string, args ...any) *ParseError {
	return &ParseError{
		Message: fmt.Sprintf(format, args...),
		Offset:  pos.Offset,
		Line:    pos.Line,
		Column:  pos.Column,
	}
}

type converter struct {
	src string
}

func binary(op string, left, right ast.Node) ast.Node {
	return &ast.FunctionCall{Name: binaryOperators[op], Operator: op, Args: []ast.Node{left, right}}
}

func (c *converter) or(e *orExpr) (ast.Node, error) {
	left, err := c.and(e.Left)
	if err != nil {
		return nil, err
	}
	for _, tail := range e.Rest {
		right, err := c.and(tail.Right)
		if err != nil {
			return nil, err
		}
		left = binary(tail.Op, left, right)
	}
	return left, nil
}

func (c *converter) and(e *andExpr) (ast.Node, error) {
	left, err := c.eq(e.Left)
	if err != nil {
		return nil, err
	}
	for _, tail := range e.Rest {
		right, err := c.eq(tail.Right)
		if err != nil {
			return nil, err
		}
		left = binary(tail.Op, left, right)
	}
	return left, nil
}

func (c *converter) eq(e *eqExpr) (ast.Node, error) {
	left, err := c.rel(e.Left)
	if err != nil {
		return nil, err
	}
	for _, tail := range e.Rest {
		right, err := c.rel(tail.Right)
		if err != nil {
			return nil, err
		}
		left = binary(tail.Op, left, right)
	}
	return left, nil
}

func (c *converter) rel(e *relExpr) (ast.Node, error) {
	left, err := c.add(e.Left)
	if err != nil {
		return nil, err
	}
	for _, tail := range e.Rest {
		right, err := c.add(tail.Right)
		if err != nil {
			return nil, err
		}
		left = binary(tail.Op, left, right)
	}
	return left, nil
}

func (c *converter) add(e *addExpr) (ast.Node, error) {
	left, err := c.mul(e.Left)
	if err != nil {
		return nil, err
	}
	for _, tail := range e.Rest {
		right, err := c.mul(tail.Right)
		if err != nil {
			return nil, err
		}
		left = binary(tail.Op, left, right)
	}
	return left, nil
}

func (c *converter) mul(e *mulExpr) (ast.Node, error) {
	left, err := c.unary(e.Left)
	if err != nil {
		return nil, err
	}
	for _, tail := range e.Rest {
		right, err := c.unary(tail.Right)
		if err != nil {
			return nil, err
		}
		left = binary(tail.Op, left, right)
	}
	return left, nil
}

func (c *converter) unary(e *unaryExpr) (ast.Node, error) {
	node, err := c.primary(e.Primary)
	if err != nil {
		return nil, err
	}
	for range e.Negs {
		if lit, ok := node.(*ast.NumberLiteral); ok {
			if strings.HasPrefix(lit.Text, "-") {
				lit.Text = lit.Text[1:]
			} else {
				lit.Text = "-" + lit.Text
			}
			continue
		}
		node = &ast.FunctionCall{Name: "minus", Args: []ast.Node{&ast.NumberLiteral{Text: "0"}, node}}
	}
	return node, nil
}

func (c *converter) primary(p *primary) (ast.Node, error) {
	switch {
	case p.Number != nil:
		return numberLiteral(*p.Number, p.Pos)
	case p.String != nil:
		raw := *p.String
		value, err := unquote(raw)
		if err != nil {
			return nil, errorAt(p.Pos, "%s", err.Error())
		}
		return &ast.StringLiteral{
			Value: value,
			Pos:   ast.Span{Start: p.Pos.Offset, End: p.Pos.Offset + len(raw)},
		}, nil
	case p.Call != nil:
		return c.call(p.Call)
	case p.Sub != nil:
		return c.or(p.Sub)
	}
	return nil, errorAt(p.Pos, "unexpected input")
}

// numberLiteral rejects literals that do not fit a DECIMAL column.
func numberLiteral(text string, pos lexer.Position) (*ast.NumberLiteral, error) {
	if strings.HasPrefix(text, ".") {
		text = "0" + text
	}
	whole, frac, _ := strings.Cut(text, ".")
	whole = strings.TrimLeft(whole, "0")
	if len(frac) > ast.MaxLiteralScale {
		return nil, errorAt(pos, "number %s has more than %d decimal places", text, ast.MaxLiteralScale)
	}
	if len(whole)+len(frac) > ast.MaxLiteralDigits {
		return nil, errorAt(pos, "number %s has more than %d digits", text, ast.MaxLiteralDigits)
	}
	return &ast.NumberLiteral{Text: text, DecimalPlaces: len(frac)}, nil
}

func (c *converter) call(e *callExpr) (ast.Node, error) {
	name := ast.NormalizeName(e.Name)
	if e.Args == nil {
		switch name {
		case "true":
			return &ast.BooleanLiteral{Value: true}, nil
		case "false":
			return &ast.BooleanLiteral{Value: false}, nil
		}
		return nil, errorAt(e.Pos, "unexpected identifier %q, use field('%s') to reference a field", e.Name, e.Name)
	}

	args := make([]ast.Node, 0, len(e.Args.Args))
	for _, a := range e.Args.Args {
		arg, err := c.or(a)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	switch name {
	case "field":
		if len(args) != 1 {
			return nil, errorAt(e.Pos, "field() expects exactly one field name")
		}
		lit, ok := args[0].(*ast.StringLiteral)
		if !ok {
			return nil, errorAt(e.Pos, "field() expects a quoted field name")
		}
		return &ast.FieldReference{Name: lit.Value, NamePos: lit.Pos}, nil
	case "field_by_id":
		if len(args) != 1 {
			return nil, errorAt(e.Pos, "field_by_id() expects exactly one field id")
		}
		lit, ok := args[0].(*ast.NumberLiteral)
		if !ok || lit.DecimalPlaces > 0 || strings.HasPrefix(lit.Text, "-") {
			return nil, errorAt(e.Pos, "field_by_id() expects a whole number")
		}
		id, err := strconv.ParseInt(lit.Text, 10, 64)
		if err != nil {
			return nil, errorAt(e.Pos, "field_by_id() expects a whole number")
		}
		return &ast.FieldReference{ID: id, ByID: true}, nil
	case "lookup":
		if len(args) != 2 {
			return nil, errorAt(e.Pos, "lookup() expects a link field name and a target field name")
		}
		through, ok1 := args[0].(*ast.StringLiteral)
		target, ok2 := args[1].(*ast.StringLiteral)
		if !ok1 || !ok2 {
			return nil, errorAt(e.Pos, "lookup() expects quoted field names")
		}
		return &ast.LookupReference{
			ThroughName: through.Value,
			TargetName:  target.Value,
			ThroughPos:  through.Pos,
			TargetPos:   target.Pos,
		}, nil
	}
	return &ast.FunctionCall{Name: name, Args: args}, nil
}

func unquote(raw string) (string, error) {
	if len(raw) < 2 {
		return "", fmt.Errorf("unterminated string")
	}
	body := raw[1 : len(raw)-1]
	if !strings.ContainsRune(body, '\\') {
		return body, nil
	}
	var sb strings.Builder
	sb.Grow(len(body))
	escaped := false
	for _, r := range body {
		if escaped {
			switch r {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			default:
				sb.WriteRune(r)
			}
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}
