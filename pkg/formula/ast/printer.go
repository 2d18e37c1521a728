package ast

import (
	"strconv"
	"strings"
)

// Format prints the tree back as formula source. Nested operators are always
// parenthesised so the output parses back into the same tree.
func Format(n Node) string {
	var sb strings.Builder
	format(&sb, n, false)
	return sb.String()
}

func format(sb *strings.Builder, n Node, nested bool) {
	switch v := n.(type) {
	case *StringLiteral:
		sb.WriteString(Quote(v.Value))
	case *NumberLiteral:
		sb.WriteString(v.Text)
	case *BooleanLiteral:
		sb.WriteString(strconv.FormatBool(v.Value))
	case *FieldReference:
		if v.ByID {
			sb.WriteString("field_by_id(")
			sb.WriteString(strconv.FormatInt(v.ID, 10))
			sb.WriteString(")")
			return
		}
		sb.WriteString("field(")
		sb.WriteString(Quote(v.Name))
		sb.WriteString(")")
	case *LookupReference:
		sb.WriteString("lookup(")
		sb.WriteString(Quote(v.ThroughName))
		sb.WriteString(", ")
		sb.WriteString(Quote(v.TargetName))
		sb.WriteString(")")
	case *FunctionCall:
		if v.Operator != "" && len(v.Args) == 2 {
			if nested {
				sb.WriteString("(")
			}
			format(sb, v.Args[0], true)
			sb.WriteString(" " + v.Operator + " ")
			format(sb, v.Args[1], true)
			if nested {
				sb.WriteString(")")
			}
			return
		}
		sb.WriteString(v.Name)
		sb.WriteString("(")
		for i, arg := range v.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, arg, false)
		}
		sb.WriteString(")")
	}
}

// Quote renders s as a single quoted formula string literal.
func Quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('\'')
	for _, r := range s {
		if r == '\'' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('\'')
	return sb.String()
}
