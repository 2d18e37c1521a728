// Package ast holds the expression tree of a formula. A tree coming out of the
// parser is untyped; the type checker returns a new tree whose nodes carry a
// FormulaType, a many flag and the join path they were read through.
package ast

import (
	"github.com/gridbase/backend/pkg/formula/types"
)

// Span is a half open byte range in the formula source.
type Span struct {
	Start int
	End   int
}

// Valid reports whether the span points into the source.
func (s Span) Valid() bool { return s.End > s.Start }

// JoinPath is the link_row traversal a many valued node was read through.
type JoinPath struct {
	LinkFieldID   int64
	SourceTableID int64
	TargetTableID int64
}

// Typed is the type information attached to every node.
type Typed struct {
	Type types.FormulaType
	// Many is set when the node yields one value per linked row.
	Many bool
	Path *JoinPath
	// RequiresAggregate is set for many valued expressions that are not a plain
	// field read (filter for example) and must end up inside an aggregate.
	RequiresAggregate bool
}

// Info returns the type information of the node.
func (t *Typed) Info() *Typed { return t }

// FormulaType returns the resolved type, nil before type checking.
func (t *Typed) FormulaType() types.FormulaType { return t.Type }

// Node is implemented by every expression node.
type Node interface {
	Info() *Typed
	FormulaType() types.FormulaType
	node()
}

// StringLiteral is a quoted string.
type StringLiteral struct {
	Typed
	Value string
	Pos   Span
}

// Number literals must fit DECIMAL(65, 30).
const (
	MaxLiteralDigits = 65
	MaxLiteralScale  = 30
)

// NumberLiteral keeps the literal text so no precision is lost before codegen.
type NumberLiteral struct {
	Typed
	Text          string
	DecimalPlaces int
}

// BooleanLiteral is true or false.
type BooleanLiteral struct {
	Typed
	Value bool
}

// FieldReference reads a field of the current row. Parsed from field('name')
// or field_by_id(id); the checker fills the missing half.
type FieldReference struct {
	Typed
	Name    string
	ID      int64
	ByID    bool
	NamePos Span
}

// LookupReference reads TargetName of every row linked through ThroughName.
type LookupReference struct {
	Typed
	ThroughName string
	TargetName  string
	ThroughID   int64
	TargetID    int64
	ThroughPos  Span
	TargetPos   Span
}

// FunctionCall is a call of a builtin. Operator keeps the infix spelling when
// the call was written as an operator so the tree can be printed back.
type FunctionCall struct {
	Typed
	Name     string
	Operator string
	Args     []Node
}

func (*StringLiteral) node()   {}
func (*NumberLiteral) node()   {}
func (*BooleanLiteral) node()  {}
func (*FieldReference) node()  {}
func (*LookupReference) node() {}
func (*FunctionCall) node()    {}

// Call builds an untyped function call.
func Call(name string, args ...Node) *FunctionCall {
	return &FunctionCall{Name: name, Args: args}
}

// Walk visits n and its descendants depth first. Returning false from fn stops
// the descent into the children of the current node.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	if call, ok := n.(*FunctionCall); ok {
		for _, arg := range call.Args {
			Walk(arg, fn)
		}
	}
}

// Clone returns a deep copy of the tree.
func Clone(n Node) Node {
	switch v := n.(type) {
	case *StringLiteral:
		c := *v
		return &c
	case *NumberLiteral:
		c := *v
		return &c
	case *BooleanLiteral:
		c := *v
		return &c
	case *FieldReference:
		c := *v
		return &c
	case *LookupReference:
		c := *v
		return &c
	case *FunctionCall:
		c := *v
		c.Args = make([]Node, len(v.Args))
		for i, arg := range v.Args {
			c.Args[i] = Clone(arg)
		}
		return &c
	}
	return n
}

// IsLiteral reports whether n is a literal value.
func IsLiteral(n Node) bool {
	switch n.(type) {
	case *StringLiteral, *NumberLiteral, *BooleanLiteral:
		return true
	}
	return false
}
