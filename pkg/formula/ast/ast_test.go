package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tree := &FunctionCall{
		Name:     "multiply",
		Operator: "*",
		Args: []Node{
			&FunctionCall{Name: "add", Operator: "+", Args: []Node{
				&FieldReference{Name: "Price"},
				&NumberLiteral{Text: "1"},
			}},
			Call("upper", &StringLiteral{Value: "it's"}),
		},
	}
	assert.Equal(t, `(field('Price') + 1) * upper('it\'s')`, Format(tree))
	assert.Equal(t, "field_by_id(4)", Format(&FieldReference{ID: 4, ByID: true}))
	assert.Equal(t, "lookup('Orders', 'Total')", Format(&LookupReference{ThroughName: "Orders", TargetName: "Total"}))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `'a\\b'`, Quote(`a\b`))
	assert.Equal(t, `'plain'`, Quote("plain"))
}

func TestCloneIsDeep(t *testing.T) {
	ref := &FieldReference{Name: "A"}
	call := Call("totext", ref)
	clone := Clone(call).(*FunctionCall)
	clone.Args[0].(*FieldReference).Name = "B"
	assert.Equal(t, "A", ref.Name)
}

func TestWalkStopsDescent(t *testing.T) {
	tree := Call("concat", Call("upper", &StringLiteral{Value: "x"}), &StringLiteral{Value: "y"})
	var visited int
	Walk(tree, func(n Node) bool {
		visited++
		_, isCall := n.(*FunctionCall)
		return n == Node(tree) || !isCall
	})
	assert.Equal(t, 3, visited)
}

func TestRenameReferences(t *testing.T) {
	src := "concat(field('Name'),   field(\"Other\"))"
	root := Call("concat",
		&FieldReference{Name: "Name", NamePos: Span{Start: 13, End: 19}},
		&FieldReference{Name: "Other", NamePos: Span{Start: 30, End: 37}},
	)
	out, changed := RenameReferences(src, root, func(ref Reference) (string, bool) {
		if ref.Kind == RefField && ref.Name == "Name" {
			return "Full name", true
		}
		return "", false
	})
	assert.True(t, changed)
	assert.Equal(t, "concat(field('Full name'),   field(\"Other\"))", out)
}

func TestReferencesIncludeLookups(t *testing.T) {
	root := Call("sum", &LookupReference{ThroughName: "Orders", TargetName: "Total"})
	refs := References(root)
	if assert.Len(t, refs, 2) {
		assert.Equal(t, RefLookupThrough, refs[0].Kind)
		assert.Equal(t, RefLookupTarget, refs[1].Kind)
		assert.Equal(t, "Orders", refs[1].Through)
	}
}
