package typecheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/backend/pkg/constants"
	"github.com/gridbase/backend/pkg/formula/ast"
	"github.com/gridbase/backend/pkg/formula/parser"
	"github.com/gridbase/backend/pkg/formula/types"
)

const (
	contacts int64 = 1
	orders   int64 = 2
)

func testSchema() *StaticSchema {
	return NewStaticSchema(
		&FieldInfo{ID: 1, TableID: contacts, Name: "Name", FieldType: constants.FieldTypeText, Type: types.Text{Null: true}, Primary: true},
		&FieldInfo{ID: 2, TableID: contacts, Name: "Price", FieldType: constants.FieldTypeNumber, Type: types.Number{DecimalPlaces: 2, Null: true}},
		&FieldInfo{ID: 3, TableID: contacts, Name: "Active", FieldType: constants.FieldTypeBoolean, Type: types.Boolean{}},
		&FieldInfo{ID: 4, TableID: contacts, Name: "Orders", FieldType: constants.FieldTypeLinkRow, LinkTableID: orders},
		&FieldInfo{ID: 5, TableID: contacts, Name: "Order titles", FieldType: constants.FieldTypeFormula,
			Type: types.Array{Sub: types.Text{Null: true}}, Formula: "lookup('Orders', 'Title')"},
		&FieldInfo{ID: 6, TableID: contacts, Name: "Broken", FieldType: constants.FieldTypeFormula,
			Type: types.Invalid{Error: "boom"}, Formula: "field('gone')"},
		&FieldInfo{ID: 10, TableID: orders, Name: "Title", FieldType: constants.FieldTypeText, Type: types.Text{Null: true}, Primary: true},
		&FieldInfo{ID: 11, TableID: orders, Name: "Amount", FieldType: constants.FieldTypeNumber, Type: types.Number{DecimalPlaces: 2, Null: true}},
		&FieldInfo{ID: 12, TableID: orders, Name: "Paid", FieldType: constants.FieldTypeBoolean, Type: types.Boolean{}},
		&FieldInfo{ID: 13, TableID: orders, Name: "Customer", FieldType: constants.FieldTypeLinkRow, LinkTableID: contacts},
	)
}

func check(t *testing.T, src string, fieldID int64) *Result {
	t.Helper()
	node, err := parser.Parse(src)
	require.NoError(t, err)
	res, err := Check(node, testSchema(), Options{TableID: contacts, FieldID: fieldID})
	require.NoError(t, err)
	return res
}

func invalidMessage(t *testing.T, res *Result) string {
	t.Helper()
	require.True(t, res.Invalid(), "expected invalid, got %s", res.Type())
	return res.Type().(types.Invalid).Error
}

func TestScenarioTypes(t *testing.T) {
	cases := []struct {
		src  string
		want types.FormulaType
	}{
		{"field('Price') * 1.5", types.Number{DecimalPlaces: 2, Negative: true, Null: true}},
		{"concat('x', field('Name'))", types.Text{}},
		{"if(field('Active'), 'Yes', 1)", types.Text{}},
		{"field('Price') = field('Name')", types.Boolean{}},
		{"1 / 3", types.Number{DecimalPlaces: 5, Negative: true, Null: true}},
		{"'a' + 'b'", types.Text{}},
		{"upper(field('Price'))", types.Text{}},
		{"sum(lookup('Orders', 'Amount'))", types.Number{DecimalPlaces: 2}},
		{"join(field('Order titles'), ', ')", types.Text{}},
		{"field('Orders')", types.Array{Sub: types.Text{Null: true}}},
		{"count(field('Orders'))", types.Number{}},
		{"sum(filter(lookup('Orders', 'Amount'), lookup('Orders', 'Paid')))", types.Number{DecimalPlaces: 2}},
		{"lookup('Orders', 'Amount') * 2", types.Array{Sub: types.Number{DecimalPlaces: 2, Negative: true, Null: true}}},
		{"now()", types.Date{IncludeTime: true, Format: types.DateFormatISO, TimeFormat: types.TimeFormat24}},
	}
	for _, c := range cases {
		t.Run(c.src, func(t *testing.T) {
			res := check(t, c.src, 0)
			assert.Equal(t, c.want, res.Type())
		})
	}
}

func TestRewritesAreVisibleInTheTree(t *testing.T) {
	assert.Equal(t, "if(field('Active'), totext('Yes'), totext(1))", ast.Format(check(t, "if(field('Active'), 'Yes', 1)", 0).Node))
	assert.Equal(t, "totext(field('Price')) = totext(field('Name'))", ast.Format(check(t, "field('Price') = field('Name')", 0).Node))
	assert.Equal(t, "upper(totext(field('Price')))", ast.Format(check(t, "upper(field('Price'))", 0).Node))
	assert.Equal(t, "concat('a', 'b')", ast.Format(check(t, "'a' + 'b'", 0).Node))
	assert.Equal(t, "array_agg(lookup('Orders', 'Title'))", ast.Format(check(t, "field('Orders')", 0).Node))
	assert.Equal(t, "trunc(1.5)", ast.Format(check(t, "int(1.5)", 0).Node))
}

func TestInvalidFormulas(t *testing.T) {
	cases := map[string]string{
		"field('Missing')":                     "references the deleted or unknown field Missing",
		"upper(field('Missing'))":              "references the deleted or unknown field Missing",
		"nope(1)":                              "function nope does not exist",
		"upper('a', 'b')":                      "2 arguments were given to the function upper",
		"sum(field('Price'))":                  "must be a lookup or a link field",
		"1 + 'a'":                              "no possible ways to add",
		"join(field('Orders'), field('Name'))": "must be a literal value",
		"field('Broken')":                      "references the invalid field Broken",
		"lookup('Name', 'Title')":              "is not a link row field",
		"lookup('Orders', 'Customer')":         "looking up the link row field Customer is not supported",
		"lookup('Orders', 'Nope')":             "references the deleted or unknown field Nope",
		"field('Active') < field('Active')":    "no possible ways to compare",
		"and(1, true)":                         "the only usable type for this argument is boolean",
		"date_interval('soon')":                "the date_interval \"soon\" is invalid",
	}
	for src, want := range cases {
		t.Run(src, func(t *testing.T) {
			assert.Contains(t, invalidMessage(t, check(t, src, 0)), want)
		})
	}
}

func TestSelfReference(t *testing.T) {
	assert.Contains(t, invalidMessage(t, check(t, "field('Price') + 1", 2)), "cannot reference itself")
	assert.Contains(t, invalidMessage(t, check(t, "count(field('Orders'))", 4)), "cannot reference itself")
}

func TestDependencies(t *testing.T) {
	res := check(t, "sum(lookup('Orders', 'Amount')) + field('Price') + field('Price')", 0)
	assert.Equal(t, []Dependency{
		{FieldID: 4},
		{FieldID: 11, ViaFieldID: 4},
		{FieldID: 2},
	}, res.Dependencies)

	res = check(t, "join(field('Order titles'), ',')", 0)
	assert.Equal(t, []Dependency{{FieldID: 5}}, res.Dependencies)

	res = check(t, "field('Later') & 'x'", 0)
	assert.Equal(t, []Dependency{{Name: "Later"}}, res.Dependencies)
}

func TestManyValuesKeepTheirPath(t *testing.T) {
	res := check(t, "sum(lookup('Orders', 'Amount') * 2)", 0)
	call := res.Node.(*ast.FunctionCall)
	inner := call.Args[0].Info()
	assert.True(t, inner.Many)
	require.NotNil(t, inner.Path)
	assert.Equal(t, ast.JoinPath{LinkFieldID: 4, SourceTableID: contacts, TargetTableID: orders}, *inner.Path)
	assert.False(t, call.Many)
}

func TestFilterRequiresAggregate(t *testing.T) {
	res := check(t, "filter(lookup('Orders', 'Amount'), lookup('Orders', 'Paid'))", 0)
	call := res.Node.(*ast.FunctionCall)
	assert.Equal(t, "array_agg", call.Name)
	assert.True(t, call.Args[0].Info().RequiresAggregate)
}

func TestPeriodicFlag(t *testing.T) {
	assert.True(t, check(t, "datetime_format(now(), 'YYYY')", 0).NeedsPeriodicUpdate)
	assert.False(t, check(t, "field('Price')", 0).NeedsPeriodicUpdate)
}

func TestCheckIsDeterministicAndPure(t *testing.T) {
	node, err := parser.Parse("round(field('Price') / 3, 2) + 1")
	require.NoError(t, err)
	first, err := Check(node, testSchema(), Options{TableID: contacts})
	require.NoError(t, err)
	second, err := Check(node, testSchema(), Options{TableID: contacts})
	require.NoError(t, err)

	assert.True(t, types.Equal(first.Type(), second.Type()))
	assert.Nil(t, node.FormulaType())
}

func TestInlineDepthIsBounded(t *testing.T) {
	schema := testSchema()
	schema.Add(&FieldInfo{ID: 20, TableID: contacts, Name: "Loop", FieldType: constants.FieldTypeFormula,
		Type: types.Array{Sub: types.Text{}}, Formula: "field('Loop')"})
	node, err := parser.Parse("join(field('Loop'), ',')")
	require.NoError(t, err)
	res, err := Check(node, schema, Options{TableID: contacts})
	require.NoError(t, err)
	assert.True(t, res.Invalid())
}
