package eval

import (
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/backend/pkg/constants"
	"github.com/gridbase/backend/pkg/formula/ast"
	"github.com/gridbase/backend/pkg/formula/parser"
	"github.com/gridbase/backend/pkg/formula/typecheck"
	"github.com/gridbase/backend/pkg/formula/types"
	"github.com/gridbase/backend/pkg/formula/value"
)

const (
	contacts int64 = 1
	orders   int64 = 2
)

var now = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

func testSchema() *typecheck.StaticSchema {
	return typecheck.NewStaticSchema(
		&typecheck.FieldInfo{ID: 1, TableID: contacts, Name: "Name", FieldType: constants.FieldTypeText, Type: types.Text{Null: true}, Primary: true},
		&typecheck.FieldInfo{ID: 2, TableID: contacts, Name: "Price", FieldType: constants.FieldTypeNumber, Type: types.Number{DecimalPlaces: 2, Null: true}},
		&typecheck.FieldInfo{ID: 3, TableID: contacts, Name: "Active", FieldType: constants.FieldTypeBoolean, Type: types.Boolean{}},
		&typecheck.FieldInfo{ID: 4, TableID: contacts, Name: "Orders", FieldType: constants.FieldTypeLinkRow, LinkTableID: orders},
		&typecheck.FieldInfo{ID: 10, TableID: orders, Name: "Title", FieldType: constants.FieldTypeText, Type: types.Text{Null: true}, Primary: true},
		&typecheck.FieldInfo{ID: 11, TableID: orders, Name: "Amount", FieldType: constants.FieldTypeNumber, Type: types.Number{DecimalPlaces: 2, Null: true}},
		&typecheck.FieldInfo{ID: 12, TableID: orders, Name: "Paid", FieldType: constants.FieldTypeBoolean, Type: types.Boolean{}},
	)
}

func typed(t *testing.T, src string) ast.Node {
	t.Helper()
	node, err := parser.Parse(src)
	require.NoError(t, err)
	res, err := typecheck.Check(node, testSchema(), typecheck.Options{TableID: contacts})
	require.NoError(t, err)
	return res.Node
}

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := New(nil, 16)
	require.NoError(t, err)
	return e
}

func order(id int64, title, amount string, paid bool) *MapRow {
	return &MapRow{RowID: id, Values: map[int64]any{10: title, 11: amount, 12: paid}}
}

func customer() *MapRow {
	row := &MapRow{RowID: 42, Values: map[int64]any{1: "Ada", 2: "10.00", 3: true}}
	return row.Link(4,
		order(7, "first", "2.50", true),
		order(3, "second", "3", false),
		order(9, "third", "1.25", true),
	)
}

func evaluate(t *testing.T, e *Evaluator, src string, row Row) any {
	t.Helper()
	out, err := e.Evaluate(typed(t, src), row, now)
	require.NoError(t, err)
	return out
}

func decimalText(t *testing.T, v any) string {
	t.Helper()
	d, ok := v.(*apd.Decimal)
	require.True(t, ok, "expected a decimal, got %T", v)
	return value.FormatDecimal(d)
}

func TestMultiplyKeepsFieldScale(t *testing.T) {
	e := newEvaluator(t)
	row := &MapRow{RowID: 1, Values: map[int64]any{2: "10.00"}}
	assert.Equal(t, "15.00", decimalText(t, evaluate(t, e, "field('Price') * 1.5", row)))
}

func TestDivisionByZeroIsNaN(t *testing.T) {
	e := newEvaluator(t)
	row := &MapRow{RowID: 1, Values: map[int64]any{2: "10.00"}}
	out := evaluate(t, e, "field('Price') / 0", row)
	d, ok := out.(*apd.Decimal)
	require.True(t, ok)
	assert.True(t, value.IsNaN(d))
}

func TestConcatTreatsNullAsEmpty(t *testing.T) {
	e := newEvaluator(t)
	row := &MapRow{RowID: 1, Values: map[int64]any{1: nil}}
	assert.Equal(t, "x", evaluate(t, e, "concat('x', field('Name'))", row))
}

func TestIfWithMixedBranches(t *testing.T) {
	e := newEvaluator(t)
	active := &MapRow{RowID: 1, Values: map[int64]any{3: true}}
	inactive := &MapRow{RowID: 2, Values: map[int64]any{3: false}}
	assert.Equal(t, "Yes", evaluate(t, e, "if(field('Active'), 'Yes', 1)", active))
	assert.Equal(t, "1", evaluate(t, e, "if(field('Active'), 'Yes', 1)", inactive))
}

func TestAggregatesOverLinkedRows(t *testing.T) {
	e := newEvaluator(t)
	row := customer()
	assert.Equal(t, "6.75", decimalText(t, evaluate(t, e, "sum(lookup('Orders', 'Amount'))", row)))
	assert.Equal(t, "3", decimalText(t, evaluate(t, e, "count(field('Orders'))", row)))
	assert.Equal(t, "first, second, third", evaluate(t, e, "join(lookup('Orders', 'Title'), ', ')", row))
}

func TestElementWiseCallsAreBroadcast(t *testing.T) {
	e := newEvaluator(t)
	assert.Equal(t, "13.50", decimalText(t, evaluate(t, e, "sum(lookup('Orders', 'Amount') * 2)", customer())))
	assert.Equal(t, "FIRST-SECOND-THIRD", evaluate(t, e, "join(upper(lookup('Orders', 'Title')), '-')", customer()))
}

func TestFilterDropsItems(t *testing.T) {
	e := newEvaluator(t)
	row := customer()
	assert.Equal(t, "3.75", decimalText(t, evaluate(t, e, "sum(filter(lookup('Orders', 'Amount'), lookup('Orders', 'Paid')))", row)))
	assert.Equal(t, "first,third", evaluate(t, e, "join(filter(lookup('Orders', 'Title'), lookup('Orders', 'Paid')), ',')", row))
}

func TestManyValuedRootBecomesArray(t *testing.T) {
	e := newEvaluator(t)
	out := evaluate(t, e, "lookup('Orders', 'Title')", customer())
	assert.Equal(t, value.Array{
		{ID: 7, Value: "first"},
		{ID: 3, Value: "second"},
		{ID: 9, Value: "third"},
	}, out)
}

func TestEmptyLinks(t *testing.T) {
	e := newEvaluator(t)
	row := &MapRow{RowID: 1}
	assert.Equal(t, "0.00", decimalText(t, evaluate(t, e, "sum(lookup('Orders', 'Amount'))", row)))
	assert.Equal(t, "", evaluate(t, e, "join(lookup('Orders', 'Title'), ',')", row))
}

func TestContextValues(t *testing.T) {
	e := newEvaluator(t)
	assert.Equal(t, now, evaluate(t, e, "now()", customer()))
	assert.Equal(t, "42", decimalText(t, evaluate(t, e, "row_id()", customer())))
}

func TestLiteralOnlyFormulaWithoutRow(t *testing.T) {
	e := newEvaluator(t)
	out, err := e.Evaluate(typed(t, "1 + 2"), nil, now)
	require.NoError(t, err)
	assert.Equal(t, "3", decimalText(t, out))
}

func TestProgramsAreCached(t *testing.T) {
	e := newEvaluator(t)
	row := customer()
	evaluate(t, e, "upper(field('Name'))", row)
	evaluate(t, e, "upper(field('Name'))", row)
	assert.Equal(t, 1, e.CacheLen())
	evaluate(t, e, "lower(field('Name'))", row)
	assert.Equal(t, 2, e.CacheLen())
	e.Purge()
	assert.Equal(t, 0, e.CacheLen())
}

func TestInvalidFormulaIsNotEvaluated(t *testing.T) {
	e := newEvaluator(t)
	_, err := e.Evaluate(typed(t, "field('missing')"), customer(), now)
	assert.ErrorIs(t, err, ErrNotEvaluable)

	_, err = e.Evaluate(ast.Call("upper", &ast.StringLiteral{Value: "x"}), nil, now)
	assert.ErrorIs(t, err, ErrNotEvaluable)
}

func TestCachedProgramFollowsTimezoneChanges(t *testing.T) {
	e := newEvaluator(t)
	typedIn := func(tz string) ast.Node {
		s := typecheck.NewStaticSchema(&typecheck.FieldInfo{
			ID: 1, TableID: contacts, Name: "D", FieldType: constants.FieldTypeDate,
			Type: types.Date{IncludeTime: true, Format: types.DateFormatISO, TimeFormat: types.TimeFormat24, ForceTimezone: tz, Null: true},
		})
		node, err := parser.Parse("totext(field('D'))")
		require.NoError(t, err)
		res, err := typecheck.Check(node, s, typecheck.Options{TableID: contacts})
		require.NoError(t, err)
		return res.Node
	}
	row := &MapRow{RowID: 1, Values: map[int64]any{1: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}}

	utc, err := e.Evaluate(typedIn("UTC"), row, now)
	require.NoError(t, err)
	tokyo, err := e.Evaluate(typedIn("Asia/Tokyo"), row, now)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01 12:00", utc)
	assert.Equal(t, "2024-01-01 21:00", tokyo)
	assert.Equal(t, 2, e.CacheLen())
}

func TestNaNChecksOnEmptyNumber(t *testing.T) {
	e := newEvaluator(t)
	row := &MapRow{RowID: 1, Values: map[int64]any{2: nil}}
	assert.Equal(t, true, evaluate(t, e, "is_nan(field('Price'))", row))
	assert.Equal(t, "7.00", decimalText(t, evaluate(t, e, "when_nan(field('Price'), 7)", row)))
}
