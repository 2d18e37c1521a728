package sqlexpr

import (
	"strings"
	"testing"
	"time"

	"github.com/pingcap/tidb/pkg/parser/opcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compact(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, " ", ""))
}

func restore(t *testing.T, e Expr) string {
	t.Helper()
	s, err := Restore(e)
	require.NoError(t, err)
	return s
}

func TestLiterals(t *testing.T) {
	assert.Equal(t, "NULL", compact(restore(t, Null())))
	assert.Equal(t, "'IT''S'", compact(restore(t, String("it's"))))
	assert.Equal(t, "42", restore(t, Int(42)))
	assert.Equal(t, "1", restore(t, Bool(true)))

	d, err := Decimal("1.50")
	require.NoError(t, err)
	assert.Equal(t, "1.50", restore(t, d))

	_, err = Decimal("abc")
	assert.Error(t, err)
}

func TestDecimalOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"ninety digits", "1" + strings.Repeat("0", 90)},
		{"scale over thirty", "0." + strings.Repeat("1", 31)},
		{"exponent", "1E70"},
		{"infinity", "Infinity"},
		{"nan", "NaN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				e   Expr
				err error
			)
			require.NotPanics(t, func() { e, err = Decimal(tt.text) })
			assert.Nil(t, e)
			assert.Error(t, err)
		})
	}

	d, err := Decimal("-" + strings.Repeat("9", 35) + "." + strings.Repeat("9", 30))
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestBinaryIsParenthesised(t *testing.T) {
	e := Binary(opcode.Plus, Int(1), Binary(opcode.Mul, Int(2), Int(3)))
	assert.Equal(t, "(1)+((2)*(3))", compact(restore(t, e)))
}

func TestColumn(t *testing.T) {
	assert.Equal(t, "`table_1`.`field_2`", restore(t, Column("table_1", "field_2")))
}

func TestCase(t *testing.T) {
	e := If(Binary(opcode.EQ, Column("t", "b"), Int(0)), Null(), Column("t", "a"))
	got := compact(restore(t, e))
	assert.Contains(t, got, "CASEWHEN")
	assert.Contains(t, got, "THENNULL")
	assert.Contains(t, got, "ELSE`T`.`A`END")
}

func TestFunctionsAndCasts(t *testing.T) {
	assert.Equal(t, "UPPER('X')", compact(restore(t, Func("upper", String("x")))))
	assert.Contains(t, compact(restore(t, CastDecimal(Int(1), 2))), "CAST(1ASDECIMAL(65,2))")
	assert.Contains(t, compact(restore(t, Coalesce(Null(), Int(0)))), "COALESCE(NULL,0)")
	assert.Contains(t, compact(restore(t, DiffSeconds(Column("t", "a"), Column("t", "b")))), "TIMESTAMPDIFF(SECOND")
	assert.Contains(t, compact(restore(t, AddSeconds(Column("t", "a"), Int(60)))), "INTERVAL60SECOND")
}

func TestTimestamp(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Contains(t, restore(t, Timestamp(ts)), "2024-01-02 03:04:05.000000")
}

func TestGroupConcat(t *testing.T) {
	e := GroupConcat(Column("j", "v"), OrderBy(Column("j", "order"), Column("j", "id")), ", ")
	got := compact(restore(t, e))
	assert.Contains(t, got, "GROUP_CONCAT(`J`.`V`ORDERBY`J`.`ORDER`,`J`.`ID`SEPARATOR',')")
}

func TestAnd(t *testing.T) {
	assert.Nil(t, And())
	got := compact(restore(t, And(Int(1), nil, Int(2))))
	assert.Equal(t, "1AND(2)", got)
}

func TestQuoteAndAlias(t *testing.T) {
	assert.Equal(t, "`a``b`", Quote("a`b"))
	assert.Equal(t, "j_12", Alias("j", 12))
}

func TestScalarSubquery(t *testing.T) {
	from := JoinOn(Table("relation_3", "r_3"), Table("table_2", "j_3"),
		Binary(opcode.EQ, Column("r_3", "target_row_id"), Column("j_3", "id")))
	sel := Select(Aggregate("sum", Column("j_3", "field_9")), from,
		Binary(opcode.EQ, Column("r_3", "row_id"), Column("table_1", "id")))
	got := compact(restore(t, Subquery(sel)))
	assert.Contains(t, got, "SELECTSUM(`J_3`.`FIELD_9`)FROM`RELATION_3`AS`R_3`JOIN`TABLE_2`AS`J_3`ON")
	assert.Contains(t, got, "WHERE(`R_3`.`ROW_ID`)=(`TABLE_1`.`ID`)")
}

func TestExists(t *testing.T) {
	sel := Select(Int(1), Table("grid_select_option", "o"), Binary(opcode.EQ, Column("o", "value"), String("x")))
	got := compact(restore(t, Exists(sel)))
	assert.Contains(t, got, "EXISTS(SELECT1FROM`GRID_SELECT_OPTION`AS`O`WHERE")
}
