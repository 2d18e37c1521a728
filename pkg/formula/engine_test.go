package formula

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/backend/pkg/constants"
	apperrors "github.com/gridbase/backend/pkg/errors"
	"github.com/gridbase/backend/pkg/formula/eval"
	"github.com/gridbase/backend/pkg/formula/typecheck"
	"github.com/gridbase/backend/pkg/formula/types"
)

func schema() *typecheck.StaticSchema {
	return typecheck.NewStaticSchema(
		&typecheck.FieldInfo{ID: 1, TableID: 1, Name: "Name", FieldType: constants.FieldTypeText, Type: types.Text{Null: true}, Primary: true},
		&typecheck.FieldInfo{ID: 2, TableID: 1, Name: "Price", FieldType: constants.FieldTypeNumber, Type: types.Number{DecimalPlaces: 2, Null: true}},
		&typecheck.FieldInfo{ID: 3, TableID: 1, Name: "Notes", FieldType: constants.FieldTypeText, Type: types.Text{Null: true}},
	)
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(8)
	require.NoError(t, err)
	return e
}

func TestFormulaEngine_SyntaxErrors(t *testing.T) {
	e := newEngine(t)
	_, err := e.Parse("1 +")
	var syntax *apperrors.FormulaSyntaxError
	require.ErrorAs(t, err, &syntax)
	assert.Equal(t, 1, syntax.Line)

	_, err = e.Type("", schema(), typecheck.Options{TableID: 1})
	require.ErrorAs(t, err, &syntax)

	_, err = e.Type("1"+strings.Repeat("0", 90)+" + field('Price')", schema(), typecheck.Options{TableID: 1})
	require.ErrorAs(t, err, &syntax)
	assert.Contains(t, syntax.Message, "digits")
}

func TestFormulaEngine_TypeCompileEvaluate(t *testing.T) {
	e := newEngine(t)
	res, err := e.Type("field('Price') * 1.5", schema(), typecheck.Options{TableID: 1})
	require.NoError(t, err)
	assert.Equal(t, types.Number{DecimalPlaces: 2, Negative: true, Null: true}, res.Type())

	sql, err := e.CompileSQL(res, 1, time.Now())
	require.NoError(t, err)
	assert.Contains(t, sql.SQL, "field_2")
	assert.Equal(t, "DECIMAL(65,2) NULL", sql.ColumnType)

	out, err := e.Evaluate(res.Node, &eval.MapRow{RowID: 1, Values: map[int64]any{2: "10.00"}}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "15.00", out.(interface{ String() string }).String())
}

func TestFormulaEngine_InvalidFormulaDoesNotCompile(t *testing.T) {
	e := newEngine(t)
	res, err := e.Type("field('Nope') + 1", schema(), typecheck.Options{TableID: 1})
	require.NoError(t, err)
	require.True(t, res.Invalid())

	_, err = e.CompileSQL(res, 1, time.Now())
	assert.True(t, apperrors.IsFormulaError(err))
}

func TestFormulaEngine_TypingIsDeterministic(t *testing.T) {
	e := newEngine(t)
	for _, src := range []string{
		"1/3",
		"field('Price') = field('Name')",
		"if(field('Price') > 1, todate('2024-01-02', 'YYYY-MM-DD'), today())",
	} {
		first, err := e.Type(src, schema(), typecheck.Options{TableID: 1})
		require.NoError(t, err)
		second, err := e.Type(src, schema(), typecheck.Options{TableID: 1})
		require.NoError(t, err)
		assert.True(t, types.Equal(first.Type(), second.Type()), src)
		assert.False(t, first.Invalid(), "%s: %s", src, first.Type())
	}
}

func TestFormulaEngine_Functions(t *testing.T) {
	e := newEngine(t)
	defs := e.Functions()
	names := make(map[string]FunctionDefinition, len(defs))
	for _, d := range defs {
		names[d.Name] = d
	}
	require.Contains(t, names, "sum")
	assert.True(t, names["sum"].Aggregate)
	assert.Equal(t, "number", names["round"].Category)
	assert.Equal(t, 2, names["round"].MinArgs)
	assert.Greater(t, len(defs), 80)
}
