package persistence

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/backend/internal/domain/models"
	"github.com/gridbase/backend/pkg/constants"
	apperrors "github.com/gridbase/backend/pkg/errors"
	"github.com/gridbase/backend/pkg/formula/types"
)

var fieldRowColumns = []string{
	"id", "table_id", "name", "type", "primary", "order", "options", "formula",
	"formula_type", "formula_version", "error", "needs_periodic_update",
}

func TestGetField(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFieldRepository(db)
	query := fmt.Sprintf("SELECT %s FROM `%s` WHERE `id` = ?", fieldColumns, constants.TableField)

	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs(int64(7)).WillReturnRows(
		sqlmock.NewRows(fieldRowColumns).AddRow(
			7, 1, "Total", constants.FieldTypeFormula, false, 3, `{"decimal_places":2}`,
			"field('Price') * 2", `{"formula_type":"number","nullable":true,"number_decimal_places":2}`, 5, nil, false))

	f, err := repo.GetField(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Total", f.Name)
	assert.Equal(t, 2, f.Options.DecimalPlaces)
	assert.Equal(t, "field('Price') * 2", f.Formula)
	assert.Equal(t, 5, f.FormulaVersion)
	assert.Equal(t, types.Number{DecimalPlaces: 2, Null: true}, f.ResolvedType())

	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs(int64(8)).WillReturnRows(sqlmock.NewRows(fieldRowColumns))
	_, err = repo.GetField(context.Background(), 8)
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockFieldNowait(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFieldRepository(db)
	query := fmt.Sprintf("SELECT %s FROM `%s` WHERE `id` = ? FOR UPDATE NOWAIT", fieldColumns, constants.TableField)

	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs(int64(7)).
		WillReturnError(&mysql.MySQLError{Number: 3572, Message: "Statement aborted because lock(s) could not be acquired immediately"})

	_, err = repo.LockField(context.Background(), 7, true)
	assert.True(t, apperrors.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTableFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFieldRepository(db)
	query := fmt.Sprintf("SELECT %s FROM `%s` WHERE `table_id` = ? ORDER BY `order`, `id`", fieldColumns, constants.TableField)

	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs(int64(1)).WillReturnRows(
		sqlmock.NewRows(fieldRowColumns).
			AddRow(1, 1, "Name", constants.FieldTypeText, true, 0, nil, nil, nil, 0, nil, false).
			AddRow(2, 1, "Orders", constants.FieldTypeLinkRow, false, 1, `{"link_table_id":2}`, nil, nil, 0, nil, false))

	fields, err := repo.ListTableFields(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.True(t, fields[0].Primary)
	assert.Nil(t, fields[0].FormulaType)
	assert.True(t, fields[1].IsLink())
	assert.Equal(t, int64(2), fields[1].Options.LinkTableID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateField(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFieldRepository(db)
	dp := 2
	f := &models.Field{
		TableID: 1, Name: "Total", Type: constants.FieldTypeFormula, Formula: "1",
		FormulaType:    &types.Attributes{Type: "number", NumberDecimalPlaces: &dp},
		FormulaVersion: 5,
	}

	query := "INSERT INTO `grid_field` (`table_id`, `name`, `type`, `primary`, `order`, `options`, `formula`, `formula_type`, `formula_version`, `error`, `needs_periodic_update`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs(int64(1), "Total", constants.FieldTypeFormula, false, 0, sqlmock.AnyArg(), "1", sqlmock.AnyArg(), 5, nil, false).
		WillReturnResult(sqlmock.NewResult(42, 1))

	require.NoError(t, repo.CreateField(context.Background(), f))
	assert.Equal(t, int64(42), f.ID)

	mock.ExpectExec(regexp.QuoteMeta(query)).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	err = repo.CreateField(context.Background(), &models.Field{TableID: 1, Name: "Total", Type: constants.FieldTypeText})
	assert.True(t, apperrors.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAndDeleteField(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFieldRepository(db)
	update := "UPDATE `grid_field` SET `name` = ?, `type` = ?, `primary` = ?, `order` = ?, `options` = ?, `formula` = ?, `formula_type` = ?, `formula_version` = ?, `error` = ?, `needs_periodic_update` = ? WHERE `id` = ?"
	mock.ExpectExec(regexp.QuoteMeta(update)).
		WithArgs("Renamed", constants.FieldTypeFormula, false, 0, sqlmock.AnyArg(), "now()", nil, 5, "boom", true, int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.UpdateField(context.Background(), &models.Field{
		ID: 9, TableID: 1, Name: "Renamed", Type: constants.FieldTypeFormula, Formula: "now()",
		FormulaVersion: 5, Error: "boom", NeedsPeriodicUpdate: true,
	})
	require.NoError(t, err)

	del := "DELETE FROM `grid_field` WHERE `id` = ?"
	mock.ExpectExec(regexp.QuoteMeta(del)).WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.DeleteField(context.Background(), 9))

	mock.ExpectExec(regexp.QuoteMeta(del)).WithArgs(int64(10)).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, apperrors.IsNotFound(repo.DeleteField(context.Background(), 10)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasFormulaVersionColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFieldRepository(db)
	query := "SELECT COUNT(*) FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?"

	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs(constants.TableField, "formula_version").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	ok, err := repo.HasFormulaVersionColumn(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs(constants.TableField, "formula_version").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	ok, err = repo.HasFormulaVersionColumn(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
