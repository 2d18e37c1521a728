package persistence

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeValues(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFormulaValueRepository(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE `table_1` SET `field_7` = `table_1`.`field_2`*1.5")).
		WillReturnResult(sqlmock.NewResult(0, 12))
	n, err := repo.RecomputeValues(ctx, 1, 7, "`table_1`.`field_2`*1.5", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE `table_1` SET `field_7` = NOW() WHERE `id` IN (?, ?)")).
		WithArgs(int64(3), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err = repo.RecomputeValues(ctx, 1, 7, "NOW()", []int64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecomputeValuesUsesContextTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFormulaValueRepository(db)
	tm := NewTransactionManager(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `table_1` SET `field_7` = DEFAULT")).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err = tm.WithinTx(context.Background(), func(ctx context.Context) error {
		return repo.ClearValues(ctx, 1, 7)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
