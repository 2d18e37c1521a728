package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinTxCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tm := NewTransactionManager(db)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE x").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = tm.WithinTx(context.Background(), func(ctx context.Context) error {
		tx := ExtractTx(ctx)
		require.NotNil(t, tx)
		_, err := conn(ctx, db).ExecContext(ctx, "UPDATE x")
		return err
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tm := NewTransactionManager(db)
	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = tm.WithinTx(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxJoinsOuterTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tm := NewTransactionManager(db)
	mock.ExpectBegin()
	mock.ExpectCommit()

	err = tm.WithinTx(context.Background(), func(outer context.Context) error {
		return tm.WithinTx(outer, func(inner context.Context) error {
			assert.Same(t, ExtractTx(outer), ExtractTx(inner))
			return nil
		})
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryRetriesDeadlocks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tm := NewTransactionManager(db)
	deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err = tm.WithRetry(context.Background(), func(tx *sql.Tx) error {
		attempts++
		if attempts == 1 {
			return deadlock
		}
		return nil
	}, 3)
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tm := NewTransactionManager(db)
	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err = tm.WithRetry(context.Background(), func(tx *sql.Tx) error {
		attempts++
		return errors.New("syntax error")
	}, 3)
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestIsDeadlock(t *testing.T) {
	assert.True(t, isDeadlock(&mysql.MySQLError{Number: 1205}))
	assert.True(t, isDeadlock(errors.New("Deadlock found")))
	assert.False(t, isDeadlock(&mysql.MySQLError{Number: 1062}))
	assert.False(t, isDeadlock(nil))
	assert.True(t, isDuplicateEntry(&mysql.MySQLError{Number: 1062}))
	assert.True(t, isLockNotAvailable(&mysql.MySQLError{Number: 3572}))
}
