package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromDB(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	conn := NewFromDB(db)
	assert.Same(t, db, conn.DB())

	mock.ExpectPing()
	assert.NoError(t, conn.Ping(context.Background()))

	mock.ExpectClose()
	assert.NoError(t, conn.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
