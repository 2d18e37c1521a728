package persistence

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/backend/internal/domain/models"
)

func int64p(v int64) *int64 { return &v }

func TestReplaceDependencies(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDependencyRepository(db)
	del := "DELETE FROM `grid_field_dependency` WHERE `dependant_id` = ?"
	ins := "INSERT INTO `grid_field_dependency` (`dependant_id`, `dependency_id`, `via_field_id`, `broken_reference_field_name`, `table_id`) VALUES (?, ?, ?, ?, ?)"

	mock.ExpectExec(regexp.QuoteMeta(del)).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(ins)).WithArgs(int64(5), int64(2), nil, nil, int64(1)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(ins)).WithArgs(int64(5), int64(10), int64(4), nil, int64(2)).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(regexp.QuoteMeta(ins)).WithArgs(int64(5), nil, nil, "Gone", int64(1)).WillReturnResult(sqlmock.NewResult(3, 1))

	err = repo.ReplaceDependencies(context.Background(), 5, []models.Dependency{
		{DependencyID: int64p(2), TableID: 1},
		{DependencyID: int64p(10), ViaFieldID: int64p(4), TableID: 2},
		{BrokenName: "Gone", TableID: 1},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDependencies(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDependencyRepository(db)
	query := "SELECT `dependant_id`, `dependency_id`, `via_field_id`, `broken_reference_field_name`, `table_id` FROM `grid_field_dependency` ORDER BY `dependant_id`, `id`"
	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(
		sqlmock.NewRows([]string{"dependant_id", "dependency_id", "via_field_id", "broken_reference_field_name", "table_id"}).
			AddRow(5, 2, nil, nil, 1).
			AddRow(5, nil, nil, "Gone", 1))

	deps, err := repo.ListDependencies(context.Background())
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, int64(2), *deps[0].DependencyID)
	assert.Nil(t, deps[0].ViaFieldID)
	assert.Nil(t, deps[1].DependencyID)
	assert.Equal(t, "Gone", deps[1].BrokenName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
