package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/gridbase/backend/internal/domain/models"
	"github.com/gridbase/backend/pkg/constants"
	apperrors "github.com/gridbase/backend/pkg/errors"
)

// TableRepository stores user table metadata.
type TableRepository struct {
	db *sql.DB
}

// NewTableRepository creates a new TableRepository
func NewTableRepository(db *sql.DB) *TableRepository {
	return &TableRepository{db: db}
}

// GetTable returns a table by id.
func (r *TableRepository) GetTable(ctx context.Context, id int64) (*models.Table, error) {
	query := fmt.Sprintf("SELECT `id`, `name` FROM `%s` WHERE `id` = ?", constants.TableTable)
	var t models.Table
	err := conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("Table", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table %d: %w", id, err)
	}
	return &t, nil
}

// CreateTable inserts the metadata row of a new table.
func (r *TableRepository) CreateTable(ctx context.Context, name string) (*models.Table, error) {
	query := fmt.Sprintf("INSERT INTO `%s` (`name`) VALUES (?)", constants.TableTable)
	res, err := conn(ctx, r.db).ExecContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create table %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read table id: %w", err)
	}
	return &models.Table{ID: id, Name: name}, nil
}
