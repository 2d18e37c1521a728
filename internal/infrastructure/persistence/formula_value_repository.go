package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gridbase/backend/pkg/constants"
)

// FormulaValueRepository writes the stored values of computed fields. The
// expression is SQL generated by the formula compiler, never user input.
type FormulaValueRepository struct {
	db *sql.DB
}

// NewFormulaValueRepository creates a new FormulaValueRepository
func NewFormulaValueRepository(db *sql.DB) *FormulaValueRepository {
	return &FormulaValueRepository{db: db}
}

// RecomputeValues sets field_<fieldID> of table_<tableID> to expr, for rowIDs
// or for every row. It returns the number of rows changed.
func (r *FormulaValueRepository) RecomputeValues(ctx context.Context, tableID, fieldID int64, expr string, rowIDs []int64) (int64, error) {
	table := constants.TableName(tableID)
	query := fmt.Sprintf("UPDATE %s SET %s = %s", quote(table), quote(constants.ColumnName(fieldID)), expr)

	args := make([]any, 0, len(rowIDs))
	if len(rowIDs) > 0 {
		query += fmt.Sprintf(" WHERE %s IN (%s)", quote(constants.ColumnID), strings.TrimSuffix(strings.Repeat("?, ", len(rowIDs)), ", "))
		for _, id := range rowIDs {
			args = append(args, id)
		}
	}

	res, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to recompute %s.%s: %w", table, constants.ColumnName(fieldID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// ClearValues resets the column of a field to its default.
func (r *FormulaValueRepository) ClearValues(ctx context.Context, tableID, fieldID int64) error {
	column := quote(constants.ColumnName(fieldID))
	query := fmt.Sprintf("UPDATE %s SET %s = DEFAULT", quote(constants.TableName(tableID)), column)
	if _, err := conn(ctx, r.db).ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to clear %s: %w", column, err)
	}
	return nil
}
