package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gridbase/backend/internal/domain/models"
	"github.com/gridbase/backend/pkg/constants"
	apperrors "github.com/gridbase/backend/pkg/errors"
	"github.com/gridbase/backend/pkg/formula/types"
)

// FieldRepository stores field metadata in grid_field.
type FieldRepository struct {
	db *sql.DB
}

// NewFieldRepository creates a new FieldRepository
func NewFieldRepository(db *sql.DB) *FieldRepository {
	return &FieldRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanField(s rowScanner) (*models.Field, error) {
	var (
		f           models.Field
		formula     sql.NullString
		formulaType sql.NullString
		version     sql.NullInt64
		errMsg      sql.NullString
	)
	if err := s.Scan(&f.ID, &f.TableID, &f.Name, &f.Type, &f.Primary, &f.Order, &f.Options,
		&formula, &formulaType, &version, &errMsg, &f.NeedsPeriodicUpdate); err != nil {
		return nil, err
	}
	f.Formula = formula.String
	f.FormulaVersion = int(version.Int64)
	f.Error = errMsg.String
	if formulaType.Valid && formulaType.String != "" {
		var attrs types.Attributes
		if err := json.Unmarshal([]byte(formulaType.String), &attrs); err != nil {
			return nil, fmt.Errorf("field %d has a corrupt formula type: %w", f.ID, err)
		}
		f.FormulaType = &attrs
	}
	return &f, nil
}

func (r *FieldRepository) queryFields(ctx context.Context, query string, args ...any) ([]*models.Field, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fields: %w", err)
	}
	defer rows.Close()

	var fields []*models.Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

func (r *FieldRepository) getField(ctx context.Context, query string, id int64) (*models.Field, error) {
	f, err := scanField(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("Field", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get field %d: %w", id, err)
	}
	return f, nil
}

// GetField returns a field by id.
func (r *FieldRepository) GetField(ctx context.Context, id int64) (*models.Field, error) {
	query := fmt.Sprintf("SELECT %s FROM `%s` WHERE `id` = ?", fieldColumns, constants.TableField)
	return r.getField(ctx, query, id)
}

// LockField reads a field with SELECT ... FOR UPDATE. It must run inside a
// transaction to be useful.
func (r *FieldRepository) LockField(ctx context.Context, id int64, nowait bool) (*models.Field, error) {
	query := fmt.Sprintf("SELECT %s FROM `%s` WHERE `id` = ? FOR UPDATE", fieldColumns, constants.TableField)
	if nowait {
		query += " NOWAIT"
	}
	f, err := r.getField(ctx, query, id)
	if err != nil && isLockNotAvailable(err) {
		return nil, apperrors.NewConflictError("Field", "id", strconv.FormatInt(id, 10))
	}
	return f, err
}

// ListTableFields returns the fields of a table in display order.
func (r *FieldRepository) ListTableFields(ctx context.Context, tableID int64) ([]*models.Field, error) {
	query := fmt.Sprintf("SELECT %s FROM `%s` WHERE `table_id` = ? ORDER BY `order`, `id`", fieldColumns, constants.TableField)
	return r.queryFields(ctx, query, tableID)
}

// ListFields returns every field.
func (r *FieldRepository) ListFields(ctx context.Context) ([]*models.Field, error) {
	query := fmt.Sprintf("SELECT %s FROM `%s` ORDER BY `table_id`, `order`, `id`", fieldColumns, constants.TableField)
	return r.queryFields(ctx, query)
}

// ListPeriodicFields returns the fields flagged for periodic recomputation.
func (r *FieldRepository) ListPeriodicFields(ctx context.Context) ([]*models.Field, error) {
	query := fmt.Sprintf("SELECT %s FROM `%s` WHERE `needs_periodic_update` = ? ORDER BY `table_id`, `id`", fieldColumns, constants.TableField)
	return r.queryFields(ctx, query, true)
}

func formulaTypeValue(f *models.Field) (any, error) {
	if f.FormulaType == nil {
		return nil, nil
	}
	data, err := f.FormulaType.JSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func fieldArgs(f *models.Field) ([]any, error) {
	ft, err := formulaTypeValue(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode formula type of field %q: %w", f.Name, err)
	}
	return []any{
		f.TableID, f.Name, f.Type, f.Primary, f.Order, f.Options,
		nullableString(f.Formula), ft, f.FormulaVersion, nullableString(f.Error), f.NeedsPeriodicUpdate,
	}, nil
}

// CreateField inserts a field and sets its ID.
func (r *FieldRepository) CreateField(ctx context.Context, f *models.Field) error {
	args, err := fieldArgs(f)
	if err != nil {
		return err
	}
	cols := make([]string, len(fieldWritableColumns))
	for i, c := range fieldWritableColumns {
		cols[i] = quote(c)
	}
	query := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (%s)", constants.TableField,
		strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	res, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		if isDuplicateEntry(err) {
			return apperrors.NewConflictError("Field", "name", f.Name)
		}
		return fmt.Errorf("failed to create field %q: %w", f.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read field id: %w", err)
	}
	f.ID = id
	return nil
}

// UpdateField writes every column of a field.
func (r *FieldRepository) UpdateField(ctx context.Context, f *models.Field) error {
	args, err := fieldArgs(f)
	if err != nil {
		return err
	}
	sets := make([]string, 0, len(fieldWritableColumns)-1)
	for _, c := range fieldWritableColumns[1:] {
		sets = append(sets, quote(c)+" = ?")
	}
	query := fmt.Sprintf("UPDATE `%s` SET %s WHERE `id` = ?", constants.TableField, strings.Join(sets, ", "))

	// table_id never changes
	args = append(args[1:], f.ID)
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if isDuplicateEntry(err) {
			return apperrors.NewConflictError("Field", "name", f.Name)
		}
		return fmt.Errorf("failed to update field %d: %w", f.ID, err)
	}
	return nil
}

// DeleteField removes a field's metadata.
func (r *FieldRepository) DeleteField(ctx context.Context, id int64) error {
	query := fmt.Sprintf("DELETE FROM `%s` WHERE `id` = ?", constants.TableField)
	res, err := conn(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete field %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("Field", strconv.FormatInt(id, 10))
	}
	return nil
}

// HasFormulaVersionColumn reports whether grid_field has the formula_version column.
func (r *FieldRepository) HasFormulaVersionColumn(ctx context.Context) (bool, error) {
	return columnExists(ctx, conn(ctx, r.db), constants.TableField, "formula_version")
}

func columnExists(ctx context.Context, exec Executor, table, column string) (bool, error) {
	query := "SELECT COUNT(*) FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?"
	var count int
	if err := exec.QueryRowContext(ctx, query, table, column).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check column %s.%s: %w", table, column, err)
	}
	return count > 0, nil
}
