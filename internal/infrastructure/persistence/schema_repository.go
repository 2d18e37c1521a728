package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gridbase/backend/pkg/constants"
	"github.com/gridbase/backend/pkg/logging"
)

// SchemaRepository runs the DDL backing user tables. DDL commits implicitly
// in MySQL and TiDB, so it always runs on the pool and never on the
// transaction of the caller. Each successful change returns a compensation
// that restores the previous shape.
type SchemaRepository struct {
	db *sql.DB
}

// NewSchemaRepository creates a new SchemaRepository
func NewSchemaRepository(db *sql.DB) *SchemaRepository {
	return &SchemaRepository{db: db}
}

type undoFunc = func(context.Context) error

func noop(context.Context) error { return nil }

func (r *SchemaRepository) exec(ctx context.Context, ddl string) error {
	logging.L().Debug("executing DDL", zap.String("ddl", ddl))
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	return nil
}

// CreateUserTable creates table_<id> with its id and order columns.
func (r *SchemaRepository) CreateUserTable(ctx context.Context, tableID int64) (undoFunc, error) {
	table := constants.TableName(tableID)
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s %s, %s %s, PRIMARY KEY (%s)) %s",
		quote(table), quote(constants.ColumnID), SQLTypeID, quote(constants.ColumnOrder), SQLTypeRowOrder,
		quote(constants.ColumnID), tableOptions)
	if err := r.exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return func(ctx context.Context) error {
		return r.exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quote(table)))
	}, nil
}

// AddColumn adds the column of a field. An existing column with that name is
// adopted, and then the compensation leaves it in place.
func (r *SchemaRepository) AddColumn(ctx context.Context, tableID, fieldID int64, columnType string) (undoFunc, error) {
	table, column := constants.TableName(tableID), constants.ColumnName(fieldID)
	exists, err := columnExists(ctx, r.db, table, column)
	if err != nil {
		return nil, err
	}
	if exists {
		logging.L().Warn("orphan column adopted", zap.String("table", table), zap.String("column", column))
		return noop, nil
	}

	ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(table), quote(column), columnType)
	if err := r.exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to add column %s.%s: %w", table, column, err)
	}
	return func(ctx context.Context) error {
		return r.DropColumn(ctx, tableID, fieldID)
	}, nil
}

// AlterColumn changes the column of a field to columnType. With keepValues
// the column is modified in place and MySQL converts the values. Otherwise it
// is dropped and added again, empty, which is what computed fields need since
// their values are recomputed anyway. The compensation restores the previous
// definition the same way.
func (r *SchemaRepository) AlterColumn(ctx context.Context, tableID, fieldID int64, columnType string, keepValues bool) (undoFunc, error) {
	table, column := constants.TableName(tableID), constants.ColumnName(fieldID)
	previous, err := r.columnDefinition(ctx, table, column)
	if err != nil {
		return nil, err
	}

	change := func(ctx context.Context, def string) error {
		if keepValues {
			return r.exec(ctx, fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s", quote(table), quote(column), def))
		}
		ddl := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quote(table), quote(column))
		if err := r.exec(ctx, ddl); err != nil {
			return err
		}
		return r.exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(table), quote(column), def))
	}
	if err := change(ctx, columnType); err != nil {
		return nil, fmt.Errorf("failed to alter column %s.%s: %w", table, column, err)
	}
	return func(ctx context.Context) error {
		return change(ctx, previous)
	}, nil
}

// DropColumn drops the column of a field when it exists.
func (r *SchemaRepository) DropColumn(ctx context.Context, tableID, fieldID int64) error {
	table, column := constants.TableName(tableID), constants.ColumnName(fieldID)
	exists, err := columnExists(ctx, r.db, table, column)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if err := r.exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quote(table), quote(column))); err != nil {
		return fmt.Errorf("failed to drop column %s.%s: %w", table, column, err)
	}
	return nil
}

// CreateRelation creates the relation table of a link_row field.
func (r *SchemaRepository) CreateRelation(ctx context.Context, linkFieldID int64) (undoFunc, error) {
	table := constants.RelationTableName(linkFieldID)
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s %s, %s %s, %s %s, PRIMARY KEY (%s), KEY %s (%s), KEY %s (%s)) %s",
		quote(table),
		quote(constants.ColumnID), SQLTypeID,
		quote(constants.ColumnRowID), SQLTypeRowRef,
		quote(constants.ColumnTargetRowID), SQLTypeRowRef,
		quote(constants.ColumnID),
		quote("idx_"+table+"_row"), quote(constants.ColumnRowID),
		quote("idx_"+table+"_target"), quote(constants.ColumnTargetRowID),
		tableOptions)
	if err := r.exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create relation %s: %w", table, err)
	}
	return func(ctx context.Context) error {
		return r.DropRelation(ctx, linkFieldID)
	}, nil
}

// DropRelation drops the relation table of a link_row field.
func (r *SchemaRepository) DropRelation(ctx context.Context, linkFieldID int64) error {
	table := constants.RelationTableName(linkFieldID)
	if err := r.exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quote(table))); err != nil {
		return fmt.Errorf("failed to drop relation %s: %w", table, err)
	}
	return nil
}

// columnDefinition rebuilds the DDL type clause of an existing column.
func (r *SchemaRepository) columnDefinition(ctx context.Context, table, column string) (string, error) {
	query := "SELECT COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?"
	var (
		columnType string
		nullable   string
		def        sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, table, column).Scan(&columnType, &nullable, &def)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("column %s.%s does not exist", table, column)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read column %s.%s: %w", table, column, err)
	}

	out := strings.ToUpper(columnType)
	if nullable == "NO" {
		out += " NOT NULL"
	} else {
		out += " NULL"
	}
	if def.Valid {
		out += " DEFAULT " + quoteDefault(def.String)
	}
	return out, nil
}

func quoteDefault(v string) string {
	for _, r := range v {
		if (r < '0' || r > '9') && r != '.' && r != '-' {
			return "'" + strings.ReplaceAll(v, "'", "''") + "'"
		}
	}
	return v
}
