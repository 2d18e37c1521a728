package ports

import "context"

// SchemaMutator changes the physical tables backing user tables. DDL is not
// transactional, so each change that succeeded is undone by the returned
// compensation when a later step of the same operation fails.
type SchemaMutator interface {
	CreateUserTable(ctx context.Context, tableID int64) (undo func(context.Context) error, err error)
	AddColumn(ctx context.Context, tableID, fieldID int64, columnType string) (undo func(context.Context) error, err error)
	// AlterColumn changes the column type of a field. With keepValues the
	// stored values are converted, otherwise the column is recreated empty.
	AlterColumn(ctx context.Context, tableID, fieldID int64, columnType string, keepValues bool) (undo func(context.Context) error, err error)
	DropColumn(ctx context.Context, tableID, fieldID int64) error
	CreateRelation(ctx context.Context, linkFieldID int64) (undo func(context.Context) error, err error)
	DropRelation(ctx context.Context, linkFieldID int64) error
}

// FormulaValueStore writes the stored values of computed fields.
type FormulaValueStore interface {
	// RecomputeValues sets the column of fieldID to expr for the given rows, or
	// for every row when rowIDs is empty.
	RecomputeValues(ctx context.Context, tableID, fieldID int64, expr string, rowIDs []int64) (int64, error)

	// ClearValues resets the column of fieldID to its default.
	ClearValues(ctx context.Context, tableID, fieldID int64) error
}
