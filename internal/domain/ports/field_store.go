package ports

import (
	"context"

	"github.com/gridbase/backend/internal/domain/models"
)

// TableStore reads and creates user tables.
type TableStore interface {
	GetTable(ctx context.Context, id int64) (*models.Table, error)
	CreateTable(ctx context.Context, name string) (*models.Table, error)
}

// FieldStore persists field metadata.
type FieldStore interface {
	// GetField returns a NotFoundError when the field does not exist.
	GetField(ctx context.Context, id int64) (*models.Field, error)

	// LockField reads the field with a row lock held until the transaction
	// ends. With nowait the call fails instead of waiting for another holder.
	LockField(ctx context.Context, id int64, nowait bool) (*models.Field, error)

	// ListTableFields returns the fields of one table ordered by order, id.
	ListTableFields(ctx context.Context, tableID int64) ([]*models.Field, error)

	// ListFields returns every field of every table.
	ListFields(ctx context.Context) ([]*models.Field, error)

	// ListPeriodicFields returns the computed fields whose formula reads the clock.
	ListPeriodicFields(ctx context.Context) ([]*models.Field, error)

	CreateField(ctx context.Context, field *models.Field) error
	UpdateField(ctx context.Context, field *models.Field) error
	DeleteField(ctx context.Context, id int64) error

	// HasFormulaVersionColumn reports whether the database already tracks
	// formula versions. Databases created before it did cannot be migrated.
	HasFormulaVersionColumn(ctx context.Context) (bool, error)
}

// DependencyStore persists the edges of the field dependency graph.
type DependencyStore interface {
	// ListDependencies returns every edge.
	ListDependencies(ctx context.Context) ([]models.Dependency, error)

	// ReplaceDependencies replaces the outgoing edges of dependantID.
	ReplaceDependencies(ctx context.Context, dependantID int64, deps []models.Dependency) error

	// DeleteDependencies drops the outgoing edges of fieldID.
	DeleteDependencies(ctx context.Context, fieldID int64) error
}
