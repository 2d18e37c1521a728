package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gridbase/backend/internal/domain/models"
	"github.com/gridbase/backend/pkg/constants"
)

// DependencyRepository stores the field dependency edges.
type DependencyRepository struct {
	db *sql.DB
}

// NewDependencyRepository creates a new DependencyRepository
func NewDependencyRepository(db *sql.DB) *DependencyRepository {
	return &DependencyRepository{db: db}
}

// ListDependencies returns every edge ordered by dependant.
func (r *DependencyRepository) ListDependencies(ctx context.Context) ([]models.Dependency, error) {
	query := fmt.Sprintf("SELECT %s FROM `%s` ORDER BY `dependant_id`, `id`", dependencyColumns, constants.TableFieldDependency)
	rows, err := conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	defer rows.Close()

	var deps []models.Dependency
	for rows.Next() {
		var (
			d      models.Dependency
			depID  sql.NullInt64
			viaID  sql.NullInt64
			broken sql.NullString
		)
		if err := rows.Scan(&d.DependantID, &depID, &viaID, &broken, &d.TableID); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		if depID.Valid {
			d.DependencyID = &depID.Int64
		}
		if viaID.Valid {
			d.ViaFieldID = &viaID.Int64
		}
		d.BrokenName = broken.String
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// ReplaceDependencies deletes the edges of dependantID and inserts deps.
func (r *DependencyRepository) ReplaceDependencies(ctx context.Context, dependantID int64, deps []models.Dependency) error {
	if err := r.DeleteDependencies(ctx, dependantID); err != nil {
		return err
	}
	query := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (?, ?, ?, ?, ?)", constants.TableFieldDependency, dependencyColumns)
	exec := conn(ctx, r.db)
	for _, d := range deps {
		var depID, viaID any
		if d.DependencyID != nil {
			depID = *d.DependencyID
		}
		if d.ViaFieldID != nil {
			viaID = *d.ViaFieldID
		}
		if _, err := exec.ExecContext(ctx, query, dependantID, depID, viaID, nullableString(d.BrokenName), d.TableID); err != nil {
			return fmt.Errorf("failed to insert dependency of field %d: %w", dependantID, err)
		}
	}
	return nil
}

// DeleteDependencies drops the outgoing edges of fieldID.
func (r *DependencyRepository) DeleteDependencies(ctx context.Context, fieldID int64) error {
	query := fmt.Sprintf("DELETE FROM `%s` WHERE `dependant_id` = ?", constants.TableFieldDependency)
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, fieldID); err != nil {
		return fmt.Errorf("failed to delete dependencies of field %d: %w", fieldID, err)
	}
	return nil
}
