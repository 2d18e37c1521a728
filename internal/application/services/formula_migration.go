package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/gridbase/backend/internal/domain/models"
	"github.com/gridbase/backend/pkg/formula"
)

// MigrateFormulasToLatestVersion retypes every computed field typed by an
// older formula version, and its dependants. It returns the number of fields
// retyped. Running it again is a no-op.
func (s *FormulaFieldService) MigrateFormulasToLatestVersion(ctx context.Context) (int, error) {
	ok, err := s.fields.HasFormulaVersionColumn(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		s.logger.Warn("skipping formula migration: grid_field has no formula_version column")
		return 0, nil
	}

	fields, err := s.fields.ListFields(ctx)
	if err != nil {
		return 0, err
	}
	if len(outdated(fields)) == 0 {
		return 0, nil
	}

	op, err := s.run(ctx, func(ctx context.Context, op *operation) error {
		var stale []int64
		for _, f := range op.w.fields {
			if f.IsComputed() && f.FormulaVersion < formula.Version {
				stale = append(stale, f.ID)
			}
		}
		return op.retypeAll(ctx, stale)
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("migrated formulas",
		zap.Int("fields", len(op.updated)),
		zap.Int("version", formula.Version),
		zap.Int("invalid", len(op.newlyInvalid)),
	)
	return len(op.updated), nil
}

// RefreshPeriodicFields recomputes the formulas using now() or today() and
// everything reading them.
func (s *FormulaFieldService) RefreshPeriodicFields(ctx context.Context) (int, error) {
	periodic, err := s.fields.ListPeriodicFields(ctx)
	if err != nil {
		return 0, err
	}
	if len(periodic) == 0 {
		return 0, nil
	}
	op, err := s.run(ctx, func(ctx context.Context, op *operation) error {
		ids := make([]int64, 0, len(periodic))
		for _, f := range periodic {
			ids = append(ids, f.ID)
		}
		return op.retypeAll(ctx, ids)
	})
	if err != nil {
		return 0, err
	}
	return len(op.updated), nil
}

// retypeAll retypes ids and their dependants, dependencies first.
func (op *operation) retypeAll(ctx context.Context, ids []int64) error {
	seen := make(map[int64]bool)
	var all []int64
	for _, id := range ids {
		for _, d := range append([]int64{id}, op.w.graph.Dependants(id)...) {
			if !seen[d] {
				seen[d] = true
				all = append(all, d)
			}
		}
	}
	ordered, err := op.w.graph.Order(all)
	if err != nil {
		return err
	}
	for _, id := range ordered {
		if f, ok := op.w.fields[id]; ok {
			if err := op.retype(ctx, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func outdated(fields []*models.Field) []*models.Field {
	var out []*models.Field
	for _, f := range fields {
		if f.IsComputed() && f.FormulaVersion < formula.Version {
			out = append(out, f)
		}
	}
	return out
}
