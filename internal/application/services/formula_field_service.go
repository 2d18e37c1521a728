package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gridbase/backend/internal/domain/models"
	"github.com/gridbase/backend/internal/domain/ports"
	"github.com/gridbase/backend/pkg/constants"
	apperrors "github.com/gridbase/backend/pkg/errors"
	"github.com/gridbase/backend/pkg/formula"
	"github.com/gridbase/backend/pkg/formula/ast"
	"github.com/gridbase/backend/pkg/formula/eval"
	"github.com/gridbase/backend/pkg/formula/typecheck"
	"github.com/gridbase/backend/pkg/formula/value"
)

// PrimaryFieldName is the name of the field every new table starts with.
const PrimaryFieldName = "Name"

// FormulaFieldService creates, changes and deletes fields and keeps every
// formula reading them typed and computed.
type FormulaFieldService struct {
	tables   ports.TableStore
	fields   ports.FieldStore
	deps     ports.DependencyStore
	schema   ports.SchemaMutator
	values   ports.FormulaValueStore
	tx       ports.TxRunner
	reporter ports.ErrorReporter
	engine   *formula.Engine
	logger   *zap.Logger
	debug    bool
	now      func() time.Time
}

// Stores groups the persistence adapters the service works with.
type Stores struct {
	Tables   ports.TableStore
	Fields   ports.FieldStore
	Deps     ports.DependencyStore
	Schema   ports.SchemaMutator
	Values   ports.FormulaValueStore
	Tx       ports.TxRunner
	Reporter ports.ErrorReporter
}

// NewFormulaFieldService creates a new FormulaFieldService. In debug mode
// internal compilation errors fail the request instead of being reported.
func NewFormulaFieldService(stores Stores, engine *formula.Engine, logger *zap.Logger, debug bool) *FormulaFieldService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormulaFieldService{
		tables:   stores.Tables,
		fields:   stores.Fields,
		deps:     stores.Deps,
		schema:   stores.Schema,
		values:   stores.Values,
		tx:       stores.Tx,
		reporter: stores.Reporter,
		engine:   engine,
		logger:   logger,
		debug:    debug,
		now:      time.Now,
	}
}

// Engine returns the formula engine the service types with.
func (s *FormulaFieldService) Engine() *formula.Engine { return s.engine }

// TypeFormulaRequest asks for the type of a formula without saving it.
type TypeFormulaRequest struct {
	Formula string `json:"formula" binding:"required"`
	// FieldID is the field the formula would belong to, 0 for a new one.
	FieldID int64 `json:"field_id,omitempty"`
	// Row holds sample values by field name. When set the formula is also
	// evaluated against it.
	Row map[string]any `json:"row,omitempty"`
}

// TypeFormula types a formula in tableID and, when sample values are given,
// computes it.
func (s *FormulaFieldService) TypeFormula(ctx context.Context, tableID int64, req TypeFormulaRequest) (*models.FormulaTypePreview, error) {
	if _, err := s.tables.GetTable(ctx, tableID); err != nil {
		return nil, err
	}
	w, err := s.loadWorkspace(ctx)
	if err != nil {
		return nil, err
	}
	if req.FieldID != 0 {
		if f, ok := w.fields[req.FieldID]; !ok || f.TableID != tableID {
			return nil, apperrors.NewNotFoundError("Field", strconv.FormatInt(req.FieldID, 10))
		}
	}

	res, err := s.engine.Type(req.Formula, w.schema, typecheck.Options{TableID: tableID, FieldID: req.FieldID})
	if err != nil {
		return nil, err
	}
	preview := &models.FormulaTypePreview{FormulaType: res.Type().Attributes()}
	if res.Invalid() {
		preview.Error = preview.FormulaType.Error
		return preview, nil
	}
	if req.Row == nil {
		return preview, nil
	}

	row := &eval.MapRow{Values: make(map[int64]any, len(req.Row))}
	for name, v := range req.Row {
		f, ok := w.schema.FieldByName(tableID, name)
		if !ok {
			return nil, apperrors.NewValidationError("row", "unknown field "+name)
		}
		row.Values[f.ID] = v
	}
	out, err := s.engine.Evaluate(res.Node, row, s.now())
	if err != nil {
		if errors.Is(err, eval.ErrNotEvaluable) {
			return preview, nil
		}
		return nil, apperrors.NewValidationError("row", err.Error())
	}
	preview.Value = value.JSONValue(out)
	return preview, nil
}

// CreateTable creates a table with its primary text field.
func (s *FormulaFieldService) CreateTable(ctx context.Context, name string) (*models.Table, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("name", "table name is required")
	}
	var table *models.Table
	_, err := s.run(ctx, func(ctx context.Context, op *operation) error {
		t, err := s.tables.CreateTable(ctx, name)
		if err != nil {
			return err
		}
		undo, err := s.schema.CreateUserTable(ctx, t.ID)
		op.onUndo(undo)
		if err != nil {
			return err
		}
		primary := &models.Field{TableID: t.ID, Name: PrimaryFieldName, Type: constants.FieldTypeText, Primary: true}
		if err := s.fields.CreateField(ctx, primary); err != nil {
			return err
		}
		op.w.put(primary)
		table = t
		return op.changeColumn(ctx, primary, nil)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("table created", zap.Int64("table_id", table.ID), zap.String("name", table.Name))
	return table, nil
}

// CreateField adds a field to tableID. Fields already referencing its name
// are retyped against it.
func (s *FormulaFieldService) CreateField(ctx context.Context, tableID int64, in FieldInput) (*models.FieldChange, error) {
	f := &models.Field{
		TableID: tableID,
		Name:    strings.TrimSpace(in.Name),
		Type:    in.Type,
		Formula: in.Formula,
		Options: in.Options,
	}
	if err := validateDefinition(f); err != nil {
		return nil, err
	}

	op, err := s.run(ctx, func(ctx context.Context, op *operation) error {
		if _, err := s.tables.GetTable(ctx, tableID); err != nil {
			return err
		}
		if f.IsLink() {
			if _, err := s.tables.GetTable(ctx, f.Options.LinkTableID); err != nil {
				return err
			}
		}
		if _, taken := op.w.schema.FieldByName(tableID, f.Name); taken {
			return apperrors.NewConflictError("Field", "name", f.Name)
		}
		existing := op.w.tableFields(tableID)
		if n := len(existing); n > 0 {
			f.Order = existing[n-1].Order + 1
		} else {
			f.Primary = true
		}
		if f.Primary && f.IsLink() {
			return apperrors.NewValidationError("type", "the primary field cannot be a link row field")
		}
		if err := s.fields.CreateField(ctx, f); err != nil {
			return err
		}
		op.changed = f.ID
		return op.settle(ctx, f, nil)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("field created",
		zap.Int64("field_id", f.ID),
		zap.String("type", f.Type),
		zap.Int("related_fields", len(op.updated)),
	)
	return op.change(f), nil
}

// UpdateField changes a field. Renames are carried into the formulas
// referencing the field, and every dependant is retyped.
func (s *FormulaFieldService) UpdateField(ctx context.Context, fieldID int64, upd FieldUpdate) (*models.FieldChange, error) {
	var f *models.Field
	op, err := s.run(ctx, func(ctx context.Context, op *operation) error {
		old, err := s.fields.LockField(ctx, fieldID, true)
		if err != nil {
			return err
		}
		f = old.Clone()
		if upd.Name != nil {
			f.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Type != nil {
			f.Type = *upd.Type
		}
		if upd.Formula != nil {
			f.Formula = *upd.Formula
		}
		if upd.Options != nil {
			f.Options = *upd.Options
		}
		if err := validateDefinition(f); err != nil {
			return err
		}
		if old.IsLink() != f.IsLink() {
			return apperrors.NewValidationError("type", "a field cannot be converted to or from a link row field")
		}
		if f.IsLink() && f.Options.LinkTableID != old.Options.LinkTableID {
			return apperrors.NewValidationError("options", "the table of a link row field cannot be changed")
		}
		if f.Name != old.Name {
			if _, taken := op.w.schema.FieldByName(f.TableID, f.Name); taken {
				return apperrors.NewConflictError("Field", "name", f.Name)
			}
			op.renameReferences(old, f)
		}
		op.changed = f.ID
		return op.settle(ctx, f, old)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("field updated",
		zap.Int64("field_id", f.ID),
		zap.Int("related_fields", len(op.updated)),
		zap.Int("newly_invalid", len(op.newlyInvalid)),
	)
	return op.change(f), nil
}

// DeleteField removes a field. Formulas reading it turn invalid until a
// field with the same name appears again.
func (s *FormulaFieldService) DeleteField(ctx context.Context, fieldID int64) (*models.FieldChange, error) {
	op, err := s.run(ctx, func(ctx context.Context, op *operation) error {
		f, err := s.fields.LockField(ctx, fieldID, true)
		if err != nil {
			return err
		}
		if f.Primary {
			return apperrors.NewValidationError("field", "the primary field cannot be deleted")
		}
		op.changed = f.ID
		dependants := op.w.graph.Dependants(f.ID)
		if err := s.deps.DeleteDependencies(ctx, f.ID); err != nil {
			return err
		}
		if err := s.fields.DeleteField(ctx, f.ID); err != nil {
			return err
		}
		op.w.remove(f.ID)
		op.after = append(op.after, func(ctx context.Context) error {
			if f.IsLink() {
				return s.schema.DropRelation(ctx, f.ID)
			}
			return s.schema.DropColumn(ctx, f.TableID, f.ID)
		})
		for _, id := range dependants {
			if d, ok := op.w.fields[id]; ok {
				if err := op.retype(ctx, d); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("field deleted",
		zap.Int64("field_id", fieldID),
		zap.Int("newly_invalid", len(op.newlyInvalid)),
	)
	return op.change(nil), nil
}

// RetypeAndUpdateDependents retypes and recomputes everything that reads
// fieldID, for callers that changed the field's values or type outside this
// service.
func (s *FormulaFieldService) RetypeAndUpdateDependents(ctx context.Context, fieldID int64) (*models.FieldChange, error) {
	op, err := s.run(ctx, func(ctx context.Context, op *operation) error {
		if _, ok := op.w.fields[fieldID]; !ok {
			return apperrors.NewNotFoundError("Field", strconv.FormatInt(fieldID, 10))
		}
		op.changed = fieldID
		return op.propagate(ctx, fieldID, nil)
	})
	if err != nil {
		return nil, err
	}
	return op.change(nil), nil
}

// settle types, stores and lays out the field the caller created (old nil)
// or changed, then propagates to its dependants.
func (op *operation) settle(ctx context.Context, f, old *models.Field) error {
	s := op.s
	var waiters []int64
	if old == nil || old.Name != f.Name {
		waiters = op.w.waiters(f.TableID, f.Name, f.ID)
		// waiters will read f once retyped, which must not close a cycle
		for _, id := range op.w.graph.Broken(f.TableID, f.Name) {
			if id != f.ID {
				op.w.graph.SetDependencies(id, append(op.w.graph.Dependencies(id), f.ID))
			}
		}
	}
	op.w.put(f)

	var sql string
	switch {
	case f.IsComputed():
		res, err := op.w.typeField(s.engine, f)
		if err != nil {
			return err
		}
		rows, ids, broken := op.w.edges(f, res)
		if cycle := op.w.graph.WouldCycle(f.ID, ids); cycle != nil {
			return op.dependencyError(f, cycle)
		}
		if res.Invalid() {
			return apperrors.NewFormulaTypeError(f.Name, res.Type().Attributes().Error)
		}
		op.applyResult(f, res)
		if sql, err = op.compile(ctx, f, res); err != nil {
			return err
		}
		op.w.link(f, ids, broken)
		op.w.put(f)
		if err := s.deps.ReplaceDependencies(ctx, f.ID, rows); err != nil {
			return err
		}
	case old != nil && old.IsComputed():
		op.w.link(f, nil, nil)
		if err := s.deps.DeleteDependencies(ctx, f.ID); err != nil {
			return err
		}
	}

	if err := s.fields.UpdateField(ctx, f); err != nil {
		return err
	}
	if err := op.changeColumn(ctx, f, old); err != nil {
		return err
	}
	if f.IsComputed() {
		op.queueValues(f, sql)
	}
	return op.propagate(ctx, f.ID, waiters)
}

// renameReferences rewrites the formulas naming old so they name f instead.
func (op *operation) renameReferences(old, f *models.Field) {
	for _, id := range op.w.graph.DirectDependants(f.ID) {
		d, ok := op.w.fields[id]
		if !ok || !d.IsComputed() {
			continue
		}
		if d.Type == constants.FieldTypeLookup {
			renamed := false
			if d.TableID == f.TableID && d.Options.ThroughFieldName == old.Name {
				d.Options.ThroughFieldName = f.Name
				renamed = true
			}
			if d.Options.TargetFieldName == old.Name && op.linksTo(d.TableID, d.Options.ThroughFieldName, old, f) {
				d.Options.TargetFieldName = f.Name
				renamed = true
			}
			if renamed {
				d.Formula = lookupFormula(d.Options)
			}
			continue
		}
		root, err := op.s.engine.Parse(d.Formula)
		if err != nil {
			continue
		}
		src, renamed := ast.RenameReferences(d.Formula, root, func(ref ast.Reference) (string, bool) {
			if ref.Name != old.Name {
				return "", false
			}
			switch ref.Kind {
			case ast.RefField, ast.RefLookupThrough:
				return f.Name, d.TableID == f.TableID
			case ast.RefLookupTarget:
				return f.Name, op.linksTo(d.TableID, ref.Through, old, f)
			}
			return "", false
		})
		if renamed {
			d.Formula = src
		}
	}
}

// linksTo reports whether through names a link field of tableID pointing at
// the table of f. through may be the old name of f itself.
func (op *operation) linksTo(tableID int64, through string, old, f *models.Field) bool {
	if tableID == f.TableID && through == old.Name {
		return old.IsLink() && old.Options.LinkTableID == f.TableID
	}
	link, ok := op.w.schema.FieldByName(tableID, through)
	return ok && link.IsLink() && link.LinkTableID == f.TableID
}
