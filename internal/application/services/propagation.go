package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gridbase/backend/internal/domain/models"
	"github.com/gridbase/backend/pkg/constants"
	apperrors "github.com/gridbase/backend/pkg/errors"
	"github.com/gridbase/backend/pkg/formula"
	"github.com/gridbase/backend/pkg/formula/codegen"
	"github.com/gridbase/backend/pkg/formula/dependency"
	"github.com/gridbase/backend/pkg/formula/typecheck"
	"github.com/gridbase/backend/pkg/formula/types"
)

// fieldState tracks a field through one propagation.
type fieldState int

const (
	stateUntouched fieldState = iota
	stateQueued
	stateRetypedValid
	stateRetypedInvalid
)

// valueJob recomputes the values of a field with sql, or clears them when
// sql is empty.
type valueJob struct {
	field *models.Field
	sql   string
}

// operation is one field mutation and everything it propagates to. Schema
// changes run as soon as they are known and are undone in reverse order if
// the transaction fails; value updates run last, inside the transaction.
type operation struct {
	s      *FormulaFieldService
	w      *workspace
	now    time.Time
	states map[int64]fieldState

	jobs  []valueJob
	queue map[int64]int
	undo  []func(context.Context) error
	after []func(context.Context) error

	// changed is the field the caller mutated. It is not listed as updated.
	changed      int64
	updated      []*models.Field
	newlyInvalid []*models.Field
}

func (s *FormulaFieldService) newOperation() *operation {
	return &operation{
		s:      s,
		now:    s.now().UTC(),
		states: make(map[int64]fieldState),
		queue:  make(map[int64]int),
	}
}

// run executes fn and the queued value updates in one transaction. A retried
// transaction starts from a fresh operation but keeps the schema undo steps
// of earlier attempts.
func (s *FormulaFieldService) run(ctx context.Context, fn func(ctx context.Context, op *operation) error) (*operation, error) {
	op := s.newOperation()
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		undo := op.undo
		op = s.newOperation()
		op.undo = undo
		w, err := s.loadWorkspace(ctx)
		if err != nil {
			return err
		}
		op.w = w
		if err := fn(ctx, op); err != nil {
			return err
		}
		return op.flushValues(ctx)
	})
	if err != nil {
		op.compensate(context.WithoutCancel(ctx))
		return nil, err
	}
	op.finish(ctx)
	return op, nil
}

func (op *operation) onUndo(undo func(context.Context) error) {
	if undo != nil {
		op.undo = append(op.undo, undo)
	}
}

func (op *operation) compensate(ctx context.Context) {
	for i := len(op.undo) - 1; i >= 0; i-- {
		if err := op.undo[i](ctx); err != nil {
			op.s.logger.Error("failed to undo schema change", zap.Error(err))
		}
	}
}

func (op *operation) finish(ctx context.Context) {
	for _, fn := range op.after {
		if err := fn(ctx); err != nil {
			op.s.logger.Warn("post commit cleanup failed", zap.Error(err))
		}
	}
}

func (op *operation) queueValues(f *models.Field, sql string) {
	if i, ok := op.queue[f.ID]; ok {
		op.jobs[i] = valueJob{field: f, sql: sql}
		return
	}
	op.queue[f.ID] = len(op.jobs)
	op.jobs = append(op.jobs, valueJob{field: f, sql: sql})
}

func (op *operation) flushValues(ctx context.Context) error {
	for _, job := range op.jobs {
		if job.sql == "" {
			if err := op.s.values.ClearValues(ctx, job.field.TableID, job.field.ID); err != nil {
				return err
			}
			continue
		}
		n, err := op.s.values.RecomputeValues(ctx, job.field.TableID, job.field.ID, job.sql, nil)
		if err != nil {
			return fmt.Errorf("recompute %s: %w", job.field.Name, err)
		}
		op.s.logger.Debug("recomputed field values",
			zap.Int64("field_id", job.field.ID),
			zap.Int64("rows", n),
		)
	}
	return nil
}

// dependencyError converts a cycle found for f into the error reported to the user.
func (op *operation) dependencyError(f *models.Field, cycle *dependency.CycleError) error {
	if cycle.Self {
		return apperrors.NewSelfReferenceError(f.Name)
	}
	return apperrors.NewCircularReferenceError(op.w.cyclePath(cycle.Path))
}

// applyResult stores the outcome of typing on f.
func (op *operation) applyResult(f *models.Field, res *typecheck.Result) {
	t := res.Type()
	attrs := t.Attributes()
	f.FormulaType = &attrs
	f.FormulaVersion = formula.Version
	f.Error = ""
	if inv, ok := t.(types.Invalid); ok {
		f.Error = inv.Error
	}
	f.NeedsPeriodicUpdate = res.NeedsPeriodicUpdate && f.Error == ""
}

// markInvalid records a formula that cannot be computed.
func (op *operation) markInvalid(f *models.Field, msg string) {
	attrs := types.Invalid{Error: msg}.Attributes()
	f.FormulaType = &attrs
	f.FormulaVersion = formula.Version
	f.Error = msg
	f.NeedsPeriodicUpdate = false
}

// compile generates the SQL of a valid formula. Outside debug mode an internal
// failure is reported and turns f invalid instead of failing the operation.
func (op *operation) compile(ctx context.Context, f *models.Field, res *typecheck.Result) (string, error) {
	out, err := op.s.engine.CompileSQL(res, f.TableID, op.now)
	if err == nil {
		return out.SQL, nil
	}
	if op.s.debug || !apperrors.IsInternal(err) {
		return "", err
	}
	event := op.s.reporter.Report(ctx, err, map[string]any{
		"field_id": f.ID,
		"table_id": f.TableID,
		"formula":  f.Formula,
	})
	op.markInvalid(f, fmt.Sprintf("internal error while compiling the formula (event %s)", event))
	return "", nil
}

// columnType is the column a field is stored in. Link fields have none.
func columnType(f *models.Field) string {
	if !f.HasColumn() {
		return ""
	}
	return codegen.ColumnType(f.ResolvedType())
}

// changeColumn brings the column of f in line with its new definition. old
// is nil for a new field. Invalid computed fields keep their column.
func (op *operation) changeColumn(ctx context.Context, f, old *models.Field) error {
	schema := op.s.schema
	if old == nil {
		var (
			undo func(context.Context) error
			err  error
		)
		if f.IsLink() {
			undo, err = schema.CreateRelation(ctx, f.ID)
		} else {
			undo, err = schema.AddColumn(ctx, f.TableID, f.ID, columnType(f))
		}
		op.onUndo(undo)
		return err
	}
	if !f.HasColumn() || (f.IsComputed() && f.Error != "") {
		return nil
	}
	// the column of a field that did not type has an unknown shape
	staleShape := old.IsComputed() && old.Error != ""
	if !staleShape && columnType(old) == columnType(f) {
		return nil
	}
	undo, err := schema.AlterColumn(ctx, f.TableID, f.ID, columnType(f), !f.IsComputed())
	op.onUndo(undo)
	return err
}

// retype types a dependant again after something it reads changed, and
// queues its values.
func (op *operation) retype(ctx context.Context, f *models.Field) error {
	if !f.IsComputed() || op.states[f.ID] != stateUntouched {
		return nil
	}
	op.states[f.ID] = stateQueued
	old := f.Clone()
	if f.Type == constants.FieldTypeLookup {
		f.Formula = lookupFormula(f.Options)
	}

	var (
		rows   []models.Dependency
		ids    []int64
		broken []string
		sql    string
	)
	res, err := op.w.typeField(op.s.engine, f)
	var syntax *apperrors.FormulaSyntaxError
	switch {
	case errors.As(err, &syntax):
		op.markInvalid(f, syntax.Error())
	case err != nil:
		return err
	default:
		rows, ids, broken = op.w.edges(f, res)
		if cycle := op.w.graph.WouldCycle(f.ID, ids); cycle != nil {
			op.markInvalid(f, op.dependencyError(f, cycle).Error())
			rows, ids, broken = nil, nil, nil
			break
		}
		op.applyResult(f, res)
		if f.Error == "" {
			if sql, err = op.compile(ctx, f, res); err != nil {
				return err
			}
		}
	}

	op.w.link(f, ids, broken)
	op.w.put(f)
	if err := op.s.deps.ReplaceDependencies(ctx, f.ID, rows); err != nil {
		return err
	}
	if err := op.s.fields.UpdateField(ctx, f); err != nil {
		return err
	}
	if err := op.changeColumn(ctx, f, old); err != nil {
		return err
	}
	op.queueValues(f, sql)

	if f.Error == "" {
		op.states[f.ID] = stateRetypedValid
	} else {
		op.states[f.ID] = stateRetypedInvalid
		if old.Error == "" {
			op.newlyInvalid = append(op.newlyInvalid, f)
		}
	}
	if f.ID != op.changed {
		op.updated = append(op.updated, f)
	}
	return nil
}

// propagate retypes the dependants of changed plus the extra fields and
// their own dependants, each after everything it reads.
func (op *operation) propagate(ctx context.Context, changed int64, extra []int64) error {
	seen := make(map[int64]bool)
	var ids []int64
	add := func(id int64) {
		if id != changed && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range op.w.graph.Dependants(changed) {
		add(id)
	}
	for _, e := range extra {
		add(e)
		for _, id := range op.w.graph.Dependants(e) {
			add(id)
		}
	}
	ordered, err := op.w.graph.Order(ids)
	if err != nil {
		return apperrors.NewInternalError("dependency graph has a cycle", err)
	}
	for _, id := range ordered {
		f, ok := op.w.fields[id]
		if !ok {
			continue
		}
		if err := op.retype(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// change builds the result returned to the caller.
func (op *operation) change(f *models.Field) *models.FieldChange {
	updated := op.updated
	if updated == nil {
		updated = []*models.Field{}
	}
	return &models.FieldChange{Field: f, UpdatedFields: updated, NewlyInvalidFields: op.newlyInvalid}
}
