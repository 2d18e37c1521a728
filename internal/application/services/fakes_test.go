package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridbase/backend/internal/domain/models"
	apperrors "github.com/gridbase/backend/pkg/errors"
	"github.com/gridbase/backend/pkg/formula"
)

// memStore implements every port the service needs in memory. Metadata
// writes are rolled back by WithinTx; schema changes are not, like DDL.
type memStore struct {
	nextID int64
	tables map[int64]*models.Table
	fields map[int64]*models.Field
	deps   map[int64][]models.Dependency

	userTables map[int64]bool
	columns    map[int64]string
	relations  map[int64]bool
	dropped    []int64

	recomputed map[int64]string
	cleared    []int64
	reported   []error

	failRecompute   error
	noVersionColumn bool
}

func newMemStore() *memStore {
	return &memStore{
		tables:     make(map[int64]*models.Table),
		fields:     make(map[int64]*models.Field),
		deps:       make(map[int64][]models.Dependency),
		userTables: make(map[int64]bool),
		columns:    make(map[int64]string),
		relations:  make(map[int64]bool),
		recomputed: make(map[int64]string),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) GetTable(_ context.Context, id int64) (*models.Table, error) {
	t, ok := m.tables[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("Table", strconv.FormatInt(id, 10))
	}
	c := *t
	return &c, nil
}

func (m *memStore) CreateTable(_ context.Context, name string) (*models.Table, error) {
	t := &models.Table{ID: m.id(), Name: name}
	m.tables[t.ID] = t
	c := *t
	return &c, nil
}

func (m *memStore) GetField(_ context.Context, id int64) (*models.Field, error) {
	f, ok := m.fields[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("Field", strconv.FormatInt(id, 10))
	}
	return f.Clone(), nil
}

func (m *memStore) LockField(ctx context.Context, id int64, _ bool) (*models.Field, error) {
	return m.GetField(ctx, id)
}

func (m *memStore) ListTableFields(_ context.Context, tableID int64) ([]*models.Field, error) {
	var out []*models.Field
	for _, f := range m.sortedFields() {
		if f.TableID == tableID {
			out = append(out, f.Clone())
		}
	}
	return out, nil
}

func (m *memStore) ListFields(context.Context) ([]*models.Field, error) {
	var out []*models.Field
	for _, f := range m.sortedFields() {
		out = append(out, f.Clone())
	}
	return out, nil
}

func (m *memStore) ListPeriodicFields(context.Context) ([]*models.Field, error) {
	var out []*models.Field
	for _, f := range m.sortedFields() {
		if f.NeedsPeriodicUpdate {
			out = append(out, f.Clone())
		}
	}
	return out, nil
}

func (m *memStore) CreateField(_ context.Context, f *models.Field) error {
	for _, other := range m.fields {
		if other.TableID == f.TableID && other.Name == f.Name {
			return apperrors.NewConflictError("Field", "name", f.Name)
		}
	}
	f.ID = m.id()
	m.fields[f.ID] = f.Clone()
	return nil
}

func (m *memStore) UpdateField(_ context.Context, f *models.Field) error {
	if _, ok := m.fields[f.ID]; !ok {
		return apperrors.NewNotFoundError("Field", strconv.FormatInt(f.ID, 10))
	}
	m.fields[f.ID] = f.Clone()
	return nil
}

func (m *memStore) DeleteField(_ context.Context, id int64) error {
	if _, ok := m.fields[id]; !ok {
		return apperrors.NewNotFoundError("Field", strconv.FormatInt(id, 10))
	}
	delete(m.fields, id)
	return nil
}

func (m *memStore) HasFormulaVersionColumn(context.Context) (bool, error) {
	return !m.noVersionColumn, nil
}

func (m *memStore) ListDependencies(context.Context) ([]models.Dependency, error) {
	ids := make([]int64, 0, len(m.deps))
	for id := range m.deps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []models.Dependency
	for _, id := range ids {
		out = append(out, m.deps[id]...)
	}
	return out, nil
}

func (m *memStore) ReplaceDependencies(_ context.Context, dependantID int64, deps []models.Dependency) error {
	if len(deps) == 0 {
		delete(m.deps, dependantID)
		return nil
	}
	m.deps[dependantID] = append([]models.Dependency(nil), deps...)
	return nil
}

func (m *memStore) DeleteDependencies(_ context.Context, fieldID int64) error {
	delete(m.deps, fieldID)
	for id, rows := range m.deps {
		kept := rows[:0]
		for _, d := range rows {
			if d.DependencyID == nil || *d.DependencyID != fieldID {
				kept = append(kept, d)
			}
		}
		m.deps[id] = kept
	}
	return nil
}

func (m *memStore) CreateUserTable(_ context.Context, tableID int64) (func(context.Context) error, error) {
	m.userTables[tableID] = true
	return func(context.Context) error {
		delete(m.userTables, tableID)
		return nil
	}, nil
}

func (m *memStore) AddColumn(_ context.Context, tableID, fieldID int64, columnType string) (func(context.Context) error, error) {
	if !m.userTables[tableID] {
		return nil, fmt.Errorf("table %d does not exist", tableID)
	}
	m.columns[fieldID] = columnType
	return func(context.Context) error {
		delete(m.columns, fieldID)
		return nil
	}, nil
}

func (m *memStore) AlterColumn(_ context.Context, _, fieldID int64, columnType string, _ bool) (func(context.Context) error, error) {
	prev, ok := m.columns[fieldID]
	if !ok {
		return nil, fmt.Errorf("column field_%d does not exist", fieldID)
	}
	m.columns[fieldID] = columnType
	return func(context.Context) error {
		m.columns[fieldID] = prev
		return nil
	}, nil
}

func (m *memStore) DropColumn(_ context.Context, _, fieldID int64) error {
	delete(m.columns, fieldID)
	m.dropped = append(m.dropped, fieldID)
	return nil
}

func (m *memStore) CreateRelation(_ context.Context, linkFieldID int64) (func(context.Context) error, error) {
	m.relations[linkFieldID] = true
	return func(context.Context) error {
		delete(m.relations, linkFieldID)
		return nil
	}, nil
}

func (m *memStore) DropRelation(_ context.Context, linkFieldID int64) error {
	delete(m.relations, linkFieldID)
	m.dropped = append(m.dropped, linkFieldID)
	return nil
}

func (m *memStore) RecomputeValues(_ context.Context, _, fieldID int64, expr string, _ []int64) (int64, error) {
	if m.failRecompute != nil {
		return 0, m.failRecompute
	}
	m.recomputed[fieldID] = expr
	return 1, nil
}

func (m *memStore) ClearValues(_ context.Context, _, fieldID int64) error {
	m.cleared = append(m.cleared, fieldID)
	return nil
}

// WithinTx restores the metadata when fn fails.
func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	nextID := m.nextID
	tables := make(map[int64]*models.Table, len(m.tables))
	for k, v := range m.tables {
		c := *v
		tables[k] = &c
	}
	fields := make(map[int64]*models.Field, len(m.fields))
	for k, v := range m.fields {
		fields[k] = v.Clone()
	}
	deps := make(map[int64][]models.Dependency, len(m.deps))
	for k, v := range m.deps {
		deps[k] = append([]models.Dependency(nil), v...)
	}
	if err := fn(ctx); err != nil {
		m.nextID, m.tables, m.fields, m.deps = nextID, tables, fields, deps
		return err
	}
	return nil
}

func (m *memStore) Report(_ context.Context, err error, _ map[string]any) string {
	m.reported = append(m.reported, err)
	return fmt.Sprintf("event-%d", len(m.reported))
}

func (m *memStore) sortedFields() []*models.Field {
	out := make([]*models.Field, 0, len(m.fields))
	for _, f := range m.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) fieldByName(tableID int64, name string) *models.Field {
	for _, f := range m.fields {
		if f.TableID == tableID && f.Name == name {
			return f
		}
	}
	return nil
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*FormulaFieldService, *memStore) {
	t.Helper()
	engine, err := formula.NewEngine(16)
	require.NoError(t, err)
	m := newMemStore()
	s := NewFormulaFieldService(Stores{
		Tables: m, Fields: m, Deps: m, Schema: m, Values: m, Tx: m, Reporter: m,
	}, engine, nil, false)
	s.now = func() time.Time { return fixedNow }
	return s, m
}

func fieldIDs(fields []*models.Field) []int64 {
	out := make([]int64, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
